// Package push delivers the latest frame of a stream to a remote ingest
// endpoint over a long-lived connection, reconnecting after a fixed delay
// whenever the connection ends.
package push

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/junsooki/framecast/internal/frame"
)

const (
	DefaultSendInterval   = 100 * time.Millisecond
	DefaultReconnectDelay = 2 * time.Second
	DefaultLogEvery       = 50
)

type Config struct {
	BaseURL        string
	ClientID       string
	SendInterval   time.Duration
	ReconnectDelay time.Duration
	LogEvery       int
}

// Client pushes one stream. It owns at most one connection at a time.
type Client struct {
	kind     frame.Kind
	slot     *frame.Slot
	strategy Strategy
	cfg      Config
	log      *slog.Logger

	state    atomic.Int32
	attempts atomic.Uint64
	sent     atomic.Uint64

	hookMu  sync.Mutex
	onState func(frame.Kind, State)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewClient(kind frame.Kind, slot *frame.Slot, strategy Strategy, cfg Config) *Client {
	if cfg.SendInterval <= 0 {
		cfg.SendInterval = DefaultSendInterval
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.LogEvery <= 0 {
		cfg.LogEvery = DefaultLogEvery
	}
	return &Client{
		kind:     kind,
		slot:     slot,
		strategy: strategy,
		cfg:      cfg,
		log:      slog.With("stream", kind, "client_id", cfg.ClientID),
	}
}

// OnStateChange registers a callback invoked on every state transition.
// It runs on the client goroutine and must not block.
func (c *Client) OnStateChange(fn func(frame.Kind, State)) {
	c.hookMu.Lock()
	c.onState = fn
	c.hookMu.Unlock()
}

func (c *Client) State() State { return State(c.state.Load()) }

// Attempts is the number of connection attempts made so far.
func (c *Client) Attempts() uint64 { return c.attempts.Load() }

// Sent is the total number of frames written across all connections.
func (c *Client) Sent() uint64 { return c.sent.Load() }

func (c *Client) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	c.hookMu.Lock()
	fn := c.onState
	c.hookMu.Unlock()
	if fn != nil {
		fn(c.kind, s)
	}
}

// Start launches the connect/stream/reconnect loop. Calling Start on a
// running client does nothing.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go func() {
		defer close(c.done)
		c.run(ctx)
	}()
}

// Stop cancels the current connection or pending reconnect and waits for
// the client to reach StateStopped. It is safe to call more than once.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel == nil {
		c.setState(StateStopped)
		return
	}
	cancel()
	<-done
}

func (c *Client) run(ctx context.Context) {
	defer c.setState(StateStopped)
	target := Target{BaseURL: c.cfg.BaseURL, Kind: c.kind, ClientID: c.cfg.ClientID}

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		if ctx.Err() != nil {
			return
		}
		c.setState(StateConnecting)
		n := c.attempts.Add(1)
		c.log.Info("push: connecting", "url", c.cfg.BaseURL, "attempt", n)

		err := c.strategy.Stream(ctx, target, c.pump)
		if ctx.Err() != nil {
			c.log.Info("push: stopped")
			return
		}
		var se *StatusError
		switch {
		case errors.As(err, &se):
			c.log.Warn("push: server rejected stream", "status", se.Code)
		case err != nil:
			c.log.Warn("push: connection failed", "err", err)
		default:
			c.log.Info("push: stream closed by server")
		}
		c.setState(StateDisconnected)

		c.log.Info("push: reconnecting", "delay", c.cfg.ReconnectDelay)
		timer.Reset(c.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			c.log.Info("push: stopped")
			return
		case <-timer.C:
		}
	}
}

// pump sends the slot's current frame every SendInterval. Empty slots are
// skipped; the same frame may be sent again if capture has not replaced it.
func (c *Client) pump(ctx context.Context, send SendFunc) error {
	c.setState(StateStreaming)
	var count uint64
	defer func() {
		c.log.Info("push: stream ended", "frames", count)
	}()

	ticker := time.NewTicker(c.cfg.SendInterval)
	defer ticker.Stop()
	for {
		if data := c.slot.Read(); len(data) > 0 {
			if err := send(data); err != nil {
				return err
			}
			count++
			c.sent.Add(1)
			if count == 1 || count%uint64(c.cfg.LogEvery) == 0 {
				c.log.Info("push: sent frame", "n", count, "bytes", len(data))
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
