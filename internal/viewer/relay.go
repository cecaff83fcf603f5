package viewer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/junsooki/framecast/internal/frame"
	"github.com/junsooki/framecast/internal/relay"
)

// RelayHandler callbacks for messages from a relay's /view endpoint.
type RelayHandler struct {
	OnStreams func(streams []relay.StreamInfo)
	OnFrame   func(clientID, streamType string, data []byte)
	OnError   func(msg string)
}

// RelayClient is a WebSocket client for a relay's /view endpoint.
type RelayClient struct {
	url     string
	handler RelayHandler

	mu     sync.Mutex
	conn   *websocket.Conn
	done   chan struct{}
	closed bool
}

func NewRelayClient(url string, handler RelayHandler) *RelayClient {
	return &RelayClient{
		url:     url,
		handler: handler,
		done:    make(chan struct{}),
	}
}

// Connect dials the relay and starts the read and ping loops.
func (c *RelayClient) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("viewer: dial relay: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop()
	go c.pingLoop()
	return nil
}

// Done is closed when the connection ends.
func (c *RelayClient) Done() <-chan struct{} { return c.done }

// Close shuts down the connection.
func (c *RelayClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
	if c.conn != nil {
		c.conn.Close()
	}
}

func (c *RelayClient) send(msg relay.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.closed {
		return fmt.Errorf("viewer: not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(msg)
}

func (c *RelayClient) readLoop() {
	defer c.Close()
	for {
		var msg relay.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.done:
			default:
				slog.Warn("viewer: relay read error", "err", err)
			}
			return
		}
		c.dispatch(msg)
	}
}

func (c *RelayClient) dispatch(msg relay.Message) {
	switch msg.Type {
	case relay.TypeStreams:
		if c.handler.OnStreams != nil {
			c.handler.OnStreams(msg.Streams)
		}
	case relay.TypeFrame:
		if c.handler.OnFrame != nil && len(msg.Data) > 0 {
			c.handler.OnFrame(msg.ClientID, msg.StreamType, msg.Data)
		}
	case relay.TypeError:
		if c.handler.OnError != nil {
			c.handler.OnError(msg.Msg)
		}
	case relay.TypePong:
		// heartbeat response, nothing to do
	}
}

func (c *RelayClient) pingLoop() {
	ticker := time.NewTicker(25 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			_ = c.send(relay.Message{Type: relay.TypePing})
		}
	}
}

// RelayConnector returns a Connector that subscribes to one stream of one
// publisher and forwards its frames to onFrame. An empty clientID follows
// the first publisher in the relay's stream list that has kind live.
func RelayConnector(url, clientID, kind string, onFrame FrameHandler) Connector {
	return func(ctx context.Context) error {
		var mu sync.Mutex
		following := clientID
		c := NewRelayClient(url, RelayHandler{
			OnStreams: func(streams []relay.StreamInfo) {
				mu.Lock()
				defer mu.Unlock()
				if following != "" {
					return
				}
				for _, st := range streams {
					if st.HasScreen && kind == frame.KindScreen.String() || st.HasWebcam && kind == frame.KindWebcam.String() {
						following = st.ClientID
						slog.Info("viewer: following publisher", "client_id", following, "stream", kind)
						return
					}
				}
			},
			OnFrame: func(from, streamType string, data []byte) {
				if streamType != kind {
					return
				}
				mu.Lock()
				match := following != "" && following == from
				mu.Unlock()
				if match {
					onFrame(data)
				}
			},
			OnError: func(msg string) {
				slog.Warn("viewer: relay error", "message", msg)
			},
		})
		if err := c.Connect(ctx); err != nil {
			return err
		}
		defer c.Close()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.Done():
			return nil
		}
	}
}
