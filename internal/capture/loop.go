package capture

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
	DefaultFPS      = 10
	DefaultLogEvery = 50
)

// LoopConfig controls pacing and log cadence.
type LoopConfig struct {
	FPS      int
	LogEvery int
}

// Stats is a snapshot of loop counters.
type Stats struct {
	Frames       uint64
	Failures     uint64
	LastSize     int
	LastDuration time.Duration
}

// Loop repeatedly captures from a Source and publishes into a Slot. Each
// cycle sleeps for whatever is left of the interval after capture and
// encode, so a slow source lowers the rate instead of queueing work.
type Loop struct {
	kind     frame.Kind
	src      Source
	slot     *frame.Slot
	interval time.Duration
	logEvery uint64

	frames    atomic.Uint64
	failures  atomic.Uint64
	lastSize  atomic.Int64
	lastDur   atomic.Int64
	available atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewLoop(kind frame.Kind, src Source, slot *frame.Slot, cfg LoopConfig) *Loop {
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultFPS
	}
	if cfg.LogEvery <= 0 {
		cfg.LogEvery = DefaultLogEvery
	}
	l := &Loop{
		kind:     kind,
		src:      src,
		slot:     slot,
		interval: time.Second / time.Duration(cfg.FPS),
		logEvery: uint64(cfg.LogEvery),
	}
	l.available.Store(true)
	return l
}

// Available reports false once the source has been found unsupported.
func (l *Loop) Available() bool { return l.available.Load() }

// Stats returns the loop's counters; safe to call while it runs.
func (l *Loop) Stats() Stats {
	return Stats{
		Frames:       l.frames.Load(),
		Failures:     l.failures.Load(),
		LastSize:     int(l.lastSize.Load()),
		LastDuration: time.Duration(l.lastDur.Load()),
	}
}

// Run captures until ctx is cancelled, returning nil, or until the source
// reports ErrUnsupported, returning that error.
func (l *Loop) Run(ctx context.Context) error {
	log := slog.With("stream", l.kind, "source", l.src.Name())
	defer closeSource(l.src)

	if !l.src.Supported() {
		l.available.Store(false)
		log.Warn("capture: source unavailable, stream disabled")
		return ErrUnsupported
	}
	log.Info("capture: started", "interval", l.interval)

	var consecutive int
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		if ctx.Err() != nil {
			log.Info("capture: stopped", "frames", l.frames.Load())
			return nil
		}

		start := time.Now()
		data, err := l.src.CaptureOne()
		elapsed := time.Since(start)

		switch {
		case errors.Is(err, ErrUnsupported):
			l.available.Store(false)
			log.Warn("capture: source unsupported, stream disabled", "err", err)
			return err
		case err != nil:
			if ctx.Err() != nil {
				continue
			}
			consecutive++
			l.failures.Add(1)
			log.Warn("capture: frame failed", "err", err, "consecutive", consecutive)
		case len(data) > 0:
			consecutive = 0
			l.slot.Write(data)
			n := l.frames.Add(1)
			l.lastSize.Store(int64(len(data)))
			l.lastDur.Store(int64(elapsed))
			if n == 1 || n%l.logEvery == 0 {
				log.Debug("capture: frame", "n", n, "bytes", len(data), "elapsed", elapsed)
			}
		}

		wait := l.interval - time.Since(start)
		if wait <= 0 {
			continue
		}
		timer.Reset(wait)
		select {
		case <-ctx.Done():
			log.Info("capture: stopped", "frames", l.frames.Load())
			return nil
		case <-timer.C:
		}
	}
}

// Start runs the loop in its own goroutine.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done != nil {
		return
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	go func() {
		defer close(l.done)
		_ = l.Run(ctx)
	}()
}

// Stop cancels a started loop and waits for it to exit. Calling Stop more
// than once, or without Start, is harmless.
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Done is closed when a started loop exits. It is nil before Start.
func (l *Loop) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}
