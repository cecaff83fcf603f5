// Package viewer receives frames from a host or relay for display.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/junsooki/framecast/internal/framing"
)

// DefaultReconnectDelay is the fixed wait between connection attempts.
const DefaultReconnectDelay = 2 * time.Second

// FrameHandler receives each frame. It must not retain the slice past the
// call unless it owns it; every frame is a fresh allocation.
type FrameHandler func(data []byte)

// ReadMJPEG reads one multipart/x-mixed-replace response from url and calls
// onFrame for each part until the stream ends or ctx is cancelled.
func ReadMJPEG(ctx context.Context, client *http.Client, url string, onFrame FrameHandler) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("viewer: %s: %s", url, resp.Status)
	}
	mr, err := framing.NewMultipartReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return err
	}
	for {
		data, err := mr.NextFrame()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if len(data) > 0 {
			onFrame(data)
		}
	}
}

// Connector runs one connection and returns when it ends.
type Connector func(ctx context.Context) error

// Follow runs connect repeatedly, waiting delay between attempts, until ctx
// is cancelled.
func Follow(ctx context.Context, name string, delay time.Duration, connect Connector) {
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	log := slog.With("source", name)
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C
	for {
		log.Info("viewer: connecting")
		err := connect(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("viewer: connection ended", "err", err)
		} else {
			log.Info("viewer: connection closed")
		}
		timer.Reset(delay)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}
