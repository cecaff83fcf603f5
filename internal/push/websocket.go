package push

import (
	"context"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

// WebSocketStrategy pushes each frame as one binary WebSocket message.
type WebSocketStrategy struct {
	dialer *websocket.Dialer
}

func NewWebSocketStrategy(connectTimeout time.Duration) *WebSocketStrategy {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	return &WebSocketStrategy{dialer: &websocket.Dialer{
		HandshakeTimeout: connectTimeout,
		NetDialContext:   (&net.Dialer{Timeout: connectTimeout}).DialContext,
	}}
}

func (s *WebSocketStrategy) Stream(ctx context.Context, t Target, pump PumpFunc) error {
	target, err := WebSocketURL(t)
	if err != nil {
		return err
	}
	conn, resp, err := s.dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil && resp.StatusCode != 0 {
			return &StatusError{Code: resp.StatusCode}
		}
		return err
	}
	defer conn.Close()

	pumpCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	// The ingest side never sends data; reading surfaces close frames and
	// dead connections.
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				readErr <- err
				cancel()
				return
			}
		}
	}()

	err = pump(pumpCtx, func(b []byte) error {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteMessage(websocket.BinaryMessage, b)
	})

	select {
	case rerr := <-readErr:
		if websocket.IsCloseError(rerr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil
		}
		if ctx.Err() == nil {
			return rerr
		}
	default:
	}
	return err
}
