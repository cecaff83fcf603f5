package push

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/junsooki/framecast/internal/frame"
)

// Target identifies where one stream is pushed.
type Target struct {
	BaseURL  string
	Kind     frame.Kind
	ClientID string
}

// SendFunc writes one frame on an open connection.
type SendFunc func(frame []byte) error

// PumpFunc feeds frames through send until ctx is done or send fails.
type PumpFunc func(ctx context.Context, send SendFunc) error

// Strategy opens one connection for a target and runs pump on it. It
// returns when the connection ends; a nil error means the peer closed the
// stream cleanly.
type Strategy interface {
	Stream(ctx context.Context, t Target, pump PumpFunc) error
}

// StrategyFunc adapts a function to Strategy.
type StrategyFunc func(ctx context.Context, t Target, pump PumpFunc) error

func (f StrategyFunc) Stream(ctx context.Context, t Target, pump PumpFunc) error {
	return f(ctx, t, pump)
}

// StatusError is returned when the ingest endpoint answers with a non-2xx
// status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("push: unexpected status %d", e.Code)
}

// rewriteScheme maps ws/wss to http/https (toHTTP) or the reverse.
func rewriteScheme(base string, toHTTP bool) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return nil, fmt.Errorf("push: parse base url: %w", err)
	}
	switch {
	case toHTTP && u.Scheme == "ws":
		u.Scheme = "http"
	case toHTTP && u.Scheme == "wss":
		u.Scheme = "https"
	case !toHTTP && u.Scheme == "http":
		u.Scheme = "ws"
	case !toHTTP && u.Scheme == "https":
		u.Scheme = "wss"
	}
	if u.Host == "" {
		return nil, fmt.Errorf("push: base url %q has no host", base)
	}
	return u, nil
}

// StreamURL is the HTTP ingest URL: {base}/stream/{kind}?clientId={id}.
func StreamURL(t Target) (string, error) {
	u, err := rewriteScheme(t.BaseURL, true)
	if err != nil {
		return "", err
	}
	u.Path += "/stream/" + url.PathEscape(t.Kind.String())
	u.RawQuery = url.Values{"clientId": {t.ClientID}}.Encode()
	return u.String(), nil
}

// WebSocketURL is the WebSocket ingest URL: {base}/stream?type={kind}&clientId={id}.
func WebSocketURL(t Target) (string, error) {
	u, err := rewriteScheme(t.BaseURL, false)
	if err != nil {
		return "", err
	}
	u.Path += "/stream"
	u.RawQuery = url.Values{"type": {t.Kind.String()}, "clientId": {t.ClientID}}.Encode()
	return u.String(), nil
}
