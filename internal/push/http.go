package push

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/junsooki/framecast/internal/framing"
)

const DefaultConnectTimeout = 10 * time.Second

// HTTPStrategy pushes a stream as one long-lived chunked POST whose body is
// a sequence of length-prefixed frames.
type HTTPStrategy struct {
	client *http.Client
}

func NewHTTPStrategy(connectTimeout time.Duration) *HTTPStrategy {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: connectTimeout,
		// HTTP/1.1 only: the body is streamed with chunked encoding.
		ForceAttemptHTTP2: false,
	}
	return &HTTPStrategy{client: &http.Client{
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}}
}

func (s *HTTPStrategy) Stream(ctx context.Context, t Target, pump PumpFunc) error {
	target, err := StreamURL(t)
	if err != nil {
		return err
	}

	pr, pw := io.Pipe()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, pr)
	if err != nil {
		return err
	}
	req.ContentLength = -1
	req.Header.Set("Content-Type", "application/octet-stream")

	pumpCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	pumped := make(chan struct{})
	go func() {
		defer close(pumped)
		err := pump(pumpCtx, func(b []byte) error {
			return framing.WriteFrame(pw, b)
		})
		pw.CloseWithError(err)
	}()

	resp, err := s.client.Do(req)
	// The server may answer before the body ends; stop writing either way.
	cancel()
	pr.CloseWithError(io.ErrClosedPipe)
	<-pumped
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}
