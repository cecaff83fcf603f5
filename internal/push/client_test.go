package push

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/junsooki/framecast/internal/frame"
	"github.com/junsooki/framecast/internal/framing"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

type stateLog struct {
	mu     sync.Mutex
	states []State
}

func (l *stateLog) record(_ frame.Kind, s State) {
	l.mu.Lock()
	l.states = append(l.states, s)
	l.mu.Unlock()
}

func (l *stateLog) snapshot() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.states...)
}

func TestHTTPStreamDeliversLengthPrefixedFrames(t *testing.T) {
	type request struct {
		method, path, clientID, contentType string
		chunked                             bool
	}
	reqs := make(chan request, 4)
	frames := make(chan []byte, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqs <- request{
			method:      r.Method,
			path:        r.URL.Path,
			clientID:    r.URL.Query().Get("clientId"),
			contentType: r.Header.Get("Content-Type"),
			chunked:     len(r.TransferEncoding) > 0 && r.TransferEncoding[0] == "chunked",
		}
		for {
			f, err := framing.ReadFrame(r.Body, nil)
			if err != nil {
				return
			}
			frames <- f
		}
	}))
	defer srv.Close()

	slot := frame.NewSlot()
	slot.Write([]byte("jpeg-1"))
	c := NewClient(frame.KindScreen, slot, NewHTTPStrategy(time.Second), Config{
		BaseURL:      srv.URL,
		ClientID:     "abc-123",
		SendInterval: 10 * time.Millisecond,
	})
	c.Start(context.Background())
	defer c.Stop()

	req := <-reqs
	if req.method != http.MethodPost || req.path != "/stream/screen" || req.clientID != "abc-123" {
		t.Fatalf("request = %+v", req)
	}
	if req.contentType != "application/octet-stream" || !req.chunked {
		t.Fatalf("request = %+v, want chunked octet-stream", req)
	}

	if got := <-frames; string(got) != "jpeg-1" {
		t.Fatalf("first frame = %q", got)
	}
	slot.Write([]byte("jpeg-2"))
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-frames:
			if string(got) == "jpeg-2" {
				if c.State() != StateStreaming {
					t.Fatalf("state = %v, want streaming", c.State())
				}
				return
			}
			if string(got) != "jpeg-1" {
				t.Fatalf("unexpected frame %q", got)
			}
		case <-deadline:
			t.Fatal("updated frame never arrived")
		}
	}
}

func TestHTTPStreamSkipsEmptySlot(t *testing.T) {
	var bodyBytes atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, _ := io.Copy(io.Discard, r.Body)
		bodyBytes.Add(n)
	}))
	defer srv.Close()

	c := NewClient(frame.KindWebcam, frame.NewSlot(), NewHTTPStrategy(time.Second), Config{
		BaseURL:      srv.URL,
		ClientID:     "x",
		SendInterval: 5 * time.Millisecond,
	})
	c.Start(context.Background())
	waitFor(t, 2*time.Second, func() bool { return c.State() == StateStreaming })
	time.Sleep(50 * time.Millisecond)
	c.Stop()
	if c.Sent() != 0 || bodyBytes.Load() != 0 {
		t.Fatalf("sent %d frames (%d bytes) from an empty slot", c.Sent(), bodyBytes.Load())
	}
}

func TestReconnectsAtFixedDelay(t *testing.T) {
	var mu sync.Mutex
	var times []time.Time
	failing := StrategyFunc(func(ctx context.Context, _ Target, _ PumpFunc) error {
		mu.Lock()
		times = append(times, time.Now())
		mu.Unlock()
		return errors.New("connection refused")
	})

	delay := 40 * time.Millisecond
	c := NewClient(frame.KindScreen, frame.NewSlot(), failing, Config{BaseURL: "http://unused", ReconnectDelay: delay})
	c.Start(context.Background())
	waitFor(t, 3*time.Second, func() bool { return c.Attempts() >= 5 })
	c.Stop()

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(times); i++ {
		gap := times[i].Sub(times[i-1])
		if gap < delay-5*time.Millisecond || gap > delay*5 {
			t.Fatalf("gap %d = %v, want about %v", i, gap, delay)
		}
	}
}

func TestStopDuringBackoffPreventsFurtherAttempts(t *testing.T) {
	failing := StrategyFunc(func(context.Context, Target, PumpFunc) error {
		return errors.New("unreachable")
	})
	var log stateLog
	c := NewClient(frame.KindScreen, frame.NewSlot(), failing, Config{BaseURL: "http://unused", ReconnectDelay: time.Hour})
	c.OnStateChange(log.record)
	c.Start(context.Background())
	waitFor(t, time.Second, func() bool { return c.State() == StateDisconnected })

	start := time.Now()
	c.Stop()
	if d := time.Since(start); d > 500*time.Millisecond {
		t.Fatalf("Stop took %v", d)
	}
	if c.State() != StateStopped {
		t.Fatalf("state = %v, want stopped", c.State())
	}
	time.Sleep(50 * time.Millisecond)
	if n := c.Attempts(); n != 1 {
		t.Fatalf("attempts = %d, want 1", n)
	}
	want := []State{StateConnecting, StateDisconnected, StateStopped}
	got := log.snapshot()
	if len(got) != len(want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("states = %v, want %v", got, want)
		}
	}
}

func TestStopWhileStreamingDoesNotReconnect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
	}))
	defer srv.Close()

	slot := frame.NewSlot()
	slot.Write([]byte("f"))
	c := NewClient(frame.KindScreen, slot, NewHTTPStrategy(time.Second), Config{
		BaseURL:        srv.URL,
		ClientID:       "x",
		SendInterval:   5 * time.Millisecond,
		ReconnectDelay: 10 * time.Millisecond,
	})
	c.Start(context.Background())
	waitFor(t, 2*time.Second, func() bool { return c.Sent() >= 3 })
	c.Stop()
	c.Stop()
	time.Sleep(50 * time.Millisecond)
	if c.Attempts() != 1 || c.State() != StateStopped {
		t.Fatalf("attempts = %d state = %v", c.Attempts(), c.State())
	}
}

func TestServerCloseTriggersReconnect(t *testing.T) {
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conns.Add(1)
		// Accept one frame, then answer without draining the body.
		http.NewResponseController(w).EnableFullDuplex()
		framing.ReadFrame(r.Body, nil)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	slot := frame.NewSlot()
	slot.Write([]byte("frame"))
	c := NewClient(frame.KindWebcam, slot, NewHTTPStrategy(time.Second), Config{
		BaseURL:        srv.URL,
		ClientID:       "x",
		SendInterval:   5 * time.Millisecond,
		ReconnectDelay: 20 * time.Millisecond,
	})
	c.Start(context.Background())
	defer c.Stop()
	waitFor(t, 5*time.Second, func() bool { return conns.Load() >= 3 })
}

func TestRedirectsAreNotFollowed(t *testing.T) {
	var followed atomic.Int32
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		followed.Add(1)
	}))
	defer other.Close()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NewResponseController(w).EnableFullDuplex()
		http.Redirect(w, r, other.URL+r.URL.Path, http.StatusTemporaryRedirect)
	}))
	defer srv.Close()

	s := NewHTTPStrategy(time.Second)
	err := s.Stream(context.Background(), Target{BaseURL: srv.URL, Kind: frame.KindScreen, ClientID: "x"},
		func(ctx context.Context, send SendFunc) error {
			<-ctx.Done()
			return ctx.Err()
		})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusTemporaryRedirect {
		t.Fatalf("err = %v, want StatusError 307", err)
	}
	if followed.Load() != 0 {
		t.Fatal("redirect was followed")
	}
}

func TestStreamURL(t *testing.T) {
	cases := []struct {
		base, want string
	}{
		{"http://relay:3000", "http://relay:3000/stream/screen?clientId=id+1"},
		{"ws://relay:3000/", "http://relay:3000/stream/screen?clientId=id+1"},
		{"wss://relay.example.com/base", "https://relay.example.com/base/stream/screen?clientId=id+1"},
	}
	for _, c := range cases {
		got, err := StreamURL(Target{BaseURL: c.base, Kind: frame.KindScreen, ClientID: "id 1"})
		if err != nil || got != c.want {
			t.Errorf("StreamURL(%q) = %q, %v; want %q", c.base, got, err, c.want)
		}
	}
	if _, err := StreamURL(Target{BaseURL: "relay-without-scheme"}); err == nil {
		t.Error("missing host accepted")
	}
}

func TestWebSocketURL(t *testing.T) {
	got, err := WebSocketURL(Target{BaseURL: "https://relay.example.com", Kind: frame.KindWebcam, ClientID: "c"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "wss://relay.example.com/stream?clientId=c&type=webcam" {
		t.Fatalf("url = %q", got)
	}
}

func TestWebSocketStrategySendsBinaryMessages(t *testing.T) {
	upgrader := websocket.Upgrader{}
	type received struct {
		kind, clientID string
		data           []byte
	}
	msgs := make(chan received, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stream" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.BinaryMessage {
				msgs <- received{r.URL.Query().Get("type"), r.URL.Query().Get("clientId"), data}
			}
		}
	}))
	defer srv.Close()

	slot := frame.NewSlot()
	slot.Write(bytes.Repeat([]byte{0xab}, 1000))
	c := NewClient(frame.KindWebcam, slot, NewWebSocketStrategy(time.Second), Config{
		BaseURL:      srv.URL,
		ClientID:     "ws-client",
		SendInterval: 10 * time.Millisecond,
	})
	c.Start(context.Background())
	defer c.Stop()

	select {
	case m := <-msgs:
		if m.kind != "webcam" || m.clientID != "ws-client" || len(m.data) != 1000 {
			t.Fatalf("received %s/%s %d bytes", m.kind, m.clientID, len(m.data))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}
}

func TestWebSocketServerCloseIsCleanDisconnect(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		conn.Close()
	}))
	defer srv.Close()

	s := NewWebSocketStrategy(time.Second)
	err := s.Stream(context.Background(), Target{BaseURL: srv.URL, Kind: frame.KindScreen, ClientID: "x"},
		func(ctx context.Context, send SendFunc) error {
			<-ctx.Done()
			return ctx.Err()
		})
	if err != nil {
		t.Fatalf("err = %v, want nil for a normal close", err)
	}
}

func TestStateString(t *testing.T) {
	names := []string{}
	for s := StateIdle; s <= StateStopped; s++ {
		names = append(names, s.String())
	}
	if got := strings.Join(names, ","); got != "idle,connecting,streaming,disconnected,stopped" {
		t.Fatalf("names = %s", got)
	}
}
