package relay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/junsooki/framecast/internal/frame"
	"github.com/junsooki/framecast/internal/framing"
	"github.com/junsooki/framecast/internal/push"
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

func newRelay(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub()
	ts := httptest.NewServer(NewServer(hub, Config{LivePollInterval: 10 * time.Millisecond}))
	t.Cleanup(func() {
		ts.CloseClientConnections()
		ts.Close()
	})
	return hub, ts
}

// rawIngest opens a chunked POST and returns the body writer.
func rawIngest(t *testing.T, url string) (*io.PipeWriter, <-chan int) {
	t.Helper()
	pr, pw := io.Pipe()
	status := make(chan int, 1)
	go func() {
		resp, err := http.Post(url, "application/octet-stream", pr)
		if err != nil {
			status <- 0
			return
		}
		resp.Body.Close()
		status <- resp.StatusCode
	}()
	return pw, status
}

func TestPushClientIntoRelay(t *testing.T) {
	hub, ts := newRelay(t)

	slot := frame.NewSlot()
	slot.Write([]byte("screen-jpeg"))
	c := push.NewClient(frame.KindScreen, slot, push.NewHTTPStrategy(time.Second), push.Config{
		BaseURL:      ts.URL,
		ClientID:     "host-1",
		SendInterval: 10 * time.Millisecond,
	})
	c.Start(context.Background())

	waitFor(t, 2*time.Second, func() bool {
		s, ok := hub.Slot("host-1", frame.KindScreen)
		return ok && string(s.Read()) == "screen-jpeg"
	})
	streams := hub.Streams()
	if len(streams) != 1 || !streams[0].HasScreen || streams[0].HasWebcam {
		t.Fatalf("streams = %+v", streams)
	}

	c.Stop()
	waitFor(t, 2*time.Second, func() bool { return len(hub.Streams()) == 0 })
}

func TestWebSocketIngest(t *testing.T) {
	hub, ts := newRelay(t)
	slot := frame.NewSlot()
	slot.Write([]byte("cam"))
	c := push.NewClient(frame.KindWebcam, slot, push.NewWebSocketStrategy(time.Second), push.Config{
		BaseURL:      ts.URL,
		ClientID:     "host-ws",
		SendInterval: 10 * time.Millisecond,
	})
	c.Start(context.Background())
	defer c.Stop()

	waitFor(t, 2*time.Second, func() bool {
		s, ok := hub.Slot("host-ws", frame.KindWebcam)
		return ok && string(s.Read()) == "cam"
	})
}

func TestIngestRejectsBadRequests(t *testing.T) {
	_, ts := newRelay(t)
	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodPost, "/stream/audio?clientId=x", http.StatusBadRequest},
		{http.MethodPost, "/stream/screen", http.StatusBadRequest},
		{http.MethodGet, "/stream/screen?clientId=x", http.StatusMethodNotAllowed},
		{http.MethodGet, "/stream?type=screen", http.StatusBadRequest},
	}
	for _, c := range cases {
		req, _ := http.NewRequest(c.method, ts.URL+c.path, strings.NewReader(""))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != c.want {
			t.Errorf("%s %s = %d, want %d", c.method, c.path, resp.StatusCode, c.want)
		}
	}
}

func TestIngestCleanEndReturns200(t *testing.T) {
	hub, ts := newRelay(t)
	pw, status := rawIngest(t, ts.URL+"/stream/webcam?clientId=c1")
	if err := framing.WriteFrame(pw, []byte("one")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 2*time.Second, func() bool { _, ok := hub.Slot("c1", frame.KindWebcam); return ok })
	pw.Close()
	select {
	case code := <-status:
		if code != http.StatusOK {
			t.Fatalf("status = %d", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no response after body ended")
	}
	waitFor(t, time.Second, func() bool { return len(hub.Streams()) == 0 })
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	return msg
}

func TestViewReceivesStreamsAndFrames(t *testing.T) {
	_, ts := newRelay(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/view"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if msg := readMessage(t, conn); msg.Type != TypeStreams || len(msg.Streams) != 0 {
		t.Fatalf("first message = %+v", msg)
	}

	pw, _ := rawIngest(t, ts.URL+"/stream/screen?clientId=pub")
	defer pw.Close()

	msg := readMessage(t, conn)
	if msg.Type != TypeStreams || len(msg.Streams) != 1 || msg.Streams[0].ClientID != "pub" || !msg.Streams[0].HasScreen {
		t.Fatalf("streams message = %+v", msg)
	}

	if err := framing.WriteFrame(pw, []byte{0xff, 0xd8, 1, 2, 0xff, 0xd9}); err != nil {
		t.Fatal(err)
	}
	msg = readMessage(t, conn)
	if msg.Type != TypeFrame || msg.ClientID != "pub" || msg.StreamType != "screen" || len(msg.Data) != 6 {
		t.Fatalf("frame message = %+v", msg)
	}

	// App-level heartbeat.
	if err := conn.WriteJSON(Message{Type: TypePing}); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg.Type != TypePong {
		t.Fatalf("reply = %+v, want pong", msg)
	}
}

func TestLiveMJPEG(t *testing.T) {
	_, ts := newRelay(t)

	resp, err := http.Get(ts.URL + "/live/nobody/screen")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}

	pw, _ := rawIngest(t, ts.URL+"/stream/screen?clientId=live")
	defer pw.Close()
	if err := framing.WriteFrame(pw, []byte("live-frame")); err != nil {
		t.Fatal(err)
	}

	var body io.ReadCloser
	waitFor(t, 2*time.Second, func() bool {
		resp, err := http.Get(ts.URL + "/live/live/screen")
		if err != nil {
			return false
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return false
		}
		body = resp.Body
		mr, err := framing.NewMultipartReader(resp.Body, resp.Header.Get("Content-Type"))
		if err != nil {
			t.Fatal(err)
		}
		part, err := mr.NextFrame()
		if err != nil {
			t.Fatal(err)
		}
		if string(part) != "live-frame" {
			t.Fatalf("part = %q", part)
		}
		return true
	})
	body.Close()
}

func TestLiveEndsWhenPublisherLeaves(t *testing.T) {
	hub, ts := newRelay(t)

	pw, status := rawIngest(t, ts.URL+"/stream/webcam?clientId=gone")
	if err := framing.WriteFrame(pw, []byte("last")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 2*time.Second, func() bool {
		slot, ok := hub.Slot("gone", frame.KindWebcam)
		return ok && slot.Read() != nil
	})

	resp, err := http.Get(ts.URL + "/live/gone/webcam")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	mr, err := framing.NewMultipartReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		t.Fatal(err)
	}
	if part, err := mr.NextFrame(); err != nil || string(part) != "last" {
		t.Fatalf("first part = %q, %v", part, err)
	}

	pw.Close()
	if code := <-status; code != http.StatusOK {
		t.Fatalf("ingest status = %d", code)
	}

	ended := make(chan struct{})
	go func() {
		defer close(ended)
		for {
			if _, err := mr.NextFrame(); err != nil {
				return
			}
		}
	}()
	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("live response kept repeating the last frame")
	}
}

func TestAPIStreams(t *testing.T) {
	hub, ts := newRelay(t)
	hub.Attach("b", frame.KindWebcam)
	hub.Attach("a", frame.KindScreen)

	resp, err := http.Get(ts.URL + "/api/streams")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var got []StreamInfo
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	want := []StreamInfo{{ClientID: "a", HasScreen: true}, {ClientID: "b", HasWebcam: true}}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("streams = %+v", got)
	}
}

func TestSlowViewerDoesNotBlockPublisher(t *testing.T) {
	hub := NewHub()
	v := hub.addViewer()
	defer hub.removeViewer(v)
	slot := hub.Attach("c", frame.KindScreen)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			hub.Publish("c", frame.KindScreen, slot, []byte{byte(i + 1)})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a stalled viewer")
	}
	if len(v.send) != viewerBuffer {
		t.Fatalf("queue = %d, want full (%d)", len(v.send), viewerBuffer)
	}
	if got := slot.Read(); len(got) != 1 || got[0] != 100 {
		t.Fatalf("slot = %v, want last frame", got)
	}
}

func TestDetachKeepsPublisherWhileOtherStreamLive(t *testing.T) {
	hub := NewHub()
	hub.Attach("c", frame.KindScreen)
	hub.Attach("c", frame.KindWebcam)
	hub.Detach("c", frame.KindScreen)
	if _, ok := hub.Slot("c", frame.KindScreen); ok {
		t.Fatal("detached stream still live")
	}
	if _, ok := hub.Slot("c", frame.KindWebcam); !ok {
		t.Fatal("webcam stream dropped")
	}
	hub.Detach("c", frame.KindWebcam)
	if len(hub.Streams()) != 0 {
		t.Fatal("publisher kept after both streams ended")
	}
}
