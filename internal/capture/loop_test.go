package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/junsooki/framecast/internal/frame"
)

type fakeSource struct {
	supported bool
	delay     time.Duration

	mu    sync.Mutex
	calls int
	step  func(call int) ([]byte, error)
}

func (f *fakeSource) Name() string    { return "fake" }
func (f *fakeSource) Supported() bool { return f.supported }

func (f *fakeSource) CaptureOne() ([]byte, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if f.step == nil {
		return []byte(fmt.Sprintf("frame-%d", n)), nil
	}
	return f.step(n)
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

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

func TestLoopPublishesLatestFrame(t *testing.T) {
	src := &fakeSource{supported: true}
	slot := frame.NewSlot()
	l := NewLoop(frame.KindScreen, src, slot, LoopConfig{FPS: 100})
	l.Start(context.Background())
	defer l.Stop()

	waitFor(t, 2*time.Second, func() bool {
		_, seq := slot.Load()
		return seq >= 3
	})
	l.Stop()
	data, seq := slot.Load()
	if want := fmt.Sprintf("frame-%d", src.Calls()); string(data) != want || seq != uint64(src.Calls()) {
		t.Fatalf("slot = %q (seq %d), want %q", data, seq, want)
	}
	if st := l.Stats(); st.Frames != seq || st.LastSize != len(data) {
		t.Fatalf("stats = %+v", st)
	}
}

func TestLoopPacesToInterval(t *testing.T) {
	src := &fakeSource{supported: true}
	l := NewLoop(frame.KindScreen, src, frame.NewSlot(), LoopConfig{FPS: 20})
	l.Start(context.Background())
	time.Sleep(500 * time.Millisecond)
	l.Stop()

	// 50ms interval over 500ms: about 10 captures.
	if n := src.Calls(); n < 5 || n > 13 {
		t.Fatalf("captures = %d, want about 10", n)
	}
}

func TestLoopSlowSourceDoesNotSleep(t *testing.T) {
	src := &fakeSource{supported: true, delay: 40 * time.Millisecond}
	l := NewLoop(frame.KindWebcam, src, frame.NewSlot(), LoopConfig{FPS: 100})
	l.Start(context.Background())
	time.Sleep(400 * time.Millisecond)
	l.Stop()

	// Capture alone takes 4x the interval, so the rate is bounded by the source.
	if n := src.Calls(); n < 5 || n > 11 {
		t.Fatalf("captures = %d, want about 10", n)
	}
}

func TestLoopContinuesAfterTransientErrors(t *testing.T) {
	src := &fakeSource{supported: true, step: func(n int) ([]byte, error) {
		if n <= 3 {
			return nil, errors.New("device busy")
		}
		return []byte("ok"), nil
	}}
	slot := frame.NewSlot()
	l := NewLoop(frame.KindWebcam, src, slot, LoopConfig{FPS: 100})
	l.Start(context.Background())
	defer l.Stop()

	waitFor(t, 2*time.Second, func() bool { return string(slot.Read()) == "ok" })
	if st := l.Stats(); st.Failures != 3 {
		t.Fatalf("failures = %d, want 3", st.Failures)
	}
	if !l.Available() {
		t.Fatal("transient errors disabled the stream")
	}
}

func TestLoopSkipsEmptyCaptures(t *testing.T) {
	src := &fakeSource{supported: true, step: func(n int) ([]byte, error) {
		if n == 1 {
			return []byte("first"), nil
		}
		return nil, nil
	}}
	slot := frame.NewSlot()
	l := NewLoop(frame.KindScreen, src, slot, LoopConfig{FPS: 100})
	l.Start(context.Background())
	waitFor(t, 2*time.Second, func() bool { return src.Calls() >= 5 })
	l.Stop()

	if data, seq := slot.Load(); string(data) != "first" || seq != 1 {
		t.Fatalf("slot = %q seq %d, want first frame kept", data, seq)
	}
}

func TestLoopUnsupportedAtStart(t *testing.T) {
	src := &fakeSource{supported: false}
	slot := frame.NewSlot()
	l := NewLoop(frame.KindScreen, src, slot, LoopConfig{})
	if err := l.Run(context.Background()); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("Run = %v, want ErrUnsupported", err)
	}
	if l.Available() {
		t.Fatal("stream still available")
	}
	if src.Calls() != 0 || slot.Read() != nil {
		t.Fatal("unsupported source was captured from")
	}
}

func TestLoopUnsupportedDuringCapture(t *testing.T) {
	src := &fakeSource{supported: true, step: func(n int) ([]byte, error) {
		return nil, fmt.Errorf("grab: %w", ErrUnsupported)
	}}
	l := NewLoop(frame.KindScreen, src, frame.NewSlot(), LoopConfig{FPS: 100})
	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()
	select {
	case err := <-done:
		if !errors.Is(err, ErrUnsupported) {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("loop kept running after ErrUnsupported")
	}
	if src.Calls() != 1 {
		t.Fatalf("calls = %d, want 1", src.Calls())
	}
}

func TestLoopStopInterruptsSleep(t *testing.T) {
	src := &fakeSource{supported: true}
	l := NewLoop(frame.KindScreen, src, frame.NewSlot(), LoopConfig{FPS: 1})
	l.Start(context.Background())
	waitFor(t, time.Second, func() bool { return src.Calls() == 1 })

	start := time.Now()
	l.Stop()
	if d := time.Since(start); d > 200*time.Millisecond {
		t.Fatalf("Stop took %v", d)
	}
	l.Stop()
}

func TestLoopStopsOnParentCancel(t *testing.T) {
	src := &fakeSource{supported: true}
	l := NewLoop(frame.KindScreen, src, frame.NewSlot(), LoopConfig{FPS: 50})
	ctx, cancel := context.WithCancel(context.Background())
	l.Start(ctx)
	cancel()
	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("loop did not exit after parent cancel")
	}
}

type closingSource struct {
	fakeSource
	closed atomic.Bool
}

func (c *closingSource) Close() error {
	c.closed.Store(true)
	return nil
}

func TestLoopClosesSource(t *testing.T) {
	src := &closingSource{fakeSource: fakeSource{supported: true}}
	l := NewLoop(frame.KindWebcam, src, frame.NewSlot(), LoopConfig{FPS: 50})
	l.Start(context.Background())
	l.Stop()
	if !src.closed.Load() {
		t.Fatal("source was not closed")
	}
}
