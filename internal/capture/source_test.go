package capture

import (
	"bytes"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/junsooki/framecast/internal/frame"
)

func fakeJPEG(body string) []byte {
	return append(append([]byte{0xff, 0xd8}, body...), 0xff, 0xd9)
}

func TestSplitJPEG(t *testing.T) {
	a, b := fakeJPEG("first"), fakeJPEG("second\xff\x00")
	var stream []byte
	stream = append(stream, "junk\xff"...)
	stream = append(stream, a...)
	stream = append(stream, "\x00\x00"...)
	stream = append(stream, b...)
	stream = append(stream, 0xff, 0xd8, 'p', 'a', 'r', 't') // unterminated

	var got [][]byte
	err := SplitJPEG(iotest.OneByteReader(bytes.NewReader(stream)), func(img []byte) {
		got = append(got, img)
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || !bytes.Equal(got[0], a) || !bytes.Equal(got[1], b) {
		t.Fatalf("got %q", got)
	}
}

func TestSplitJPEGBackToBack(t *testing.T) {
	stream := append(fakeJPEG("x"), fakeJPEG("y")...)
	n := 0
	if err := SplitJPEG(bytes.NewReader(stream), func([]byte) { n++ }); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("images = %d, want 2", n)
	}
}

func TestIsWayland(t *testing.T) {
	env := func(m map[string]string) func(string) string {
		return func(k string) string { return m[k] }
	}
	cases := []struct {
		goos string
		env  map[string]string
		want bool
	}{
		{"linux", map[string]string{"WAYLAND_DISPLAY": "wayland-0"}, true},
		{"linux", map[string]string{"XDG_SESSION_TYPE": "wayland"}, true},
		{"linux", map[string]string{"XDG_SESSION_TYPE": "x11", "DISPLAY": ":0"}, false},
		{"darwin", map[string]string{"WAYLAND_DISPLAY": "wayland-0"}, false},
	}
	for _, c := range cases {
		if got := isWayland(c.goos, env(c.env)); got != c.want {
			t.Errorf("isWayland(%s, %v) = %v", c.goos, c.env, got)
		}
	}
}

func TestSyntheticSourceProducesJPEG(t *testing.T) {
	src := NewSyntheticSource(frame.KindScreen, 64, 48)
	data, err := src.CaptureOne()
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 64 || cfg.Height != 48 {
		t.Fatalf("size %dx%d", cfg.Width, cfg.Height)
	}
	next, _ := src.CaptureOne()
	if bytes.Equal(data, next) {
		t.Fatal("pattern did not move between frames")
	}
}

func TestFileSourceFollowsReplacements(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frame.jpg")
	replace := func(data []byte) {
		tmp := filepath.Join(dir, "frame.tmp")
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.Rename(tmp, path); err != nil {
			t.Fatal(err)
		}
	}
	replace(fakeJPEG("one"))

	src := NewFileSource(path)
	defer src.Close()
	if !src.Supported() {
		t.Fatal("temp dir reported unsupported")
	}
	got, err := src.CaptureOne()
	if err != nil || !bytes.Equal(got, fakeJPEG("one")) {
		t.Fatalf("first capture = %q, %v", got, err)
	}
	if again, _ := src.CaptureOne(); again != nil {
		t.Fatalf("unchanged file returned %q", again)
	}

	replace(fakeJPEG("two"))
	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err = src.CaptureOne()
		if err != nil {
			t.Fatal(err)
		}
		if bytes.Equal(got, fakeJPEG("two")) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("replacement not observed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestFileSourceIgnoresPartialImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frame.jpg")
	if err := os.WriteFile(path, []byte{0xff, 0xd8, 1, 2, 3}, 0o644); err != nil {
		t.Fatal(err)
	}
	src := NewFileSource(path)
	defer src.Close()
	if got, err := src.CaptureOne(); err != nil || got != nil {
		t.Fatalf("partial image captured: %q, %v", got, err)
	}
}

func TestFileSourceMissingDirectory(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "nope", "frame.jpg"))
	if src.Supported() {
		t.Fatal("missing directory reported supported")
	}
}

func TestProbe(t *testing.T) {
	if src, err := Probe(frame.KindScreen, "off", Options{}); src != nil || err != nil {
		t.Fatalf("off = %v, %v", src, err)
	}
	src, err := Probe(frame.KindWebcam, "synthetic", Options{})
	if err != nil || src.Name() != "synthetic" {
		t.Fatalf("synthetic = %v, %v", src, err)
	}
	src, err = Probe(frame.KindScreen, "file:/tmp/x.jpg", Options{})
	if err != nil || !strings.HasPrefix(src.Name(), "file:") {
		t.Fatalf("file = %v, %v", src, err)
	}
	if _, err := Probe(frame.KindScreen, "file:", Options{}); err == nil {
		t.Fatal("empty file path accepted")
	}
	if _, err := Probe(frame.KindScreen, "v4l2", Options{}); err == nil {
		t.Fatal("unknown selector accepted")
	}
}

func TestFFmpegArgsWriteToStdout(t *testing.T) {
	opts := NewCameraSource(CameraOptions{}).opts
	args := strings.Join(ffmpegArgs(opts), " ")
	for _, want := range []string{"-f " + cameraInputFormat, "-video_size 640x480", "-f mjpeg", "pipe:1"} {
		if !strings.Contains(args, want) {
			t.Errorf("args %q missing %q", args, want)
		}
	}
}

func TestCameraSourceUnsupportedWithoutFFmpeg(t *testing.T) {
	src := NewCameraSource(CameraOptions{FFmpeg: "ffmpeg-does-not-exist-xyz"})
	if src.Supported() {
		t.Fatal("missing ffmpeg reported supported")
	}
}
