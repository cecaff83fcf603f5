package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"

	"github.com/junsooki/framecast/internal/frame"
)

const (
	DefaultCameraWidth  = 640
	DefaultCameraHeight = 480

	// maxJPEGSize drops a partial image that never terminates.
	maxJPEGSize = 8 * 1024 * 1024
)

var (
	jpegSOI = []byte{0xff, 0xd8}
	jpegEOI = []byte{0xff, 0xd9}
)

type CameraOptions struct {
	Device string
	Width  int
	Height int
	FPS    int
	// FFmpeg is the ffmpeg binary; looked up on PATH when empty.
	FFmpeg string
}

// CameraSource reads an MJPEG stream from an ffmpeg child process and
// returns the newest complete image on each capture. The process is started
// on first use and restarted after it exits.
type CameraSource struct {
	opts   CameraOptions
	latest *frame.Slot

	mu      sync.Mutex
	cancel  context.CancelFunc
	exited  chan struct{}
	exitErr error
	lastSeq uint64
}

func NewCameraSource(opts CameraOptions) *CameraSource {
	if opts.Width <= 0 {
		opts.Width = DefaultCameraWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultCameraHeight
	}
	if opts.FPS <= 0 {
		opts.FPS = DefaultFPS
	}
	if opts.FFmpeg == "" {
		opts.FFmpeg = "ffmpeg"
	}
	if opts.Device == "" {
		opts.Device = defaultCameraDevice
	}
	return &CameraSource{opts: opts, latest: frame.NewSlot()}
}

func (c *CameraSource) Name() string { return "webcam/ffmpeg-" + cameraInputFormat }

func (c *CameraSource) Supported() bool {
	if _, err := exec.LookPath(c.opts.FFmpeg); err != nil {
		return false
	}
	return cameraDevicePresent(c.opts.Device)
}

func (c *CameraSource) CaptureOne() ([]byte, error) {
	if err := c.ensureRunning(); err != nil {
		return nil, err
	}
	data, seq := c.latest.Load()
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq == c.lastSeq {
		return nil, nil
	}
	c.lastSeq = seq
	return data, nil
}

func (c *CameraSource) ensureRunning() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.exited != nil {
		select {
		case <-c.exited:
			err := c.exitErr
			c.cancel()
			c.exited, c.cancel, c.exitErr = nil, nil, nil
			if err == nil {
				err = io.EOF
			}
			return fmt.Errorf("capture: ffmpeg exited: %w", err)
		default:
			return nil
		}
	}

	path, err := exec.LookPath(c.opts.FFmpeg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, path, ffmpegArgs(c.opts)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("capture: ffmpeg stdout: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("capture: start ffmpeg: %w", err)
	}
	slog.Debug("capture: ffmpeg started", "pid", cmd.Process.Pid, "device", c.opts.Device)

	exited := make(chan struct{})
	c.cancel, c.exited = cancel, exited
	go func() {
		splitErr := SplitJPEG(stdout, c.latest.Write)
		waitErr := cmd.Wait()
		c.mu.Lock()
		switch {
		case waitErr != nil && stderr.Len() > 0:
			c.exitErr = fmt.Errorf("%w: %s", waitErr, lastLine(stderr.Bytes()))
		case waitErr != nil:
			c.exitErr = waitErr
		default:
			c.exitErr = splitErr
		}
		c.mu.Unlock()
		close(exited)
	}()
	return nil
}

// Close stops the ffmpeg process if one is running.
func (c *CameraSource) Close() error {
	c.mu.Lock()
	cancel, exited := c.cancel, c.exited
	c.cancel, c.exited = nil, nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		<-exited
	}
	return nil
}

func ffmpegArgs(o CameraOptions) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	args = append(args, cameraInputArgs(o)...)
	return append(args,
		"-f", "mjpeg",
		"-q:v", "5",
		"-r", strconv.Itoa(o.FPS),
		"pipe:1",
	)
}

func commonInputArgs(o CameraOptions) []string {
	return []string{
		"-f", cameraInputFormat,
		"-framerate", strconv.Itoa(o.FPS),
		"-video_size", fmt.Sprintf("%dx%d", o.Width, o.Height),
	}
}

// SplitJPEG scans a concatenated MJPEG byte stream and calls emit with each
// complete SOI..EOI image. emit owns the slice it receives. SplitJPEG
// returns nil at EOF.
func SplitJPEG(r io.Reader, emit func([]byte)) error {
	br := bufio.NewReaderSize(r, 64*1024)
	var cur []byte
	inImage := false
	var prev byte
	for {
		b, err := br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if !inImage {
			if prev == jpegSOI[0] && b == jpegSOI[1] {
				inImage = true
				cur = append(cur[:0], jpegSOI...)
			}
			prev = b
			continue
		}
		cur = append(cur, b)
		if prev == jpegEOI[0] && b == jpegEOI[1] {
			out := make([]byte, len(cur))
			copy(out, cur)
			emit(out)
			inImage = false
			b = 0
		} else if len(cur) > maxJPEGSize {
			inImage = false
			cur = cur[:0]
		}
		prev = b
	}
}

func lastLine(b []byte) string {
	b = bytes.TrimSpace(b)
	if i := bytes.LastIndexByte(b, '\n'); i >= 0 {
		b = b[i+1:]
	}
	return string(b)
}
