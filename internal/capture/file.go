package capture

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/junsooki/framecast/internal/frame"
)

// FileSource publishes the contents of a JPEG file each time it changes.
// Writers should replace the file atomically (write then rename); partial
// images are skipped until they end with an EOI marker.
type FileSource struct {
	path   string
	latest *frame.Slot

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	lastSeq uint64
	done    chan struct{}
}

func NewFileSource(path string) *FileSource {
	return &FileSource{path: filepath.Clean(path), latest: frame.NewSlot()}
}

func (f *FileSource) Name() string { return "file:" + f.path }

func (f *FileSource) Supported() bool {
	info, err := os.Stat(filepath.Dir(f.path))
	return err == nil && info.IsDir()
}

func (f *FileSource) CaptureOne() ([]byte, error) {
	if err := f.ensureWatching(); err != nil {
		return nil, err
	}
	data, seq := f.latest.Load()
	f.mu.Lock()
	defer f.mu.Unlock()
	if seq == f.lastSeq {
		return nil, nil
	}
	f.lastSeq = seq
	return data, nil
}

func (f *FileSource) ensureWatching() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watcher != nil {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("capture: create watcher: %w", err)
	}
	// Watch the directory so rename-based replacement is seen.
	if err := w.Add(filepath.Dir(f.path)); err != nil {
		w.Close()
		return fmt.Errorf("%w: watch %s: %v", ErrUnsupported, filepath.Dir(f.path), err)
	}
	f.watcher = w
	f.done = make(chan struct{})
	f.reload()
	go f.watch(w, f.done)
	return nil
}

func (f *FileSource) watch(w *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != f.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				f.reload()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			slog.Warn("capture: file watcher error", "path", f.path, "err", err)
		}
	}
}

func (f *FileSource) reload() {
	data, err := os.ReadFile(f.path)
	if err != nil || !completeJPEG(data) {
		return
	}
	f.latest.Write(data)
}

func (f *FileSource) Close() error {
	f.mu.Lock()
	w, done := f.watcher, f.done
	f.watcher = nil
	f.mu.Unlock()
	if w == nil {
		return nil
	}
	err := w.Close()
	<-done
	return err
}

func completeJPEG(b []byte) bool {
	return len(b) >= 4 && bytes.HasPrefix(b, jpegSOI) && bytes.HasSuffix(b, jpegEOI)
}
