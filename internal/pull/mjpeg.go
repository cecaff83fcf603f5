package pull

import (
	"net/http"
	"time"

	"github.com/junsooki/framecast/internal/frame"
	"github.com/junsooki/framecast/internal/framing"
)

// DefaultPollInterval is how often a connection checks the slot.
const DefaultPollInterval = 100 * time.Millisecond

// StreamMJPEG answers r with a multipart/x-mixed-replace stream of the
// slot's frames. Every interval the current frame, if any, is written as
// one part; a consumer faster than capture sees repeats and a slower one
// skips frames. A non-nil alive is checked every interval and the response
// ends once it reports false. It returns the number of parts written when
// the client goes away, the stream ends or a write fails.
func StreamMJPEG(w http.ResponseWriter, r *http.Request, slot *frame.Slot, interval time.Duration, alive func() bool) (int, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	mw := framing.NewMultipartWriter(w)
	h := w.Header()
	h.Set("Content-Type", mw.ContentType())
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Connection", "close")
	w.WriteHeader(http.StatusOK)
	if err := framing.Flush(w); err != nil {
		return 0, err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	sent := 0
	for {
		if alive != nil && !alive() {
			return sent, nil
		}
		if data := slot.Read(); len(data) > 0 {
			if err := mw.WriteFrame(data); err != nil {
				return sent, err
			}
			sent++
		}
		select {
		case <-r.Context().Done():
			return sent, nil
		case <-ticker.C:
		}
	}
}
