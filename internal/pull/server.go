// Package pull serves the latest frames to viewers that connect to the
// host: MJPEG over HTTP for browsers, and WebRTC data channels for
// viewers that negotiate one.
package pull

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/junsooki/framecast/internal/capture"
	"github.com/junsooki/framecast/internal/frame"
	"github.com/junsooki/framecast/internal/peer"
)

// Stream is one servable stream.
type Stream struct {
	Kind frame.Kind
	Slot *frame.Slot
	// Available reports whether capture is running. Nil means always.
	Available func() bool
	// Stats, when set, adds capture counters to /healthz.
	Stats func() capture.Stats
}

func (s *Stream) available() bool {
	return s != nil && (s.Available == nil || s.Available())
}

type Config struct {
	PollInterval time.Duration
	// WebRTC enables POST /webrtc/{stream} when non-nil.
	WebRTC *peer.Config
}

// Server is the pull-mode http.Handler.
type Server struct {
	cfg     Config
	streams map[frame.Kind]*Stream
	viewers map[frame.Kind]*atomic.Int64
	mux     *http.ServeMux

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewServer(cfg Config, streams ...*Stream) *Server {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	s := &Server{
		cfg:     cfg,
		streams: make(map[frame.Kind]*Stream),
		viewers: make(map[frame.Kind]*atomic.Int64),
		mux:     http.NewServeMux(),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	for _, st := range streams {
		s.streams[st.Kind] = st
	}
	for _, k := range frame.Kinds {
		s.viewers[k] = new(atomic.Int64)
		kind := k
		s.mux.HandleFunc("GET /"+kind.String(), func(w http.ResponseWriter, r *http.Request) {
			s.handleStream(w, r, kind)
		})
	}
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if cfg.WebRTC != nil {
		s.mux.HandleFunc("POST /webrtc/{stream}", s.handleWebRTC)
		s.mux.HandleFunc("OPTIONS /webrtc/{stream}", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusNoContent)
		})
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	s.mux.ServeHTTP(w, r)
}

// Close ends every WebRTC session started by this server.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
}

// Viewers returns the number of connected MJPEG and WebRTC viewers of k.
func (s *Server) Viewers(k frame.Kind) int64 {
	if v := s.viewers[k]; v != nil {
		return v.Load()
	}
	return 0
}

func (s *Server) lookup(w http.ResponseWriter, kind frame.Kind) (*Stream, bool) {
	st := s.streams[kind]
	if !st.available() {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, "%s capture is not available on this host\n", kind)
		return nil, false
	}
	return st, true
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request, kind frame.Kind) {
	st, ok := s.lookup(w, kind)
	if !ok {
		return
	}
	log := slog.With("stream", kind, "remote", r.RemoteAddr)
	n := s.viewers[kind].Add(1)
	log.Info("pull: viewer connected", "viewers", n)
	defer s.viewers[kind].Add(-1)

	start := time.Now()
	sent, err := StreamMJPEG(w, r, st.Slot, s.cfg.PollInterval, st.available)
	if err != nil {
		log.Debug("pull: write failed", "err", err)
	}
	log.Info("pull: viewer disconnected", "frames", sent, "duration", time.Since(start).Round(time.Millisecond))
}

type streamHealth struct {
	Available bool   `json:"available"`
	Frames    uint64 `json:"frames"`
	Bytes     int    `json:"bytes"`
	Viewers   int64  `json:"viewers"`

	Captured  uint64  `json:"captured,omitempty"`
	Failures  uint64  `json:"failures,omitempty"`
	LastSize  int     `json:"lastSize,omitempty"`
	CaptureMs float64 `json:"captureMs,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]streamHealth, len(frame.Kinds))
	for _, k := range frame.Kinds {
		st := s.streams[k]
		h := streamHealth{Available: st.available(), Viewers: s.Viewers(k)}
		if st != nil {
			data, seq := st.Slot.Load()
			h.Frames, h.Bytes = seq, len(data)
			if st.Stats != nil {
				cs := st.Stats()
				h.Captured, h.Failures, h.LastSize = cs.Frames, cs.Failures, cs.LastSize
				h.CaptureMs = float64(cs.LastDuration.Microseconds()) / 1000
			}
		}
		out[k.String()] = h
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"status": "ok", "streams": out})
}

var indexTmpl = template.Must(template.New("index").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>framecast</title>
<style>body{font-family:sans-serif;background:#111;color:#eee}img{max-width:100%;border:1px solid #444}</style>
</head>
<body>
<h1>framecast</h1>
{{range .}}<section>
<h2>{{.Kind}}</h2>
{{if .Available}}<p><a href="/{{.Kind}}">/{{.Kind}}</a></p><img src="/{{.Kind}}" alt="{{.Kind}}">
{{else}}<p>not available on this host</p>{{end}}
</section>
{{end}}</body>
</html>
`))

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		Kind      string
		Available bool
	}
	var entries []entry
	for _, k := range frame.Kinds {
		entries = append(entries, entry{k.String(), s.streams[k].available()})
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(w, entries); err != nil {
		slog.Debug("pull: render index", "err", err)
	}
}
