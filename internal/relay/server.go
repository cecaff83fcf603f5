package relay

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/junsooki/framecast/internal/frame"
	"github.com/junsooki/framecast/internal/framing"
	"github.com/junsooki/framecast/internal/pull"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 25 * time.Second
)

type Config struct {
	// LivePollInterval paces /live MJPEG responses.
	LivePollInterval time.Duration
}

// Server is the relay http.Handler.
type Server struct {
	hub      *Hub
	cfg      Config
	mux      *http.ServeMux
	upgrader websocket.Upgrader
}

func NewServer(hub *Hub, cfg Config) *Server {
	if cfg.LivePollInterval <= 0 {
		cfg.LivePollInterval = pull.DefaultPollInterval
	}
	s := &Server{
		hub: hub,
		cfg: cfg,
		mux: http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.mux.HandleFunc("POST /stream/{kind}", s.handleIngest)
	s.mux.HandleFunc("GET /stream", s.handleIngestWS)
	s.mux.HandleFunc("GET /view", s.handleView)
	s.mux.HandleFunc("GET /live/{client}/{kind}", s.handleLive)
	s.mux.HandleFunc("GET /api/streams", s.handleStreams)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":     "ok",
			"publishers": len(hub.Streams()),
			"viewers":    hub.Viewers(),
		})
	})
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	s.mux.ServeHTTP(w, r)
}

func ingestParams(kindName, clientID string) (frame.Kind, string, error) {
	kind, err := frame.ParseKind(kindName)
	if err != nil {
		return "", "", err
	}
	if clientID == "" {
		return "", "", errors.New("missing clientId")
	}
	return kind, clientID, nil
}

// handleIngest reads a chunked body of length-prefixed frames.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	kind, clientID, err := ingestParams(r.PathValue("kind"), r.URL.Query().Get("clientId"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// Answering must not wait for the rest of an endless body.
	_ = http.NewResponseController(w).EnableFullDuplex()

	slot := s.hub.Attach(clientID, kind)
	defer s.hub.Detach(clientID, kind)

	log := slog.With("client_id", clientID, "stream", kind)
	var n int
	for {
		data, err := framing.ReadFrame(r.Body, nil)
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Info("relay: stream ended", "frames", n)
				w.WriteHeader(http.StatusOK)
				return
			}
			log.Info("relay: stream closed", "frames", n, "err", err)
			if errors.Is(err, framing.ErrFrameTooLarge) {
				http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			}
			return
		}
		if len(data) == 0 {
			continue
		}
		n++
		s.hub.Publish(clientID, kind, slot, data)
	}
}

// handleIngestWS accepts one frame per binary message.
func (s *Server) handleIngestWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind, clientID, err := ingestParams(q.Get("type"), q.Get("clientId"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetReadLimit(framing.MaxFrameSize)

	slot := s.hub.Attach(clientID, kind)
	defer s.hub.Detach(clientID, kind)

	var n int
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			slog.Info("relay: websocket stream ended", "client_id", clientID, "stream", kind, "frames", n)
			return
		}
		if mt != websocket.BinaryMessage || len(data) == 0 {
			continue
		}
		n++
		s.hub.Publish(clientID, kind, slot, data)
	}
}

// handleView streams the publisher list and every frame to a browser.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	v := s.hub.addViewer()
	defer s.hub.removeViewer(v)
	slog.Info("relay: viewer connected", "remote", r.RemoteAddr, "viewers", s.hub.Viewers())

	done := make(chan struct{})
	go s.readViewer(conn, v, done)
	defer conn.Close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg := <-v.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			slog.Info("relay: viewer disconnected", "remote", r.RemoteAddr)
			return
		}
	}
}

// readViewer answers app-level pings and detects the viewer leaving.
func (s *Server) readViewer(conn *websocket.Conn, v *viewer, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	pong, _ := json.Marshal(Message{Type: TypePong})
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		if msg.Type == TypePing {
			select {
			case v.send <- pong:
			default:
			}
		}
	}
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	kind, err := frame.ParseKind(r.PathValue("kind"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	clientID := r.PathValue("client")
	slot, ok := s.hub.Slot(clientID, kind)
	if !ok {
		http.Error(w, "stream not live", http.StatusNotFound)
		return
	}
	// A reconnecting publisher gets a new slot; this response ends with the old one.
	live := func() bool {
		cur, ok := s.hub.Slot(clientID, kind)
		return ok && cur == slot
	}
	sent, _ := pull.StreamMJPEG(w, r, slot, s.cfg.LivePollInterval, live)
	slog.Debug("relay: live viewer left", "client_id", clientID, "stream", kind, "frames", sent)
}

func (s *Server) handleStreams(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.hub.Streams())
}
