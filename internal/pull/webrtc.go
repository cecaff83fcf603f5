package pull

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/junsooki/framecast/internal/frame"
	"github.com/junsooki/framecast/internal/peer"
	"github.com/junsooki/framecast/internal/transport"
)

const (
	maxOfferSize     = 64 * 1024
	negotiateTimeout = 10 * time.Second
	openTimeout      = 30 * time.Second
)

func (s *Server) handleWebRTC(w http.ResponseWriter, r *http.Request) {
	kind, err := frame.ParseKind(r.PathValue("stream"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	st, ok := s.lookup(w, kind)
	if !ok {
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxOfferSize)).Decode(&offer); err != nil || offer.SDP == "" {
		http.Error(w, "invalid session description", http.StatusBadRequest)
		return
	}

	host, err := peer.NewHost(*s.cfg.WebRTC)
	if err != nil {
		slog.Error("pull: create peer connection", "err", err)
		http.Error(w, "webrtc unavailable", http.StatusInternalServerError)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), negotiateTimeout)
	defer cancel()
	answer, err := host.HandleOffer(ctx, offer)
	if err != nil {
		host.Close()
		slog.Warn("pull: rejected offer", "stream", kind, "err", err)
		http.Error(w, "could not negotiate session", http.StatusBadRequest)
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer host.Close()
		s.feedPeer(kind, st.Slot, host)
	}()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(answer)
}

// feedPeer sends the slot's frames on the peer's data channel at the poll
// interval until the session or the server ends.
func (s *Server) feedPeer(kind frame.Kind, slot *frame.Slot, host *peer.Host) {
	log := slog.With("stream", kind, "via", "webrtc")
	select {
	case <-host.Opened():
	case <-host.Done():
		return
	case <-s.ctx.Done():
		return
	case <-time.After(openTimeout):
		log.Warn("pull: data channel never opened")
		return
	}

	n := s.viewers[kind].Add(1)
	log.Info("pull: viewer connected", "viewers", n)
	defer s.viewers[kind].Add(-1)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	var sent, dropped int
	var lastSeq uint64
	for {
		// Only frames the viewer has not received yet.
		if data, seq := slot.Load(); seq != lastSeq && len(data) > 0 {
			switch err := host.Transport().SendFrame(data); {
			case err == nil:
				sent++
				lastSeq = seq
			case errors.Is(err, transport.ErrBackpressure):
				dropped++
			default:
				log.Info("pull: viewer disconnected", "frames", sent, "dropped", dropped, "err", err)
				return
			}
		}
		select {
		case <-host.Done():
			log.Info("pull: viewer disconnected", "frames", sent, "dropped", dropped)
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
