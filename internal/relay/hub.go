// Package relay accepts pushed streams from hosts and fans them out to
// viewers over WebSocket and MJPEG.
package relay

import (
	"encoding/json"
	"log/slog"
	"sort"
	"sync"

	"github.com/junsooki/framecast/internal/frame"
)

// viewerBuffer is the per-viewer queue; frames beyond it are dropped.
const viewerBuffer = 8

type publisher struct {
	id     string
	slots  map[frame.Kind]*frame.Slot
	active map[frame.Kind]int
}

func (p *publisher) live() bool {
	for _, n := range p.active {
		if n > 0 {
			return true
		}
	}
	return false
}

type viewer struct {
	send chan []byte
}

// Hub tracks publishers and viewers.
type Hub struct {
	mu         sync.RWMutex
	publishers map[string]*publisher
	viewers    map[*viewer]struct{}
}

func NewHub() *Hub {
	return &Hub{
		publishers: make(map[string]*publisher),
		viewers:    make(map[*viewer]struct{}),
	}
}

// Attach registers an incoming connection for (clientID, kind) and returns
// the slot it should write to. Detach must be called when it ends.
func (h *Hub) Attach(clientID string, kind frame.Kind) *frame.Slot {
	h.mu.Lock()
	p := h.publishers[clientID]
	if p == nil {
		p = &publisher{id: clientID, slots: make(map[frame.Kind]*frame.Slot), active: make(map[frame.Kind]int)}
		h.publishers[clientID] = p
	}
	slot := p.slots[kind]
	if slot == nil {
		slot = frame.NewSlot()
		p.slots[kind] = slot
	}
	p.active[kind]++
	h.mu.Unlock()

	slog.Info("relay: publisher connected", "client_id", clientID, "stream", kind)
	h.broadcastStreams()
	return slot
}

// Detach ends one connection. The publisher is forgotten once none of its
// streams has a connection.
func (h *Hub) Detach(clientID string, kind frame.Kind) {
	h.mu.Lock()
	if p := h.publishers[clientID]; p != nil {
		if p.active[kind] > 0 {
			p.active[kind]--
		}
		if !p.live() {
			delete(h.publishers, clientID)
		}
	}
	h.mu.Unlock()

	slog.Info("relay: publisher disconnected", "client_id", clientID, "stream", kind)
	h.broadcastStreams()
}

// Slot returns the slot of a live stream.
func (h *Hub) Slot(clientID string, kind frame.Kind) (*frame.Slot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p := h.publishers[clientID]
	if p == nil || p.active[kind] == 0 {
		return nil, false
	}
	return p.slots[kind], true
}

// Streams lists live publishers ordered by client ID.
func (h *Hub) Streams() []StreamInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]StreamInfo, 0, len(h.publishers))
	for id, p := range h.publishers {
		out = append(out, StreamInfo{
			ClientID:  id,
			HasScreen: p.active[frame.KindScreen] > 0,
			HasWebcam: p.active[frame.KindWebcam] > 0,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}

// Publish stores a frame and forwards it to every viewer.
func (h *Hub) Publish(clientID string, kind frame.Kind, slot *frame.Slot, data []byte) {
	slot.Write(data)
	if h.Viewers() == 0 {
		return
	}
	msg, err := json.Marshal(Message{Type: TypeFrame, ClientID: clientID, StreamType: kind.String(), Data: data})
	if err != nil {
		return
	}
	h.broadcast(msg)
}

// addViewer registers a viewer whose queue starts with the stream list.
func (h *Hub) addViewer() *viewer {
	v := &viewer{send: make(chan []byte, viewerBuffer)}
	v.send <- h.streamsMessage()
	h.mu.Lock()
	h.viewers[v] = struct{}{}
	h.mu.Unlock()
	return v
}

func (h *Hub) removeViewer(v *viewer) {
	h.mu.Lock()
	delete(h.viewers, v)
	h.mu.Unlock()
}

// Viewers returns the number of connected /view clients.
func (h *Hub) Viewers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.viewers)
}

func (h *Hub) streamsMessage() []byte {
	msg, _ := json.Marshal(Message{Type: TypeStreams, Streams: h.Streams()})
	return msg
}

func (h *Hub) broadcastStreams() {
	h.broadcast(h.streamsMessage())
}

// broadcast never blocks: a viewer whose queue is full misses msg.
func (h *Hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for v := range h.viewers {
		select {
		case v.send <- msg:
		default:
		}
	}
}
