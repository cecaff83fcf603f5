package peer

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/junsooki/framecast/internal/transport"
)

// Host is the answering side: it accepts a viewer's offer and sends frames
// on the data channel the viewer opened.
type Host struct {
	pc        *webrtc.PeerConnection
	transport *transport.DataChannelTransport

	opened    chan struct{}
	done      chan struct{}
	openOnce  sync.Once
	closeOnce sync.Once
}

func NewHost(cfg Config) (*Host, error) {
	pc, err := NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	h := &Host{
		pc:        pc,
		transport: transport.NewDataChannelTransport(nil),
		opened:    make(chan struct{}),
		done:      make(chan struct{}),
	}

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != FramesLabel {
			return
		}
		h.transport.SetFramesChannel(dc)
		dc.OnOpen(func() { h.openOnce.Do(func() { close(h.opened) }) })
		dc.OnClose(h.finish)
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			h.finish()
		}
	})
	return h, nil
}

func (h *Host) finish() { h.closeOnce.Do(func() { close(h.done) }) }

// Transport returns the frame transport for the viewer's data channel.
func (h *Host) Transport() *transport.DataChannelTransport { return h.transport }

// Opened is closed when the frames channel is ready.
func (h *Host) Opened() <-chan struct{} { return h.opened }

// Done is closed when the session ends.
func (h *Host) Done() <-chan struct{} { return h.done }

// HandleOffer applies the viewer's offer and returns an answer that already
// contains every local ICE candidate.
func (h *Host) HandleOffer(ctx context.Context, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if offer.Type != webrtc.SDPTypeOffer {
		return nil, fmt.Errorf("peer: expected offer, got %s", offer.Type)
	}
	if err := h.pc.SetRemoteDescription(offer); err != nil {
		return nil, fmt.Errorf("peer: set remote description: %w", err)
	}
	answer, err := h.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("peer: create answer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(h.pc)
	if err := h.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("peer: set local description: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return h.pc.LocalDescription(), nil
}

// Close shuts down the peer connection.
func (h *Host) Close() {
	if h.pc != nil {
		h.pc.Close()
	}
	h.finish()
}
