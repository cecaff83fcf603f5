package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/junsooki/framecast/internal/transport"
)

// Viewer is the offering side: it opens the frames channel, posts its offer
// to a host's /webrtc/{stream} endpoint and receives frames.
type Viewer struct {
	pc        *webrtc.PeerConnection
	transport *transport.DataChannelTransport
	done      chan struct{}
}

func NewViewer(cfg Config) (*Viewer, error) {
	pc, err := NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	dc, err := pc.CreateDataChannel(FramesLabel, nil)
	if err != nil {
		pc.Close()
		return nil, err
	}
	v := &Viewer{
		pc:        pc,
		transport: transport.NewDataChannelTransport(dc),
		done:      make(chan struct{}),
	}
	var once sync.Once
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			once.Do(func() { close(v.done) })
		}
	})
	return v, nil
}

// Transport returns the frame transport; register OnFrame before Connect.
func (v *Viewer) Transport() *transport.DataChannelTransport { return v.transport }

// Done is closed when the session ends.
func (v *Viewer) Done() <-chan struct{} { return v.done }

// Connect creates an offer, waits for ICE gathering, posts it to url and
// applies the answer.
func (v *Viewer) Connect(ctx context.Context, client *http.Client, url string) error {
	offer, err := v.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("peer: create offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(v.pc)
	if err := v.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("peer: set local description: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return ctx.Err()
	}

	body, err := json.Marshal(v.pc.LocalDescription())
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("peer: post offer: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("peer: offer rejected: %s: %s", resp.Status, bytes.TrimSpace(msg))
	}

	var answer webrtc.SessionDescription
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return fmt.Errorf("peer: decode answer: %w", err)
	}
	if err := v.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("peer: set remote description: %w", err)
	}
	return nil
}

// Close shuts down the peer connection.
func (v *Viewer) Close() {
	if v.pc != nil {
		v.pc.Close()
	}
}
