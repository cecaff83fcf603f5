// Package peer negotiates WebRTC sessions that carry frames on a data
// channel, using a single HTTP round trip for signaling.
package peer

import (
	"log/slog"

	"github.com/pion/webrtc/v4"
)

// FramesLabel is the label of the data channel frames travel on.
const FramesLabel = "frames"

// DefaultICEServers are public STUN servers used when none are configured.
var DefaultICEServers = []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"}

type Config struct {
	ICEServers []string
	// IncludeLoopback gathers 127.0.0.1 candidates, for same-host peers.
	IncludeLoopback bool
}

// NewPeerConnection creates a configured PeerConnection.
func NewPeerConnection(cfg Config) (*webrtc.PeerConnection, error) {
	var se webrtc.SettingEngine
	se.SetIncludeLoopbackCandidate(cfg.IncludeLoopback)
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))

	var servers []webrtc.ICEServer
	if len(cfg.ICEServers) > 0 {
		servers = []webrtc.ICEServer{{URLs: cfg.ICEServers}}
	}
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
	if err != nil {
		return nil, err
	}
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		slog.Debug("peer: connection state", "state", state.String())
	})
	return pc, nil
}
