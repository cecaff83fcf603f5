package relay

// Message types sent to /view clients.
const (
	TypeStreams = "streams"
	TypeFrame   = "frame"
	TypePing    = "ping"
	TypePong    = "pong"
	TypeError   = "error"
)

// Message is the envelope for all viewer messages. Data is base64 in JSON.
type Message struct {
	Type       string       `json:"type"`
	Streams    []StreamInfo `json:"streams,omitempty"`
	ClientID   string       `json:"clientId,omitempty"`
	StreamType string       `json:"streamType,omitempty"`
	Data       []byte       `json:"data,omitempty"`
	Msg        string       `json:"message,omitempty"`
}

// StreamInfo describes one publishing client.
type StreamInfo struct {
	ClientID  string `json:"clientId"`
	HasScreen bool   `json:"hasScreen"`
	HasWebcam bool   `json:"hasWebcam"`
}
