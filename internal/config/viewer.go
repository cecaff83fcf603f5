package config

import (
	"errors"
	"flag"
	"time"

	"github.com/junsooki/framecast/internal/frame"
)

// ViewerConfig configures the desktop viewer. Exactly one of MJPEGURL,
// RelayURL and WebRTCURL is set.
type ViewerConfig struct {
	MJPEGURL       string        `yaml:"mjpeg_url"`
	RelayURL       string        `yaml:"relay_url"`
	WebRTCURL      string        `yaml:"webrtc_url"`
	ClientID       string        `yaml:"client_id"`
	Stream         string        `yaml:"stream"`
	ICEServers     []string      `yaml:"ice_servers"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	Log            LogConfig     `yaml:"log"`
}

func DefaultViewerConfig() *ViewerConfig {
	return &ViewerConfig{
		Stream:         string(frame.KindScreen),
		ReconnectDelay: 2 * time.Second,
	}
}

// ParseViewerFlags parses flags for the viewer binary.
func ParseViewerFlags(args []string) (*ViewerConfig, error) {
	cfg := DefaultViewerConfig()
	err := parse("framecast-viewer", args, cfg, func(fs *flag.FlagSet) {
		fs.StringVar(&cfg.MJPEGURL, "url", cfg.MJPEGURL, "MJPEG stream URL, e.g. http://host:8080/screen")
		fs.StringVar(&cfg.RelayURL, "relay", cfg.RelayURL, "Relay viewer WebSocket URL, e.g. ws://relay:3000/view")
		fs.StringVar(&cfg.WebRTCURL, "webrtc", cfg.WebRTCURL, "Host WebRTC endpoint, e.g. http://host:8080/webrtc/screen")
		fs.StringVar(&cfg.ClientID, "client", cfg.ClientID, "Publisher client ID to follow on the relay (first seen if empty)")
		fs.StringVar(&cfg.Stream, "stream", cfg.Stream, "Stream to follow on the relay: screen or webcam")
		fs.Func("ice", "Comma-separated STUN/TURN URLs for WebRTC", func(s string) error {
			cfg.ICEServers = splitList(s)
			return nil
		})
		fs.DurationVar(&cfg.ReconnectDelay, "reconnect", cfg.ReconnectDelay, "Delay between reconnect attempts")
		cfg.Log.bind(fs)
	})
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *ViewerConfig) Validate() error {
	n := 0
	for _, s := range []string{c.MJPEGURL, c.RelayURL, c.WebRTCURL} {
		if s != "" {
			n++
		}
	}
	if n != 1 {
		return errors.New("config: set exactly one of -url, -relay or -webrtc")
	}
	var errs []error
	if c.MJPEGURL != "" {
		errs = append(errs, checkURL("url", c.MJPEGURL, "http", "https"))
	}
	if c.WebRTCURL != "" {
		errs = append(errs, checkURL("webrtc", c.WebRTCURL, "http", "https"))
	}
	if c.RelayURL != "" {
		errs = append(errs, checkURL("relay", c.RelayURL, "ws", "wss"))
		if _, err := frame.ParseKind(c.Stream); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, positive("reconnect", c.ReconnectDelay))
	return errors.Join(errs...)
}
