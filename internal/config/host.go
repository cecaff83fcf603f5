package config

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"
)

const (
	PushHTTP      = "http"
	PushWebSocket = "websocket"
)

type MQTTConfig struct {
	Broker string `yaml:"broker"`
	Prefix string `yaml:"prefix"`
}

// HostConfig configures the capturing host.
type HostConfig struct {
	ClientID string `yaml:"client_id"`

	// Pull server; empty disables it.
	Listen       string        `yaml:"listen"`
	PollInterval time.Duration `yaml:"poll_interval"`
	WebRTC       bool          `yaml:"webrtc"`
	ICEServers   []string      `yaml:"ice_servers"`

	// Push client; empty URL disables it.
	PushURL        string        `yaml:"push_url"`
	PushTransport  string        `yaml:"push_transport"`
	SendInterval   time.Duration `yaml:"send_interval"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// Capture.
	ScreenSource string  `yaml:"screen_source"`
	WebcamSource string  `yaml:"webcam_source"`
	FPS          int     `yaml:"fps"`
	Display      int     `yaml:"display"`
	Scale        float64 `yaml:"scale"`
	Quality      int     `yaml:"quality"`
	CameraDevice string  `yaml:"camera_device"`
	FFmpeg       string  `yaml:"ffmpeg"`

	MQTT MQTTConfig `yaml:"mqtt"`
	Log  LogConfig  `yaml:"log"`
}

func DefaultHostConfig() *HostConfig {
	return &HostConfig{
		Listen:         listenFromEnv(":8080"),
		PollInterval:   100 * time.Millisecond,
		PushTransport:  PushHTTP,
		SendInterval:   100 * time.Millisecond,
		ReconnectDelay: 2 * time.Second,
		ConnectTimeout: 10 * time.Second,
		ScreenSource:   "auto",
		WebcamSource:   "auto",
		FPS:            10,
		Scale:          0.5,
		Quality:        70,
		MQTT:           MQTTConfig{Prefix: "framecast"},
	}
}

// ParseHostFlags parses flags for the host binary.
func ParseHostFlags(args []string) (*HostConfig, error) {
	cfg := DefaultHostConfig()
	err := parse("framecast-host", args, cfg, func(fs *flag.FlagSet) {
		fs.StringVar(&cfg.ClientID, "id", cfg.ClientID, "Client ID sent with pushed streams (auto-generated if empty)")
		fs.StringVar(&cfg.Listen, "listen", cfg.Listen, `Pull server address ("" disables)`)
		fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Pull server frame interval")
		fs.BoolVar(&cfg.WebRTC, "webrtc", cfg.WebRTC, "Serve frames over WebRTC data channels at /webrtc/{stream}")
		fs.Func("ice", "Comma-separated STUN/TURN URLs for WebRTC", func(s string) error {
			cfg.ICEServers = splitList(s)
			return nil
		})
		fs.StringVar(&cfg.PushURL, "push", cfg.PushURL, "Relay base URL to push streams to")
		fs.StringVar(&cfg.PushTransport, "push-transport", cfg.PushTransport, "Push transport: http or websocket")
		fs.DurationVar(&cfg.SendInterval, "send-interval", cfg.SendInterval, "Push frame interval")
		fs.DurationVar(&cfg.ReconnectDelay, "reconnect", cfg.ReconnectDelay, "Delay between push reconnect attempts")
		fs.DurationVar(&cfg.ConnectTimeout, "connect-timeout", cfg.ConnectTimeout, "Push connect timeout")
		fs.StringVar(&cfg.ScreenSource, "screen", cfg.ScreenSource, "Screen source: auto, synthetic, file:<path> or off")
		fs.StringVar(&cfg.WebcamSource, "webcam", cfg.WebcamSource, "Webcam source: auto, synthetic, file:<path> or off")
		fs.IntVar(&cfg.FPS, "fps", cfg.FPS, "Capture frames per second")
		fs.IntVar(&cfg.Display, "display", cfg.Display, "Display index to capture (0 = primary)")
		fs.Float64Var(&cfg.Scale, "scale", cfg.Scale, "Screen scale factor (0-1]")
		fs.IntVar(&cfg.Quality, "quality", cfg.Quality, "JPEG quality (1-100)")
		fs.StringVar(&cfg.CameraDevice, "camera", cfg.CameraDevice, "Camera device (platform default if empty)")
		fs.StringVar(&cfg.FFmpeg, "ffmpeg", cfg.FFmpeg, "ffmpeg binary (looked up on PATH if empty)")
		fs.StringVar(&cfg.MQTT.Broker, "mqtt", cfg.MQTT.Broker, "MQTT broker for status events (host:port)")
		fs.StringVar(&cfg.MQTT.Prefix, "mqtt-prefix", cfg.MQTT.Prefix, "MQTT topic prefix")
		cfg.Log.bind(fs)
	})
	if err != nil {
		return nil, err
	}
	if cfg.ClientID == "" {
		cfg.ClientID = newClientID()
	}
	cfg.PushTransport = strings.ToLower(cfg.PushTransport)
	if cfg.PushTransport == "ws" {
		cfg.PushTransport = PushWebSocket
	}
	return cfg, cfg.Validate()
}

func (c *HostConfig) Validate() error {
	var errs []error
	if c.Listen == "" && c.PushURL == "" {
		errs = append(errs, errors.New("config: nothing to do, set -listen or -push"))
	}
	if c.PushURL != "" {
		if err := checkURL("push", c.PushURL, "http", "https", "ws", "wss"); err != nil {
			errs = append(errs, err)
		}
	}
	if c.PushTransport != PushHTTP && c.PushTransport != PushWebSocket {
		errs = append(errs, fmt.Errorf("config: unknown push transport %q", c.PushTransport))
	}
	if c.FPS < 1 || c.FPS > 60 {
		errs = append(errs, fmt.Errorf("config: fps must be 1-60, got %d", c.FPS))
	}
	if c.Quality < 1 || c.Quality > 100 {
		errs = append(errs, fmt.Errorf("config: quality must be 1-100, got %d", c.Quality))
	}
	if c.Scale <= 0 || c.Scale > 1 {
		errs = append(errs, fmt.Errorf("config: scale must be in (0, 1], got %v", c.Scale))
	}
	for name, d := range map[string]time.Duration{
		"poll-interval":   c.PollInterval,
		"send-interval":   c.SendInterval,
		"reconnect":       c.ReconnectDelay,
		"connect-timeout": c.ConnectTimeout,
	} {
		if err := positive(name, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
