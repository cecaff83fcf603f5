package config

import (
	"flag"
	"time"
)

// RelayConfig configures the relay binary.
type RelayConfig struct {
	Listen           string        `yaml:"listen"`
	LivePollInterval time.Duration `yaml:"live_poll_interval"`
	Log              LogConfig     `yaml:"log"`
}

func DefaultRelayConfig() *RelayConfig {
	return &RelayConfig{
		Listen:           listenFromEnv(":3000"),
		LivePollInterval: 100 * time.Millisecond,
	}
}

// ParseRelayFlags parses flags for the relay binary.
func ParseRelayFlags(args []string) (*RelayConfig, error) {
	cfg := DefaultRelayConfig()
	err := parse("framecast-relay", args, cfg, func(fs *flag.FlagSet) {
		fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "Address to listen on")
		fs.DurationVar(&cfg.LivePollInterval, "live-interval", cfg.LivePollInterval, "Frame interval for /live MJPEG viewers")
		cfg.Log.bind(fs)
	})
	if err != nil {
		return nil, err
	}
	return cfg, positive("live-interval", cfg.LivePollInterval)
}
