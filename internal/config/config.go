// Package config parses command-line flags and optional YAML files for the
// framecast binaries. Values from the file are defaults; flags given on the
// command line override them.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// LogConfig selects log level and format.
type LogConfig struct {
	Debug bool `yaml:"debug"`
	JSON  bool `yaml:"json"`
}

func (l *LogConfig) bind(fs *flag.FlagSet) {
	fs.BoolVar(&l.Debug, "debug", l.Debug, "Enable debug logging")
	fs.BoolVar(&l.JSON, "log-json", l.JSON, "Log as JSON instead of text")
}

// NewLogger builds the process logger.
func NewLogger(w io.Writer, l LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if l.Debug {
		opts.Level = slog.LevelDebug
	}
	if l.JSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// listenFromEnv returns ":$PORT" when PORT is set, else def.
func listenFromEnv(def string) string {
	if p := os.Getenv("PORT"); p != "" {
		return ":" + p
	}
	return def
}

// configPath finds -config/--config in args without parsing other flags.
func configPath(args []string) string {
	for i, a := range args {
		if a == "--" {
			break
		}
		name := strings.TrimLeft(a, "-")
		if name == a {
			continue
		}
		if v, ok := strings.CutPrefix(name, "config="); ok {
			return v
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// loadYAML decodes path into v, rejecting unknown keys.
func loadYAML(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// parse loads the YAML file named by -config, then applies flags.
func parse(name string, args []string, v any, bind func(fs *flag.FlagSet)) error {
	if path := configPath(args); path != "" {
		if err := loadYAML(path, v); err != nil {
			return err
		}
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.String("config", "", "YAML config file")
	bind(fs)
	return fs.Parse(args)
}

func checkURL(name, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("config: %s: %w", name, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("config: %s %q must be a %s URL", name, raw, strings.Join(schemes, "/"))
}

func newClientID() string { return uuid.NewString() }

func positive(name string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("config: %s must be positive, got %v", name, d)
	}
	return nil
}
