package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/junsooki/framecast/internal/config"
	"github.com/junsooki/framecast/internal/decoder"
	"github.com/junsooki/framecast/internal/display"
	"github.com/junsooki/framecast/internal/peer"
	"github.com/junsooki/framecast/internal/viewer"
)

func main() {
	cfg, err := config.ParseViewerFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(config.NewLogger(os.Stderr, cfg.Log))

	var dec decoder.Decoder = decoder.NewJPEGDecoder()
	disp := display.NewEbitenDisplay("framecast")

	onFrame := func(data []byte) {
		img, err := dec.Decode(data)
		if err != nil {
			slog.Debug("viewer: decode failed", "bytes", len(data), "error", err)
			return
		}
		disp.SetFrame(img)
	}

	var name string
	var connect viewer.Connector
	switch {
	case cfg.MJPEGURL != "":
		name, connect = cfg.MJPEGURL, viewer.MJPEGConnector(cfg.MJPEGURL, onFrame)
	case cfg.WebRTCURL != "":
		ice := cfg.ICEServers
		if len(ice) == 0 {
			ice = peer.DefaultICEServers
		}
		name, connect = cfg.WebRTCURL, viewer.WebRTCConnector(cfg.WebRTCURL, peer.Config{ICEServers: ice}, onFrame)
	default:
		name, connect = cfg.RelayURL, viewer.RelayConnector(cfg.RelayURL, cfg.ClientID, cfg.Stream, onFrame)
	}
	slog.Info("framecast viewer starting", "source", name)
	disp.SetStatus("connecting to " + name)

	ctx, cancel := context.WithCancel(context.Background())
	go viewer.Follow(ctx, name, cfg.ReconnectDelay, connect)

	// Ebitengine RunGame must be on the main goroutine (macOS requirement).
	if err := disp.Run(); err != nil {
		slog.Error("viewer: display", "error", err)
	}
	cancel()
}
