package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/junsooki/framecast/internal/capture"
	"github.com/junsooki/framecast/internal/config"
	"github.com/junsooki/framecast/internal/frame"
	"github.com/junsooki/framecast/internal/peer"
	"github.com/junsooki/framecast/internal/pull"
	"github.com/junsooki/framecast/internal/push"
	"github.com/junsooki/framecast/internal/status"
)

func main() {
	cfg, err := config.ParseHostFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(config.NewLogger(os.Stderr, cfg.Log))

	slog.Info("framecast host starting",
		"client_id", cfg.ClientID,
		"listen", cfg.Listen,
		"push", cfg.PushURL,
		"fps", cfg.FPS,
		"quality", cfg.Quality)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	emitter := status.Emitter(status.LogEmitter{})
	if cfg.MQTT.Broker != "" {
		mq, err := status.ConnectMQTT(cfg.MQTT.Broker, cfg.ClientID, cfg.MQTT.Prefix)
		if err != nil {
			slog.Warn("status: mqtt unavailable, logging only", "broker", cfg.MQTT.Broker, "error", err)
		} else {
			defer mq.Close()
			emitter = status.Multi(emitter, mq)
		}
	}
	emit := func(k frame.Kind, state, detail string) {
		emitter.Emit(status.Event{
			ClientID: cfg.ClientID,
			Stream:   k.String(),
			State:    state,
			Detail:   detail,
			Time:     time.Now(),
		})
	}

	// Capture.
	streams := frame.NewStreams()
	opts := capture.Options{
		Screen: capture.ScreenOptions{Display: cfg.Display, Scale: cfg.Scale, Quality: cfg.Quality},
		Camera: capture.CameraOptions{Device: cfg.CameraDevice, FPS: cfg.FPS, FFmpeg: cfg.FFmpeg},
	}
	selectors := map[frame.Kind]string{
		frame.KindScreen: cfg.ScreenSource,
		frame.KindWebcam: cfg.WebcamSource,
	}
	loops := make(map[frame.Kind]*capture.Loop)
	for _, k := range frame.Kinds {
		src, err := capture.Probe(k, selectors[k], opts)
		if err != nil {
			slog.Error("capture: bad source", "stream", k, "error", err)
			os.Exit(2)
		}
		if src == nil {
			slog.Info("capture: disabled", "stream", k)
			continue
		}
		if !src.Supported() {
			slog.Warn("capture: source unavailable", "stream", k, "source", src.Name())
			emit(k, "unavailable", src.Name())
			continue
		}
		l := capture.NewLoop(k, src, streams.Slot(k), capture.LoopConfig{FPS: cfg.FPS})
		l.Start(ctx)
		loops[k] = l
		emit(k, "capturing", src.Name())
		go func() {
			<-l.Done()
			if ctx.Err() == nil {
				emit(k, "unavailable", "capture stopped")
			}
		}()
	}
	if len(loops) == 0 {
		slog.Warn("capture: no stream can be captured, viewers will get 503")
	}

	// Pull server.
	var srv *http.Server
	var pullServer *pull.Server
	if cfg.Listen != "" {
		ln, err := net.Listen("tcp", cfg.Listen)
		if err != nil {
			slog.Error("pull: listen failed", "addr", cfg.Listen, "error", err)
			os.Exit(1)
		}
		pcfg := pull.Config{PollInterval: cfg.PollInterval}
		if cfg.WebRTC {
			ice := cfg.ICEServers
			if len(ice) == 0 {
				ice = peer.DefaultICEServers
			}
			pcfg.WebRTC = &peer.Config{ICEServers: ice}
		}
		pullServer = pull.NewServer(pcfg, pullStreams(streams, loops)...)
		srv = &http.Server{
			Handler:           pullServer,
			ReadHeaderTimeout: 10 * time.Second,
			// Streaming responses end when the host shuts down.
			BaseContext: func(net.Listener) context.Context { return ctx },
		}
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("pull: server stopped", "error", err)
			}
		}()
		base := "http://" + displayAddr(ln.Addr())
		slog.Info("pull: serving", "url", base+"/")
		for k := range loops {
			slog.Info("pull: serving", "stream", k, "url", base+"/"+k.String())
		}
	}

	// Push clients.
	var clients []*push.Client
	if cfg.PushURL != "" {
		var strategy push.Strategy = push.NewHTTPStrategy(cfg.ConnectTimeout)
		if cfg.PushTransport == config.PushWebSocket {
			strategy = push.NewWebSocketStrategy(cfg.ConnectTimeout)
		}
		for k := range loops {
			c := push.NewClient(k, streams.Slot(k), strategy, push.Config{
				BaseURL:        cfg.PushURL,
				ClientID:       cfg.ClientID,
				SendInterval:   cfg.SendInterval,
				ReconnectDelay: cfg.ReconnectDelay,
			})
			c.OnStateChange(func(k frame.Kind, s push.State) {
				emit(k, "push-"+s.String(), cfg.PushURL)
			})
			c.Start(ctx)
			clients = append(clients, c)
		}
	}

	slog.Info("framecast host ready", "streams", len(loops))
	<-ctx.Done()
	slog.Info("framecast host shutting down")

	for _, c := range clients {
		c.Stop()
	}
	if srv != nil {
		pullServer.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("pull: shutdown", "error", err)
		}
		cancel()
	}
	for _, l := range loops {
		l.Stop()
	}
}

// pullStreams exposes every capturing stream. Kinds without a loop are left
// out, so the pull server answers them with 503.
func pullStreams(streams *frame.Streams, loops map[frame.Kind]*capture.Loop) []*pull.Stream {
	var out []*pull.Stream
	for _, k := range frame.Kinds {
		l, ok := loops[k]
		if !ok {
			continue
		}
		out = append(out, &pull.Stream{
			Kind:      k,
			Slot:      streams.Slot(k),
			Available: l.Available,
			Stats:     l.Stats,
		})
	}
	return out
}

// displayAddr turns a wildcard listen address into one a browser can open.
func displayAddr(a net.Addr) string {
	tcp, ok := a.(*net.TCPAddr)
	if !ok || !tcp.IP.IsUnspecified() {
		return a.String()
	}
	return net.JoinHostPort("localhost", fmt.Sprint(tcp.Port))
}
