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

	"github.com/junsooki/framecast/internal/config"
	"github.com/junsooki/framecast/internal/relay"
)

func main() {
	cfg, err := config.ParseRelayFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(config.NewLogger(os.Stderr, cfg.Log))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		slog.Error("relay: listen failed", "addr", cfg.Listen, "error", err)
		os.Exit(1)
	}
	srv := &http.Server{
		Handler:           relay.NewServer(relay.NewHub(), relay.Config{LivePollInterval: cfg.LivePollInterval}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("relay: shutdown", "error", err)
			srv.Close()
		}
	}()

	slog.Info("framecast relay listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("relay: server stopped", "error", err)
		os.Exit(1)
	}
}
