package viewer

import (
	"context"
	"net/http"
	"time"

	"github.com/junsooki/framecast/internal/peer"
)

// WebRTCConnector returns a Connector that negotiates a data channel with a
// host's /webrtc/{stream} endpoint and forwards received frames.
func WebRTCConnector(url string, cfg peer.Config, onFrame FrameHandler) Connector {
	client := &http.Client{Timeout: 15 * time.Second}
	return func(ctx context.Context) error {
		v, err := peer.NewViewer(cfg)
		if err != nil {
			return err
		}
		defer v.Close()
		v.Transport().OnFrame(onFrame)
		if err := v.Connect(ctx, client, url); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-v.Done():
			return nil
		}
	}
}

// MJPEGConnector returns a Connector reading an MJPEG stream from url.
func MJPEGConnector(url string, onFrame FrameHandler) Connector {
	client := &http.Client{}
	return func(ctx context.Context) error {
		return ReadMJPEG(ctx, client, url, onFrame)
	}
}
