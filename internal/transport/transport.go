// Package transport carries frames over WebRTC data channels.
package transport

// FrameSender sends encoded frames.
type FrameSender interface {
	SendFrame(data []byte) error
}

// FrameReceiver delivers reassembled frames to a callback.
type FrameReceiver interface {
	OnFrame(callback func(data []byte))
}
