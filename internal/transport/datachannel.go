package transport

import (
	"encoding/binary"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/junsooki/framecast/internal/framing"
)

const (
	// ChunkSize keeps every message under the smallest max-message-size
	// browsers advertise.
	ChunkSize = 16 * 1024

	// MaxBufferedAmount is the queued byte count above which frames are
	// dropped instead of sent.
	MaxBufferedAmount = 1 << 20
)

var (
	ErrNotOpen      = errors.New("transport: frames channel not open")
	ErrBackpressure = errors.New("transport: peer is not keeping up, frame dropped")
)

// DataChannelTransport sends and receives frames on one reliable, ordered
// data channel. Each frame is length-prefixed and split into ChunkSize
// messages; the receiver reassembles them.
type DataChannelTransport struct {
	mu      sync.Mutex
	dc      *webrtc.DataChannel
	onFrame func(data []byte)
	asm     Reassembler
}

func NewDataChannelTransport(dc *webrtc.DataChannel) *DataChannelTransport {
	t := &DataChannelTransport{}
	if dc != nil {
		t.SetFramesChannel(dc)
	}
	return t
}

// SetFramesChannel sets or replaces the frames channel, e.g. one announced
// by the remote peer.
func (t *DataChannelTransport) SetFramesChannel(dc *webrtc.DataChannel) {
	t.mu.Lock()
	t.dc = dc
	t.asm.Reset()
	t.mu.Unlock()
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		t.mu.Lock()
		cb := t.onFrame
		err := t.asm.Feed(msg.Data, func(f []byte) {
			if cb != nil {
				cb(f)
			}
		})
		t.mu.Unlock()
		if err != nil {
			dc.Close()
		}
	})
}

func (t *DataChannelTransport) OnFrame(cb func(data []byte)) {
	t.mu.Lock()
	t.onFrame = cb
	t.mu.Unlock()
}

// SendFrame queues one frame. It returns ErrBackpressure without sending
// anything when the channel already has too much data queued.
func (t *DataChannelTransport) SendFrame(data []byte) error {
	t.mu.Lock()
	dc := t.dc
	t.mu.Unlock()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrNotOpen
	}
	if len(data) == 0 {
		return framing.ErrEmptyFrame
	}
	if dc.BufferedAmount() > MaxBufferedAmount {
		return ErrBackpressure
	}
	for _, chunk := range Chunks(data, ChunkSize) {
		if err := dc.Send(chunk); err != nil {
			return err
		}
	}
	return nil
}

// Chunks splits [4-byte BE length][frame] into messages of at most size
// bytes.
func Chunks(frame []byte, size int) [][]byte {
	buf := make([]byte, framing.HeaderSize+len(frame))
	binary.BigEndian.PutUint32(buf, uint32(len(frame)))
	copy(buf[framing.HeaderSize:], frame)

	out := make([][]byte, 0, len(buf)/size+1)
	for len(buf) > size {
		out = append(out, buf[:size:size])
		buf = buf[size:]
	}
	return append(out, buf)
}

// Reassembler rebuilds length-prefixed frames from a sequence of chunks.
type Reassembler struct {
	pending []byte
}

func (r *Reassembler) Reset() { r.pending = r.pending[:0] }

// Feed appends a chunk and calls emit for every frame it completes. emit
// owns the slice it receives.
func (r *Reassembler) Feed(chunk []byte, emit func([]byte)) error {
	r.pending = append(r.pending, chunk...)
	for len(r.pending) >= framing.HeaderSize {
		n := binary.BigEndian.Uint32(r.pending)
		if n > framing.MaxFrameSize {
			r.Reset()
			return framing.ErrFrameTooLarge
		}
		end := framing.HeaderSize + int(n)
		if len(r.pending) < end {
			return nil
		}
		f := make([]byte, n)
		copy(f, r.pending[framing.HeaderSize:end])
		r.pending = append(r.pending[:0], r.pending[end:]...)
		if n > 0 {
			emit(f)
		}
	}
	return nil
}
