package frame

import (
	"sync/atomic"
)

// Slot holds the newest encoded frame of one stream.
//
// Capacity is exactly one frame: Write overwrites, it never queues. A reader
// that polls slower than the writer skips frames; a faster reader sees the
// same frame more than once. Readers and the writer never block each other.
type Slot struct {
	cur atomic.Pointer[entry]
	seq atomic.Uint64
}

type entry struct {
	data []byte
	seq  uint64
}

// NewSlot returns an empty slot.
func NewSlot() *Slot {
	return &Slot{}
}

// Write replaces the held frame. Zero-length frames are ignored because the
// empty value means "nothing captured yet".
//
// The caller must not modify data after Write; readers share it.
func (s *Slot) Write(data []byte) {
	if len(data) == 0 {
		return
	}
	s.cur.Store(&entry{data: data, seq: s.seq.Add(1)})
}

// Read returns the current frame, or nil if nothing was ever written.
func (s *Slot) Read() []byte {
	data, _ := s.Load()
	return data
}

// Load returns the current frame together with its sequence number. The
// sequence is 0 until the first Write and increases by one per Write.
func (s *Slot) Load() ([]byte, uint64) {
	e := s.cur.Load()
	if e == nil {
		return nil, 0
	}
	return e.data, e.seq
}
