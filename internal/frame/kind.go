package frame

import "fmt"

// Kind identifies a logical capture channel.
type Kind string

const (
	KindScreen Kind = "screen"
	KindWebcam Kind = "webcam"
)

// Kinds lists every stream kind in display order.
var Kinds = []Kind{KindScreen, KindWebcam}

// ParseKind validates a stream name from a URL or config file.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindScreen, KindWebcam:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown stream %q", s)
}

func (k Kind) String() string { return string(k) }

// Streams is the pair of slots a host process owns, one per kind.
type Streams struct {
	slots map[Kind]*Slot
}

// NewStreams creates one empty slot per kind.
func NewStreams() *Streams {
	st := &Streams{slots: make(map[Kind]*Slot, len(Kinds))}
	for _, k := range Kinds {
		st.slots[k] = NewSlot()
	}
	return st
}

// Slot returns the slot for k, or nil for an unknown kind.
func (st *Streams) Slot(k Kind) *Slot {
	return st.slots[k]
}
