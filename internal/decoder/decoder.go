package decoder

import "image"

// Decoder turns received frame bytes into an image for display.
type Decoder interface {
	Decode(data []byte) (*image.RGBA, error)
}
