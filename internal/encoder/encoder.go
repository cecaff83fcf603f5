package encoder

import "image"

// Encoder encodes a captured image into the bytes published as one frame.
type Encoder interface {
	Encode(img image.Image) ([]byte, error)
	SetQuality(quality int)
}
