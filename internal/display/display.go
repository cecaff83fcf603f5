// Package display shows received frames in a desktop window.
package display

import "image"

// Display renders the most recent frame handed to SetFrame.
type Display interface {
	SetFrame(img *image.RGBA)
	Run() error
}
