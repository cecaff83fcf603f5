package display

import (
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

// EbitenDisplay renders frames with Ebitengine. Escape closes the window.
type EbitenDisplay struct {
	title string

	mu       sync.Mutex
	frame    *image.RGBA
	dirty    bool
	received int
	last     time.Time
	status   string

	ebitenImage *ebiten.Image
	showInfo    bool
}

var _ Display = (*EbitenDisplay)(nil)

func NewEbitenDisplay(title string) *EbitenDisplay {
	return &EbitenDisplay{title: title, status: "connecting"}
}

// SetFrame replaces the displayed frame. Safe to call from any goroutine.
func (d *EbitenDisplay) SetFrame(img *image.RGBA) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frame = img
	d.dirty = true
	d.received++
	d.last = time.Now()
}

// SetStatus sets the text shown while no frame is available.
func (d *EbitenDisplay) SetStatus(s string) {
	d.mu.Lock()
	d.status = s
	d.mu.Unlock()
}

// Run starts the game loop. It must be called from the main goroutine.
func (d *EbitenDisplay) Run() error {
	ebiten.SetWindowSize(1280, 720)
	ebiten.SetWindowTitle(d.title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	return ebiten.RunGame(d)
}

func (d *EbitenDisplay) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyI) {
		d.showInfo = !d.showInfo
	}
	return nil
}

func (d *EbitenDisplay) Draw(screen *ebiten.Image) {
	d.mu.Lock()
	frame, dirty, status := d.frame, d.dirty, d.status
	received, last := d.received, d.last
	d.dirty = false
	d.mu.Unlock()

	if frame == nil {
		ebitenutil.DebugPrint(screen, status)
		return
	}

	fw, fh := frame.Bounds().Dx(), frame.Bounds().Dy()
	if d.ebitenImage == nil || d.ebitenImage.Bounds().Dx() != fw || d.ebitenImage.Bounds().Dy() != fh {
		d.ebitenImage = ebiten.NewImage(fw, fh)
		dirty = true
	}
	if dirty {
		d.ebitenImage.WritePixels(frame.Pix)
	}

	sw, sh := screen.Bounds().Dx(), screen.Bounds().Dy()
	scale, offsetX, offsetY := aspectFitTransform(float64(sw), float64(sh), float64(fw), float64(fh))

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(scale, scale)
	op.GeoM.Translate(offsetX, offsetY)
	op.Filter = ebiten.FilterLinear
	screen.DrawImage(d.ebitenImage, op)

	if d.showInfo {
		ebitenutil.DebugPrint(screen, fmt.Sprintf("%dx%d  frames %d  age %v  tps %.0f",
			fw, fh, received, time.Since(last).Round(time.Millisecond), ebiten.ActualTPS()))
	}
}

func (d *EbitenDisplay) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}

// aspectFitTransform returns scale and offsets to fit frame into view with letterboxing.
func aspectFitTransform(viewW, viewH, frameW, frameH float64) (scale, offsetX, offsetY float64) {
	scale = math.Min(viewW/frameW, viewH/frameH)
	offsetX = (viewW - frameW*scale) / 2
	offsetY = (viewH - frameH*scale) / 2
	return
}
