// Package overlay renders the annotated preview frame: person boxes and a
// "People: N" caption drawn over a copy of the camera image.
package overlay

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/HatiCode/linecast/pkg/detect"
	"github.com/HatiCode/linecast/pkg/occupancy"
)

var (
	captionColor = color.RGBA{G: 255, A: 255}
	boxColor     = color.RGBA{R: 255, G: 200, A: 255}
	shadowColor  = color.RGBA{A: 255}
)

// Caption returns the text drawn on every preview.
func Caption(count int) string {
	return fmt.Sprintf("People: %d", count)
}

// Annotate copies img and draws a box around every person detection plus
// the count caption in the top-left corner.
func Annotate(img image.Image, count int, dets []detect.Detection) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)

	for _, d := range dets {
		if d.Class != occupancy.PersonClass {
			continue
		}
		drawRect(dst, image.Rect(int(d.Box.X1), int(d.Box.Y1), int(d.Box.X2), int(d.Box.Y2)), boxColor)
	}

	drawText(dst, Caption(count), 10, 20)
	return dst
}

func drawRect(dst *image.RGBA, r image.Rectangle, c color.Color) {
	r = r.Intersect(dst.Bounds())
	if r.Empty() {
		return
	}
	for x := r.Min.X; x < r.Max.X; x++ {
		dst.Set(x, r.Min.Y, c)
		dst.Set(x, r.Max.Y-1, c)
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		dst.Set(r.Min.X, y, c)
		dst.Set(r.Max.X-1, y, c)
	}
}

func drawText(dst *image.RGBA, s string, x, y int) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(shadowColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x+1, y+1),
	}
	d.DrawString(s)

	d.Src = image.NewUniform(captionColor)
	d.Dot = fixed.P(x, y)
	d.DrawString(s)
}

// Preview holds the most recent annotated frame as JPEG bytes. It is
// written by the sensing loop and read by HTTP handlers.
type Preview struct {
	quality int

	mu      sync.RWMutex
	data    []byte
	count   int
	updated time.Time
}

// NewPreview creates an empty preview encoding at the given JPEG quality
// (80 when out of range).
func NewPreview(quality int) *Preview {
	if quality < 1 || quality > 100 {
		quality = 80
	}
	return &Preview{quality: quality}
}

// Update annotates img and replaces the stored preview.
func (p *Preview) Update(img image.Image, count int, dets []detect.Detection, at time.Time) error {
	if img == nil {
		return errors.New("preview: nil image")
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Annotate(img, count, dets), &jpeg.Options{Quality: p.quality}); err != nil {
		return fmt.Errorf("preview: encode jpeg: %w", err)
	}

	p.mu.Lock()
	p.data = buf.Bytes()
	p.count = count
	p.updated = at
	p.mu.Unlock()
	return nil
}

// JPEG returns the latest encoded frame, its count and when it was taken.
// ok is false until the first Update.
func (p *Preview) JPEG() (data []byte, count int, at time.Time, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.data == nil {
		return nil, 0, time.Time{}, false
	}
	return p.data, p.count, p.updated, true
}
