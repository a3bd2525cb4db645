// SPDX-License-Identifier: MIT
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"

	"pulse/internal/analysis"
	applog "pulse/internal/log"
)

// Rasterizer draws bars into a reusable RGBA canvas.
type Rasterizer struct {
	layout *Layout
	canvas *image.RGBA
	bars   []Bar
	fg     *image.Uniform
	bg     *image.Uniform
}

// NewRasterizer allocates a canvas matching the layout size. Bars are
// opaque black on a transparent background.
func NewRasterizer(l *Layout) *Rasterizer {
	w, h := l.Size()
	return &Rasterizer{
		layout: l,
		canvas: image.NewRGBA(image.Rect(0, 0, w, h)),
		bars:   make([]Bar, 0, l.Bars()),
		fg:     image.NewUniform(color.RGBA{A: 0xff}),
		bg:     image.NewUniform(color.Transparent),
	}
}

// SetColors changes the bar and background colors.
func (r *Rasterizer) SetColors(fg, bg color.Color) {
	r.fg = image.NewUniform(fg)
	r.bg = image.NewUniform(bg)
}

// Draw clears the canvas and draws the bars for snap. The returned image is
// owned by the rasterizer and overwritten by the next call.
func (r *Rasterizer) Draw(snap analysis.Snapshot) *image.RGBA {
	draw.Draw(r.canvas, r.canvas.Bounds(), r.bg, image.Point{}, draw.Src)

	r.bars = r.layout.Layout(snap, r.bars)
	for _, b := range r.bars {
		rect := image.Rect(
			int(math.Round(b.X-b.Width/2)), int(math.Round(b.Top)),
			int(math.Round(b.X+b.Width/2)), int(math.Round(b.Top+b.Height)),
		)
		draw.Draw(r.canvas, rect, r.fg, image.Point{}, draw.Src)
		r.halfDisc(b.X, b.Top, b.Radius, true)
		r.halfDisc(b.X, b.Top+b.Height, b.Radius, false)
	}
	return r.canvas
}

// Bars returns the geometry computed by the last Draw.
func (r *Rasterizer) Bars() []Bar {
	return r.bars
}

// halfDisc fills the upper (up=true) or lower half of a disc.
func (r *Rasterizer) halfDisc(cx, cy, radius float64, up bool) {
	c := r.fg.C
	r2 := radius * radius
	y0, y1 := cy-radius, cy
	if !up {
		y0, y1 = cy, cy+radius
	}
	for y := int(math.Floor(y0)); y <= int(math.Ceil(y1)); y++ {
		dy := float64(y) + 0.5 - cy
		for x := int(math.Floor(cx - radius)); x <= int(math.Ceil(cx+radius)); x++ {
			dx := float64(x) + 0.5 - cx
			if dx*dx+dy*dy <= r2 {
				r.canvas.Set(x, y, c)
			}
		}
	}
}

// EncodePNG writes the current canvas as PNG.
func (r *Rasterizer) EncodePNG(w io.Writer) error {
	return png.Encode(w, r.canvas)
}

// FrameDumper writes every n-th drawn frame to dir as numbered PNG files.
type FrameDumper struct {
	raster *Rasterizer
	dir    string
	every  int
	tick   int
	seq    int
}

// NewFrameDumper creates dir if needed. every below 1 is treated as 1.
func NewFrameDumper(r *Rasterizer, dir string, every int) (*FrameDumper, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create frame directory: %w", err)
	}
	if every < 1 {
		every = 1
	}
	return &FrameDumper{raster: r, dir: dir, every: every}, nil
}

// Frame counts a tick and, every n ticks, draws snap and writes it. Write
// failures are logged and do not stop the render loop.
func (d *FrameDumper) Frame(snap analysis.Snapshot) {
	d.tick++
	if d.tick%d.every != 0 {
		return
	}
	d.raster.Draw(snap)

	path := filepath.Join(d.dir, fmt.Sprintf("frame-%06d.png", d.seq))
	d.seq++
	f, err := os.Create(path)
	if err != nil {
		applog.Errorf("Render: Failed to create frame %s: %v", path, err)
		return
	}
	if err := d.raster.EncodePNG(f); err != nil {
		applog.Errorf("Render: Failed to encode frame %s: %v", path, err)
	}
	if err := f.Close(); err != nil {
		applog.Errorf("Render: Failed to close frame %s: %v", path, err)
	}
}

// Written returns the number of frames written so far.
func (d *FrameDumper) Written() int {
	return d.seq
}
