// SPDX-License-Identifier: MIT

// Package render maps Frequency Snapshots to bar geometry and rasterizes it.
//
// Bars are laid out left to right with an interleaved bin mapping: even
// positions read bins low to high, odd positions read the odd bins high to
// low. With five bars this selects bins 0,3,2,1,4 which gives the mirrored
// look instead of a linear frequency sweep.
package render

import (
	"fmt"

	"pulse/internal/analysis"
)

// Bar is the geometry of one drawn bar, in canvas pixels. The rounded caps
// are half discs of Radius centred on (X, Top) and (X, Top+Height).
type Bar struct {
	Bin    int     // Snapshot bin feeding this bar.
	Value  uint8   // Magnitude read from the bin.
	X      float64 // Horizontal centre.
	Top    float64 // Top edge of the rectangle.
	Width  float64 // Rectangle width.
	Height float64 // Rectangle height.
	Radius float64 // Cap radius.
}

// Layout holds everything needed to turn a snapshot into bars.
type Layout struct {
	bars      int
	width     float64
	height    float64
	maxHeight float64
	minHeight float64
	indices   []int
}

// NewLayout validates the canvas and bar parameters. bins is the snapshot
// length the layout will read from; bars must not exceed it.
func NewLayout(bars, bins, width, height int, maxFraction, minFraction float64) (*Layout, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("canvas must have positive size, got %dx%d", width, height)
	}
	if maxFraction <= 0 || maxFraction > 1 {
		return nil, fmt.Errorf("max height fraction %.2f outside (0, 1]", maxFraction)
	}
	if minFraction < 0 || minFraction > maxFraction {
		return nil, fmt.Errorf("min height fraction %.2f outside [0, %.2f]", minFraction, maxFraction)
	}
	indices, err := BinIndices(bars, bins)
	if err != nil {
		return nil, err
	}

	return &Layout{
		bars:      bars,
		width:     float64(width),
		height:    float64(height),
		maxHeight: float64(height) * maxFraction,
		minHeight: float64(height) * minFraction,
		indices:   indices,
	}, nil
}

// BinIndex returns the snapshot bin read by bar position i out of bars.
func BinIndex(i, bars int) int {
	if i%2 == 0 {
		return i
	}
	odd := bars / 2 // Number of odd positions.
	rank := (i - 1) / 2
	return 2*(odd-1-rank) + 1
}

// BinIndices returns the bin for every bar position. The result is a
// permutation of [0, bars), so it is in bounds whenever bars <= bins.
func BinIndices(bars, bins int) ([]int, error) {
	if bars <= 0 {
		return nil, fmt.Errorf("bar count must be positive, got %d", bars)
	}
	if bars > bins {
		return nil, fmt.Errorf("bar count %d exceeds %d frequency bins", bars, bins)
	}
	indices := make([]int, bars)
	for i := range indices {
		indices[i] = BinIndex(i, bars)
	}
	return indices, nil
}

// BarHeight scales a magnitude linearly to the maximum bar height and clamps
// it to the minimum visible height.
func (l *Layout) BarHeight(v uint8) float64 {
	h := float64(v) / 255 * l.maxHeight
	if h < l.minHeight {
		return l.minHeight
	}
	return h
}

// Layout computes the bars for snap into dst, reusing its storage.
func (l *Layout) Layout(snap analysis.Snapshot, dst []Bar) []Bar {
	dst = dst[:0]
	spacing := l.width / float64(l.bars+1)
	barWidth := spacing / 2

	for i, bin := range l.indices {
		var v uint8
		if bin < len(snap) {
			v = snap[bin]
		}
		h := l.BarHeight(v)
		dst = append(dst, Bar{
			Bin:    bin,
			Value:  v,
			X:      spacing * float64(i+1),
			Top:    l.height/2 - h/2,
			Width:  barWidth,
			Height: h,
			Radius: barWidth / 2,
		})
	}
	return dst
}

// Bars returns the configured bar count.
func (l *Layout) Bars() int { return l.bars }

// Size returns the canvas size in pixels.
func (l *Layout) Size() (int, int) { return int(l.width), int(l.height) }

// MaxHeight returns the bar height drawn for magnitude 255.
func (l *Layout) MaxHeight() float64 { return l.maxHeight }

// MinHeight returns the smallest bar height drawn.
func (l *Layout) MinHeight() float64 { return l.minHeight }
