// SPDX-License-Identifier: MIT
package render

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"pulse/internal/analysis"
)

func TestBinIndicesFiveBars(t *testing.T) {
	got, err := BinIndices(5, 16)
	if err != nil {
		t.Fatalf("BinIndices: %v", err)
	}
	want := []int{0, 3, 2, 1, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("bar %d reads bin %d, want %d", i, got[i], want[i])
		}
	}
}

func TestBinIndicesDistinctAndInBounds(t *testing.T) {
	for bins := 1; bins <= 64; bins++ {
		for bars := 1; bars <= bins; bars++ {
			indices, err := BinIndices(bars, bins)
			if err != nil {
				t.Fatalf("BinIndices(%d, %d): %v", bars, bins, err)
			}
			seen := make(map[int]bool, bars)
			for i, idx := range indices {
				if idx < 0 || idx >= bins {
					t.Fatalf("bars=%d bins=%d: position %d reads out-of-range bin %d", bars, bins, i, idx)
				}
				if seen[idx] {
					t.Fatalf("bars=%d bins=%d: bin %d selected twice (%v)", bars, bins, idx, indices)
				}
				seen[idx] = true
			}
		}
	}
}

func TestBinIndicesErrors(t *testing.T) {
	if _, err := BinIndices(0, 16); err == nil {
		t.Error("expected error for zero bars")
	}
	if _, err := BinIndices(17, 16); err == nil {
		t.Error("expected error for more bars than bins")
	}
}

func TestBarHeightBounds(t *testing.T) {
	tests := []struct {
		name          string
		height        int
		maxFrac       float64
		minFrac       float64
		wantMin       float64
		wantMaxHeight float64
	}{
		{"default canvas", 300, 0.75, 1.0 / 20, 15, 225},
		{"no minimum", 200, 0.5, 0, 0, 100},
		{"full height", 100, 1, 0.1, 10, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewLayout(5, 16, 500, tt.height, tt.maxFrac, tt.minFrac)
			if err != nil {
				t.Fatalf("NewLayout: %v", err)
			}
			if got := l.BarHeight(0); got != tt.wantMin {
				t.Errorf("BarHeight(0) = %f, want %f", got, tt.wantMin)
			}
			if got := l.BarHeight(255); got != tt.wantMaxHeight {
				t.Errorf("BarHeight(255) = %f, want %f", got, tt.wantMaxHeight)
			}
			for v := 0; v < 256; v++ {
				h := l.BarHeight(uint8(v))
				if h < tt.wantMin || h > tt.wantMaxHeight {
					t.Fatalf("BarHeight(%d) = %f outside [%f, %f]", v, h, tt.wantMin, tt.wantMaxHeight)
				}
			}
		})
	}
}

func TestLayoutGeometry(t *testing.T) {
	l, err := NewLayout(5, 16, 600, 300, 0.75, 1.0/20)
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	snap := make(analysis.Snapshot, 16)
	snap[0] = 255
	snap[3] = 0

	bars := l.Layout(snap, nil)
	if len(bars) != 5 {
		t.Fatalf("got %d bars", len(bars))
	}
	if bars[0].X != 100 || bars[4].X != 500 {
		t.Errorf("bar centres = %f..%f, want 100..500", bars[0].X, bars[4].X)
	}
	if bars[0].Width != 50 || bars[0].Radius != 25 {
		t.Errorf("width/radius = %f/%f, want 50/25", bars[0].Width, bars[0].Radius)
	}
	if bars[0].Height != 225 || bars[0].Top != 150-112.5 {
		t.Errorf("loud bar height/top = %f/%f", bars[0].Height, bars[0].Top)
	}
	if bars[1].Bin != 3 || bars[1].Height != 15 {
		t.Errorf("quiet bar bin/height = %d/%f, want 3/15", bars[1].Bin, bars[1].Height)
	}

	// A short snapshot reads as silence instead of panicking.
	bars = l.Layout(analysis.Snapshot{200}, bars)
	if bars[4].Value != 0 {
		t.Errorf("missing bin should read 0, got %d", bars[4].Value)
	}
}

func TestNewLayoutValidation(t *testing.T) {
	if _, err := NewLayout(5, 16, 0, 300, 0.75, 0.05); err == nil {
		t.Error("expected error for zero width")
	}
	if _, err := NewLayout(5, 16, 500, 300, 1.5, 0.05); err == nil {
		t.Error("expected error for max fraction above 1")
	}
	if _, err := NewLayout(5, 16, 500, 300, 0.5, 0.6); err == nil {
		t.Error("expected error for min above max")
	}
}

func TestRasterizerDraw(t *testing.T) {
	l, err := NewLayout(5, 16, 500, 300, 0.75, 1.0/20)
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	r := NewRasterizer(l)

	snap := make(analysis.Snapshot, 16)
	snap[2] = 255
	img := r.Draw(snap)

	// Centre of bar 2 is filled, canvas corner is not.
	mid := r.Bars()[2]
	if _, _, _, a := img.At(int(mid.X), 150).RGBA(); a == 0 {
		t.Error("bar centre should be opaque")
	}
	if _, _, _, a := img.At(0, 0).RGBA(); a != 0 {
		t.Error("corner should be transparent")
	}
	// Rounded cap extends above the rectangle top.
	if _, _, _, a := img.At(int(mid.X), int(mid.Top)-int(mid.Radius)/2).RGBA(); a == 0 {
		t.Error("top cap should be drawn above the rectangle")
	}

	r.SetColors(color.White, color.Black)
	img = r.Draw(make(analysis.Snapshot, 16))
	if got := color.RGBAModel.Convert(img.At(0, 0)).(color.RGBA); got != (color.RGBA{A: 0xff}) {
		t.Errorf("background = %v, want opaque black", got)
	}
}

func TestFrameDumper(t *testing.T) {
	l, err := NewLayout(5, 16, 120, 60, 0.75, 0.05)
	if err != nil {
		t.Fatalf("NewLayout: %v", err)
	}
	dir := filepath.Join(t.TempDir(), "frames")
	d, err := NewFrameDumper(NewRasterizer(l), dir, 3)
	if err != nil {
		t.Fatalf("NewFrameDumper: %v", err)
	}

	snap := make(analysis.Snapshot, 16)
	for range 7 {
		d.Frame(snap)
	}
	if d.Written() != 2 {
		t.Errorf("Written() = %d, want 2", d.Written())
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 2 || entries[0].Name() != "frame-000000.png" {
		t.Errorf("unexpected frames: %v", entries)
	}
}
