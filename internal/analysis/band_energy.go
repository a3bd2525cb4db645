// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
)

// Band is a named frequency range, LowHz inclusive and HighHz exclusive.
type Band struct {
	Name   string
	LowHz  float64
	HighHz float64
}

// DefaultBands splits the audible range the way scene clients expect it.
var DefaultBands = []Band{
	{Name: "sub", LowHz: 20, HighHz: 60},
	{Name: "bass", LowHz: 60, HighHz: 250},
	{Name: "lowMid", LowHz: 250, HighHz: 500},
	{Name: "mid", LowHz: 500, HighHz: 2000},
	{Name: "highMid", LowHz: 2000, HighHz: 4000},
	{Name: "treble", LowHz: 4000, HighHz: math.Inf(1)},
}

// BandMeter reduces a snapshot to one energy level per band. The bin to
// band assignment is computed once; a band that covers no bin reads 0.
type BandMeter struct {
	bands  []Band
	binOf  []int // Band index for each snapshot bin, -1 when outside every band.
	counts []int
}

// NewBandMeter assigns each of bins bins to the first band containing its
// centre frequency.
func NewBandMeter(bands []Band, bins int, freqForBin func(int) float64) *BandMeter {
	m := &BandMeter{
		bands:  append([]Band(nil), bands...),
		binOf:  make([]int, bins),
		counts: make([]int, len(bands)),
	}
	for i := range m.binOf {
		m.binOf[i] = -1
		freq := freqForBin(i)
		for b, band := range m.bands {
			if freq >= band.LowHz && freq < band.HighHz {
				m.binOf[i] = b
				m.counts[b]++
				break
			}
		}
	}
	return m
}

// Names returns the band names in level order.
func (m *BandMeter) Names() []string {
	names := make([]string, len(m.bands))
	for i, b := range m.bands {
		names[i] = b.Name
	}
	return names
}

// Levels appends to dst[:0] the RMS of each band's bin values, scaled to
// [0, 1].
func (m *BandMeter) Levels(snap Snapshot, dst []float64) []float64 {
	dst = dst[:0]
	for range m.bands {
		dst = append(dst, 0)
	}
	for i, v := range snap {
		if i >= len(m.binOf) || m.binOf[i] < 0 {
			continue
		}
		f := float64(v) / 255
		dst[m.binOf[i]] += f * f
	}
	for b, n := range m.counts {
		if n > 0 {
			dst[b] = math.Sqrt(dst[b] / float64(n))
		}
	}
	return dst
}
