// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	applog "pulse/internal/log"
	"pulse/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Snapshot is one tick's set of per-bin magnitudes, normalized to 0..255.
type Snapshot []uint8

// Options configures an Analyzer. Zero values fall back to the defaults
// of a browser analyser node: Blackman window, 0.8 smoothing, -100..-30 dB.
type Options struct {
	FFTSize     int
	SampleRate  float64
	Window      WindowFunc
	Smoothing   float64
	MinDecibels float64
	MaxDecibels float64
}

// Pre-allocated buffers for the per-tick transform.
type workspace struct {
	ring      []float64    // Most recent FFTSize time-domain samples.
	ringPos   int          // Next write position in ring.
	input     []float64    // Windowed samples, oldest first.
	fftOutput []complex128 // FFT complex results.
	smoothed  []float64    // Time-smoothed magnitudes, one per bin.
	window    []float64    // Window coefficients.
	latest    Snapshot     // Last snapshot produced by Snapshot.
}

// Analyzer turns the live sample stream into Frequency Snapshots. Write is
// called from the capture callback, Snapshot from the render tick; a mutex
// serializes the two.
type Analyzer struct {
	fft        *fourier.FFT
	fftSize    int
	sampleRate float64
	smoothing  float64
	minDB      float64
	rangeDB    float64

	mu sync.Mutex
	ws workspace
}

// Compile-time checks for interface implementations.
var _ FrameProcessor = (*Analyzer)(nil)
var _ SnapshotProvider = (*Analyzer)(nil)

// NewAnalyzer validates opts and pre-allocates every buffer used per tick.
func NewAnalyzer(opts Options) (*Analyzer, error) {
	if !bitint.IsPowerOfTwo(opts.FFTSize) || opts.FFTSize < 2 {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d", opts.FFTSize)
	}
	if opts.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", opts.SampleRate)
	}
	if opts.Smoothing < 0 || opts.Smoothing >= 1 {
		return nil, fmt.Errorf("smoothing must be in [0, 1), got %f", opts.Smoothing)
	}
	if opts.MinDecibels == 0 && opts.MaxDecibels == 0 {
		opts.MinDecibels, opts.MaxDecibels = -100, -30
	}
	if opts.MinDecibels >= opts.MaxDecibels {
		return nil, fmt.Errorf("min decibels %.1f must be below max decibels %.1f", opts.MinDecibels, opts.MaxDecibels)
	}

	bins := opts.FFTSize / 2
	windowCoeffs := make([]float64, opts.FFTSize)
	applyWindow(windowCoeffs, opts.Window)

	applog.Infof("Analysis: Initializing Analyzer (Size: %d, Bins: %d, SampleRate: %.1f Hz, Window: %v)",
		opts.FFTSize, bins, opts.SampleRate, opts.Window)

	return &Analyzer{
		fft:        fourier.NewFFT(opts.FFTSize),
		fftSize:    opts.FFTSize,
		sampleRate: opts.SampleRate,
		smoothing:  opts.Smoothing,
		minDB:      opts.MinDecibels,
		rangeDB:    opts.MaxDecibels - opts.MinDecibels,
		ws: workspace{
			ring:      make([]float64, opts.FFTSize),
			input:     make([]float64, opts.FFTSize),
			fftOutput: make([]complex128, opts.FFTSize/2+1),
			smoothed:  make([]float64, bins),
			window:    windowCoeffs,
			latest:    make(Snapshot, bins),
		},
	}, nil
}

// Write pushes samples into the transform window, keeping the newest FFTSize.
func (a *Analyzer) Write(frame []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Only the tail of a long frame can survive in the window.
	if len(frame) > a.fftSize {
		frame = frame[len(frame)-a.fftSize:]
	}
	for _, s := range frame {
		a.ws.ring[a.ws.ringPos] = float64(s)
		a.ws.ringPos++
		if a.ws.ringPos == a.fftSize {
			a.ws.ringPos = 0
		}
	}
}

// Snapshot computes one Frequency Snapshot into dst, overwriting it in place,
// and returns the number of bins written (min(len(dst), Bins())).
func (a *Analyzer) Snapshot(dst Snapshot) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	// --- 1. Unroll ring (oldest first) and apply the window ---
	for i := range a.fftSize {
		a.ws.input[i] = a.ws.ring[(a.ws.ringPos+i)%a.fftSize] * a.ws.window[i]
	}

	// --- 2. Transform ---
	a.fft.Coefficients(a.ws.fftOutput, a.ws.input)

	// --- 3. Smooth over time and map decibels to bytes ---
	scale := 1.0 / float64(a.fftSize)
	for k := range a.ws.smoothed {
		mag := cmplx.Abs(a.ws.fftOutput[k]) * scale
		a.ws.smoothed[k] = a.smoothing*a.ws.smoothed[k] + (1-a.smoothing)*mag
		a.ws.latest[k] = a.toByte(a.ws.smoothed[k])
	}

	return copy(dst, a.ws.latest)
}

// toByte maps a linear magnitude onto 0..255 across the decibel range.
func (a *Analyzer) toByte(mag float64) uint8 {
	if mag <= 0 {
		return 0
	}
	db := 20 * math.Log10(mag)
	scaled := 255 * (db - a.minDB) / a.rangeDB
	switch {
	case scaled <= 0:
		return 0
	case scaled >= 255:
		return 255
	default:
		return uint8(scaled)
	}
}

// LatestInto copies the last computed snapshot into dst without running the
// transform.
func (a *Analyzer) LatestInto(dst Snapshot) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return copy(dst, a.ws.latest)
}

// Reset clears the transform window and smoothing history.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.ws.ring)
	clear(a.ws.smoothed)
	clear(a.ws.latest)
	a.ws.ringPos = 0
}

// Bins returns the number of frequency bins per snapshot (FFTSize/2).
func (a *Analyzer) Bins() int {
	return a.fftSize / 2
}

// FFTSize returns the configured transform window.
func (a *Analyzer) FFTSize() int {
	return a.fftSize
}

// FrequencyForBin returns the center frequency (Hz) for a given bin index.
func (a *Analyzer) FrequencyForBin(binIndex int) float64 {
	if binIndex < 0 || binIndex >= a.Bins() {
		return 0.0
	}
	return float64(binIndex) * (a.sampleRate / float64(a.fftSize))
}
