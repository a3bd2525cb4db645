// SPDX-License-Identifier: MIT
package analysis

import (
	"testing"

	"pulse/pkg/utils"
)

const (
	testFFTSize    = 32
	testSampleRate = 44100
	testFrameSize  = 1024
)

func newTestAnalyzer(t *testing.T, smoothing float64) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(Options{
		FFTSize:     testFFTSize,
		SampleRate:  testSampleRate,
		Window:      Blackman,
		Smoothing:   smoothing,
		MinDecibels: -100,
		MaxDecibels: 0,
	})
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	return a
}

func TestNewAnalyzerValidation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"not power of two", Options{FFTSize: 48, SampleRate: testSampleRate}},
		{"zero sample rate", Options{FFTSize: 32}},
		{"smoothing one", Options{FFTSize: 32, SampleRate: testSampleRate, Smoothing: 1}},
		{"inverted decibels", Options{FFTSize: 32, SampleRate: testSampleRate, MinDecibels: -10, MaxDecibels: -20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewAnalyzer(tt.opts); err == nil {
				t.Errorf("expected error for %+v", tt.opts)
			}
		})
	}
}

func TestAnalyzerBins(t *testing.T) {
	a := newTestAnalyzer(t, 0)
	if a.Bins() != 16 {
		t.Errorf("Bins() = %d, want 16", a.Bins())
	}
	if got := a.FrequencyForBin(4); got != 4*testSampleRate/32.0 {
		t.Errorf("FrequencyForBin(4) = %f", got)
	}
	if got := a.FrequencyForBin(16); got != 0 {
		t.Errorf("FrequencyForBin(out of range) = %f, want 0", got)
	}
}

func TestAnalyzerSilence(t *testing.T) {
	a := newTestAnalyzer(t, 0.8)
	a.Write(make([]float32, testFrameSize))

	snap := make(Snapshot, a.Bins())
	if n := a.Snapshot(snap); n != 16 {
		t.Fatalf("Snapshot wrote %d bins, want 16", n)
	}
	for i, v := range snap {
		if v != 0 {
			t.Errorf("bin %d = %d, want 0 for silence", i, v)
		}
	}
}

func TestAnalyzerSinePeak(t *testing.T) {
	a := newTestAnalyzer(t, 0)
	binFreq := a.FrequencyForBin(4)
	a.Write(utils.GenerateSineWave(testFrameSize, testSampleRate, binFreq, 0.9))

	snap := make(Snapshot, a.Bins())
	a.Snapshot(snap)

	if peak := utils.FindPeakBin(snap, 0, len(snap)-1); peak != 4 {
		t.Errorf("peak bin = %d, want 4 (snapshot %v)", peak, snap)
	}
	if snap[4] == 0 {
		t.Error("peak bin should be non-zero")
	}
}

func TestAnalyzerSmoothingRises(t *testing.T) {
	a := newTestAnalyzer(t, 0.8)
	wave := utils.GenerateSineWave(testFFTSize, testSampleRate, a.FrequencyForBin(2), 0.9)

	snap := make(Snapshot, a.Bins())
	var prev uint8
	for tick := range 10 {
		a.Write(wave)
		a.Snapshot(snap)
		if snap[2] < prev {
			t.Fatalf("tick %d: smoothed magnitude fell from %d to %d under constant input", tick, prev, snap[2])
		}
		prev = snap[2]
	}
}

func TestAnalyzerOverwritesInPlace(t *testing.T) {
	a := newTestAnalyzer(t, 0)
	snap := make(Snapshot, a.Bins())

	a.Write(utils.GenerateSineWave(testFFTSize, testSampleRate, a.FrequencyForBin(6), 0.9))
	a.Snapshot(snap)
	if snap[6] == 0 {
		t.Fatal("expected energy in bin 6")
	}

	a.Write(make([]float32, testFFTSize))
	a.Snapshot(snap)
	for i, v := range snap {
		if v != 0 {
			t.Errorf("bin %d = %d after silence, want 0", i, v)
		}
	}

	latest := make(Snapshot, a.Bins())
	a.LatestInto(latest)
	for i := range latest {
		if latest[i] != snap[i] {
			t.Fatalf("LatestInto differs at bin %d", i)
		}
	}
}

func TestAnalyzerShortDestination(t *testing.T) {
	a := newTestAnalyzer(t, 0)
	a.Write(utils.GenerateComplexWave(testFrameSize, testSampleRate))
	if n := a.Snapshot(make(Snapshot, 5)); n != 5 {
		t.Errorf("Snapshot into 5-bin slice wrote %d", n)
	}
}

func TestAnalyzerSnapshotZeroAllocs(t *testing.T) {
	a := newTestAnalyzer(t, 0.8)
	frame := utils.GenerateComplexWave(testFrameSize, testSampleRate)
	snap := make(Snapshot, a.Bins())

	// Warm-up call so one-time allocations are not counted.
	a.Write(frame)
	a.Snapshot(snap)

	allocs := testing.AllocsPerRun(100, func() {
		a.Write(frame)
		a.Snapshot(snap)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations per tick, got %.1f", allocs)
	}
}

func TestParseWindowFunc(t *testing.T) {
	tests := []struct {
		in      string
		want    WindowFunc
		wantErr bool
	}{
		{"blackman", Blackman, false},
		{"Hanning", Hann, false},
		{"NUTTALL", Nuttall, false},
		{"none", Rectangular, false},
		{"triangle", Blackman, true},
	}
	for _, tt := range tests {
		got, err := ParseWindowFunc(tt.in)
		if got != tt.want || (err != nil) != tt.wantErr {
			t.Errorf("ParseWindowFunc(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func BenchmarkAnalyzerTick(b *testing.B) {
	a, err := NewAnalyzer(Options{FFTSize: testFFTSize, SampleRate: testSampleRate, Window: Blackman, Smoothing: 0.8})
	if err != nil {
		b.Fatal(err)
	}
	frame := utils.GenerateComplexWave(testFrameSize, testSampleRate)
	snap := make(Snapshot, a.Bins())
	b.ReportAllocs()
	for b.Loop() {
		a.Write(frame)
		a.Snapshot(snap)
	}
}
