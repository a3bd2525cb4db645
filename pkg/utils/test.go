// SPDX-License-Identifier: MIT

// Package utils holds signal generators and helpers shared by tests.
package utils

import "math"

// GenerateSineWave returns size float32 samples of a sine at frequency Hz
// with the given peak amplitude.
func GenerateSineWave(size int, sampleRate, frequency, amplitude float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(math.Sin(2*math.Pi*frequency*t) * amplitude)
	}
	return buffer
}

// GenerateComplexWave returns a 440Hz fundamental plus two harmonics,
// peaking just below full scale.
func GenerateComplexWave(size int, sampleRate float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = float32(signal * 0.9)
	}
	return buffer
}

// Ramp returns size samples counting up from start in steps of 1. Useful to
// check ordering through buffers.
func Ramp(size int, start float32) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		buffer[i] = start + float32(i)
	}
	return buffer
}

// FindPeakBin returns the index of the largest value in magnitudes within
// [startBin, endBin]. The first index wins on ties.
func FindPeakBin[T ~uint8 | ~float64](magnitudes []T, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}
	if startBin < 0 {
		startBin = 0
	}
	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]
	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}
	return peakBin
}
