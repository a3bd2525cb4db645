// SPDX-License-Identifier: MIT

// Package remote talks to the audio backend: the Uploader posts analysis
// ticks and the rolling sample buffer, the Fetcher polls for clips to play.
package remote

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"pulse/internal/analysis"
)

// Payload is the JSON body posted by the Uploader.
type Payload struct {
	FrequencyData []int   `json:"frequencyData"`
	AudioBuffer   string  `json:"audioBuffer"`
	SampleRate    float64 `json:"sampleRate"`
}

// NewPayload copies snap and encodes samples.
func NewPayload(snap analysis.Snapshot, samples []float32, sampleRate float64) Payload {
	freq := make([]int, len(snap))
	for i, v := range snap {
		freq[i] = int(v)
	}
	return Payload{
		FrequencyData: freq,
		AudioBuffer:   EncodeSamples(samples),
		SampleRate:    sampleRate,
	}
}

// EncodeSamples returns samples as base64 of little-endian float32 values.
func EncodeSamples(samples []float32) string {
	raw := make([]byte, 4*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(s))
	}
	return base64.StdEncoding.EncodeToString(raw)
}

// DecodeSamples reverses EncodeSamples.
func DecodeSamples(encoded string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 audio buffer: %w", err)
	}
	if len(raw)%4 != 0 {
		return nil, errors.New("audio buffer length is not a multiple of 4 bytes")
	}
	samples := make([]float32, len(raw)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return samples, nil
}
