// SPDX-License-Identifier: MIT

// Package playback holds fetched audio clips and the queue that feeds them,
// one at a time, to a single shared Output.
package playback

import (
	"time"

	"github.com/google/uuid"
)

// DefaultSampleRate is assumed for clips that do not state a rate.
const DefaultSampleRate = 44100

// Clip is one playable unit of fetched audio. Samples are interleaved
// float32 in [-1, 1].
type Clip struct {
	ID         uuid.UUID
	Samples    []float32
	SampleRate float64
	Channels   int
	FetchedAt  time.Time
}

// NewClip wraps decoded samples with a fresh ID. A non-positive sampleRate
// or channel count falls back to 44.1 kHz mono.
func NewClip(samples []float32, sampleRate float64, channels int) *Clip {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if channels <= 0 {
		channels = 1
	}
	return &Clip{
		ID:         uuid.New(),
		Samples:    samples,
		SampleRate: sampleRate,
		Channels:   channels,
		FetchedAt:  time.Now(),
	}
}

// Frames returns the number of sample frames (samples per channel).
func (c *Clip) Frames() int {
	return len(c.Samples) / c.Channels
}

// Duration returns the playing time of the clip.
func (c *Clip) Duration() time.Duration {
	return time.Duration(float64(c.Frames()) / c.SampleRate * float64(time.Second))
}
