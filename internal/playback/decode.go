// SPDX-License-Identifier: MIT
package playback

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/wav"
)

// ErrEmptyClip is returned when a payload decodes to zero samples.
var ErrEmptyClip = errors.New("clip has no samples")

// SamplesPayload is the JSON clip format: raw float samples plus their rate.
type SamplesPayload struct {
	Audio      []float32 `json:"audio"`
	SampleRate float64   `json:"sampleRate,omitempty"`
	Channels   int       `json:"channels,omitempty"`
}

// DecodeWAV reads a complete WAV file and returns it as a float32 clip.
func DecodeWAV(data []byte) (*Clip, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return nil, errors.New("invalid WAV data")
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode WAV: %w", err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, ErrEmptyClip
	}

	bitDepth := int(d.BitDepth)
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, fmt.Errorf("unsupported WAV bit depth %d", bitDepth)
	}

	samples := make([]float32, len(buf.Data))
	if bitDepth == 8 {
		// 8-bit PCM is unsigned.
		for i, v := range buf.Data {
			samples[i] = float32(v-128) / 128
		}
	} else {
		scale := 1 / float32(int64(1)<<(bitDepth-1))
		for i, v := range buf.Data {
			samples[i] = float32(v) * scale
		}
	}

	return NewClip(samples, float64(d.SampleRate), int(d.NumChans)), nil
}

// DecodeSamples reads the JSON samples format.
func DecodeSamples(r io.Reader) (*Clip, error) {
	var p SamplesPayload
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode samples payload: %w", err)
	}
	if len(p.Audio) == 0 {
		return nil, ErrEmptyClip
	}
	return NewClip(p.Audio, p.SampleRate, p.Channels), nil
}
