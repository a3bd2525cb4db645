// SPDX-License-Identifier: MIT
package server

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

// Archive stores uploaded sample buffers as 16-bit mono WAV files.
type Archive struct {
	dir string
}

// NewArchive creates dir if needed.
func NewArchive(dir string) (*Archive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &Archive{dir: dir}, nil
}

// Save writes samples to a new file and returns its path. A non-positive
// sampleRate is stored as 44.1 kHz.
func (a *Archive) Save(samples []float32, sampleRate float64) (string, error) {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	path := filepath.Join(a.dir, "upload-"+uuid.NewString()+".wav")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}

	data := make([]int, len(samples))
	for i, s := range samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		data[i] = int(math.Round(v * math.MaxInt16))
	}
	enc := wav.NewEncoder(f, int(sampleRate), 16, 1, 1)
	err = enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: int(sampleRate)},
		Data:           data,
		SourceBitDepth: 16,
	})
	if cerr := enc.Close(); err == nil {
		err = cerr
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}
