// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"pulse/internal/analysis"
	applog "pulse/internal/log"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Recorder writes capture frames to a mono PCM WAV file.
type Recorder struct {
	isRecording atomic.Bool

	mu         sync.Mutex
	path       string
	bitDepth   int
	scale      float64
	outputFile *os.File
	wavEncoder *wav.Encoder
	sampleBuf  *audio.IntBuffer // Reused for float to int conversion.
	frames     int64
}

var _ analysis.FrameProcessor = (*Recorder)(nil)

// NewRecorder creates dir if needed and opens a timestamped WAV file in it.
// bitDepth must be 16 or 32.
func NewRecorder(dir string, sampleRate float64, framesPerBuffer, bitDepth int) (*Recorder, error) {
	if bitDepth != 16 && bitDepth != 32 {
		return nil, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recording directory: %w", err)
	}
	path := filepath.Join(dir, "pulse-"+time.Now().Format("20060102-150405")+".wav")
	return StartRecording(path, sampleRate, framesPerBuffer, bitDepth)
}

// StartRecording opens path for writing and returns an active Recorder.
func StartRecording(path string, sampleRate float64, framesPerBuffer, bitDepth int) (*Recorder, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	r := &Recorder{
		path:       path,
		bitDepth:   bitDepth,
		scale:      float64(int64(1)<<(bitDepth-1) - 1),
		outputFile: file,
		wavEncoder: wav.NewEncoder(file, int(sampleRate), bitDepth, 1, 1),
		sampleBuf: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: 1,
				SampleRate:  int(sampleRate),
			},
			Data:           make([]int, framesPerBuffer),
			SourceBitDepth: bitDepth,
		},
	}
	r.isRecording.Store(true)
	applog.Infof("Audio: Recording to %s (%d-bit)", path, bitDepth)
	return r, nil
}

// Write converts frame to integer PCM and appends it to the file. Errors
// are logged; the capture callback cannot return them.
func (r *Recorder) Write(frame []float32) {
	if !r.isRecording.Load() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.wavEncoder == nil {
		return
	}

	if cap(r.sampleBuf.Data) < len(frame) {
		r.sampleBuf.Data = make([]int, len(frame))
	}
	r.sampleBuf.Data = r.sampleBuf.Data[:len(frame)]
	for i, s := range frame {
		v := math.Max(-1, math.Min(1, float64(s)))
		r.sampleBuf.Data[i] = int(math.Round(v * r.scale))
	}

	if err := r.wavEncoder.Write(r.sampleBuf); err != nil {
		applog.Errorf("Audio: Error writing to WAV file: %v", err)
		return
	}
	r.frames += int64(len(frame))
}

// Path returns the file being written.
func (r *Recorder) Path() string {
	return r.path
}

// Frames returns the number of samples written.
func (r *Recorder) Frames() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Close finalizes the WAV header and closes the file. Later calls do nothing.
func (r *Recorder) Close() error {
	if !r.isRecording.CompareAndSwap(true, false) {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	if r.wavEncoder != nil {
		errs = append(errs, r.wavEncoder.Close())
		r.wavEncoder = nil
	}
	if r.outputFile != nil {
		errs = append(errs, r.outputFile.Close())
		r.outputFile = nil
	}
	applog.Infof("Audio: Recording stopped, %d samples in %s", r.frames, r.path)
	return errors.Join(errs...)
}
