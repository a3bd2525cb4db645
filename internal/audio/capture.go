// SPDX-License-Identifier: MIT

// Package audio owns the PortAudio side of pulse: the microphone Capture
// source, the Speaker that plays fetched clips, device discovery and WAV
// recording of the capture.
//
// Thread Safety:
//   - Frame callbacks run on the PortAudio thread and use pre-allocated buffers
//   - Start/Close and Play/Stop are safe to call from any goroutine
package audio

import (
	"fmt"
	"sync"

	applog "pulse/internal/log"

	"github.com/gordonklaus/portaudio"
)

// FrameFunc receives one capture frame. The slice is reused after the call
// returns.
type FrameFunc func(frame []float32)

// Source is a start/stop producer of mono capture frames.
type Source interface {
	Start(onFrame FrameFunc) error
	Close() error
}

// CaptureOptions configures a Capture.
type CaptureOptions struct {
	Device          int // -1 for the system default input.
	SampleRate      float64
	FramesPerBuffer int
	LowLatency      bool
}

// Capture is a mono float32 microphone Source backed by PortAudio.
type Capture struct {
	opts CaptureOptions

	mu      sync.Mutex
	stream  stream
	closed  bool
	frame   []float32
	onFrame FrameFunc
}

var _ Source = (*Capture)(nil)

// NewCapture creates an unopened capture.
func NewCapture(opts CaptureOptions) *Capture {
	return &Capture{
		opts:  opts,
		frame: make([]float32, opts.FramesPerBuffer),
	}
}

// Start opens the input stream and delivers every buffer to onFrame.
// Failures wrap ErrPermissionDenied or ErrDeviceUnavailable.
func (c *Capture) Start(onFrame FrameFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("capture: %w: already closed", ErrDeviceUnavailable)
	}
	if c.stream != nil {
		return nil
	}

	dev, err := InputDevice(c.opts.Device)
	if err != nil {
		return classify("capture: resolving input device", err)
	}

	latency := dev.DefaultHighInputLatency
	if c.opts.LowLatency {
		latency = dev.DefaultLowInputLatency
	}
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: 1,
			Latency:  latency,
		},
		SampleRate:      c.opts.SampleRate,
		FramesPerBuffer: c.opts.FramesPerBuffer,
	}

	c.onFrame = onFrame
	s, err := openStreamFunc(params, c.process)
	if err != nil {
		return classify("capture: opening input stream", err)
	}
	if err := s.Start(); err != nil {
		_ = s.Close()
		return classify("capture: starting input stream", err)
	}
	c.stream = s

	applog.Infof("Audio: Capturing from %q at %.0f Hz, %d frames per buffer",
		dev.Name, c.opts.SampleRate, c.opts.FramesPerBuffer)
	return nil
}

// process is the PortAudio input callback.
func (c *Capture) process(in []float32) {
	if len(in) > len(c.frame) {
		in = in[:len(c.frame)]
	}
	n := copy(c.frame, in)
	c.onFrame(c.frame[:n])
}

// Close stops and releases the stream. It is safe to call more than once and
// before Start.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.stream == nil {
		return nil
	}

	s := c.stream
	c.stream = nil
	if err := s.Stop(); err != nil {
		_ = s.Close()
		return fmt.Errorf("capture: stopping input stream: %w", err)
	}
	if err := s.Close(); err != nil {
		return fmt.Errorf("capture: closing input stream: %w", err)
	}
	applog.Info("Audio: Capture closed")
	return nil
}
