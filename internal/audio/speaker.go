// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"sync"

	applog "pulse/internal/log"
	"pulse/internal/playback"

	"github.com/gordonklaus/portaudio"
)

var (
	// ErrSpeakerBusy is returned by Play while a clip is still playing.
	ErrSpeakerBusy = errors.New("speaker is already playing")
	// ErrSpeakerStopped is returned by Play while Stop is in progress.
	ErrSpeakerStopped = errors.New("speaker is stopping")
)

// SpeakerOptions configures a Speaker.
type SpeakerOptions struct {
	Device          int // -1 for the system default output.
	FramesPerBuffer int
}

// Speaker is the single shared output for fetched clips. Each clip gets its
// own output stream opened at the clip's sample rate and channel count.
type Speaker struct {
	opts SpeakerOptions

	mu       sync.Mutex
	cur      *run
	stopping bool
	wg       sync.WaitGroup
}

var _ playback.Output = (*Speaker)(nil)

// run is one clip on one stream.
type run struct {
	clip     *playback.Clip
	pos      int
	finished chan struct{} // Closed by the callback after the last sample.
	stop     chan struct{} // Closed by Stop.
	stopOnce sync.Once
	doneOnce sync.Once
}

// NewSpeaker creates an idle speaker.
func NewSpeaker(opts SpeakerOptions) *Speaker {
	return &Speaker{opts: opts}
}

// Play starts clip and returns once the stream is running. onEnded is
// called once, from another goroutine, after the last sample has been
// handed to the device. A clip interrupted by Stop does not call onEnded.
func (s *Speaker) Play(clip *playback.Clip, onEnded func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopping {
		return ErrSpeakerStopped
	}
	if s.cur != nil {
		return ErrSpeakerBusy
	}
	if len(clip.Samples) == 0 {
		return playback.ErrEmptyClip
	}

	dev, err := OutputDevice(s.opts.Device)
	if err != nil {
		return fmt.Errorf("speaker: resolving output device: %w", err)
	}

	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: clip.Channels,
			Latency:  dev.DefaultHighOutputLatency,
		},
		SampleRate:      clip.SampleRate,
		FramesPerBuffer: s.opts.FramesPerBuffer,
	}

	r := &run{
		clip:     clip,
		finished: make(chan struct{}),
		stop:     make(chan struct{}),
	}
	st, err := openStreamFunc(params, r.fill)
	if err != nil {
		return fmt.Errorf("speaker: opening output stream: %w", err)
	}
	if err := st.Start(); err != nil {
		_ = st.Close()
		return fmt.Errorf("speaker: starting output stream: %w", err)
	}

	s.cur = r
	s.wg.Add(1)
	go s.wait(r, st, onEnded)
	return nil
}

// fill is the PortAudio output callback.
func (r *run) fill(out []float32) {
	n := copy(out, r.clip.Samples[r.pos:])
	r.pos += n
	clear(out[n:])
	if r.pos >= len(r.clip.Samples) {
		r.doneOnce.Do(func() { close(r.finished) })
	}
}

func (s *Speaker) wait(r *run, st stream, onEnded func()) {
	defer s.wg.Done()

	natural := false
	select {
	case <-r.finished:
		natural = true
	case <-r.stop:
	}

	if err := st.Stop(); err != nil {
		applog.Warnf("Speaker: Stopping stream: %v", err)
	}
	if err := st.Close(); err != nil {
		applog.Warnf("Speaker: Closing stream: %v", err)
	}

	s.mu.Lock()
	if s.cur == r {
		s.cur = nil
	}
	s.mu.Unlock()

	if natural && onEnded != nil {
		onEnded()
	}
}

// Stop interrupts the current clip, if any, and waits for its stream to
// close. Clips offered while Stop waits are refused with ErrSpeakerStopped,
// including one started from the onEnded of a clip that just finished.
func (s *Speaker) Stop() error {
	s.mu.Lock()
	r := s.cur
	s.stopping = true
	s.mu.Unlock()

	if r != nil {
		r.stopOnce.Do(func() { close(r.stop) })
	}
	s.wg.Wait()

	s.mu.Lock()
	s.stopping = false
	s.mu.Unlock()
	return nil
}

// Playing reports whether a clip is on the device.
func (s *Speaker) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur != nil
}
