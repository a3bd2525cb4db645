// SPDX-License-Identifier: MIT
package audio

import (
	"sync"
	"testing"
	"time"

	"github.com/gordonklaus/portaudio"
)

// fakeStream stands in for a PortAudio stream. When auto is set, Start runs
// the callback on its own goroutine until Stop, like the PortAudio thread.
type fakeStream struct {
	params   portaudio.StreamParameters
	callback func([]float32)
	auto     bool
	startErr error

	mu      sync.Mutex
	started int
	stopped int
	closed  int
	output  []float32

	quit     chan struct{}
	quitOnce sync.Once
	wg       sync.WaitGroup
}

func (f *fakeStream) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.mu.Lock()
	f.started++
	f.mu.Unlock()
	if !f.auto {
		return nil
	}
	f.quit = make(chan struct{})
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		buf := make([]float32, f.params.FramesPerBuffer*max(1, f.params.Output.Channels))
		for {
			select {
			case <-f.quit:
				return
			default:
			}
			f.callback(buf)
			f.mu.Lock()
			f.output = append(f.output, buf...)
			f.mu.Unlock()
			time.Sleep(100 * time.Microsecond)
		}
	}()
	return nil
}

func (f *fakeStream) Stop() error {
	if f.quit != nil {
		f.quitOnce.Do(func() { close(f.quit) })
		f.wg.Wait()
	}
	f.mu.Lock()
	f.stopped++
	f.mu.Unlock()
	return nil
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	return nil
}

func (f *fakeStream) counts() (started, stopped, closed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started, f.stopped, f.closed
}

// fakeStreams records every stream opened during a test.
type fakeStreams struct {
	mu      sync.Mutex
	streams []*fakeStream
}

func (fs *fakeStreams) last() *fakeStream {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.streams) == 0 {
		return nil
	}
	return fs.streams[len(fs.streams)-1]
}

// useFakeStreams replaces openStreamFunc for the duration of the test.
func useFakeStreams(t *testing.T, auto bool, openErr error) *fakeStreams {
	t.Helper()
	orig := openStreamFunc
	t.Cleanup(func() { openStreamFunc = orig })

	fs := &fakeStreams{}
	openStreamFunc = func(params portaudio.StreamParameters, callback func([]float32)) (stream, error) {
		if openErr != nil {
			return nil, openErr
		}
		s := &fakeStream{params: params, callback: callback, auto: auto}
		fs.mu.Lock()
		fs.streams = append(fs.streams, s)
		fs.mu.Unlock()
		return s, nil
	}
	return fs
}

// useFakeDevices installs one input and one output device as the defaults.
func useFakeDevices(t *testing.T) {
	t.Helper()
	in := &portaudio.DeviceInfo{Name: "Mock Mic", MaxInputChannels: 1, DefaultSampleRate: 44100}
	out := &portaudio.DeviceInfo{Name: "Mock Speaker", MaxOutputChannels: 2, DefaultSampleRate: 44100}

	origDevices, origIn, origOut := paLibDevicesFunc, paLibDefaultInputDeviceFunc, paLibDefaultOutputDeviceFunc
	t.Cleanup(func() {
		paLibDevicesFunc, paLibDefaultInputDeviceFunc, paLibDefaultOutputDeviceFunc = origDevices, origIn, origOut
	})
	paLibDevicesFunc = func() ([]*portaudio.DeviceInfo, error) {
		return []*portaudio.DeviceInfo{in, out}, nil
	}
	paLibDefaultInputDeviceFunc = func() (*portaudio.DeviceInfo, error) { return in, nil }
	paLibDefaultOutputDeviceFunc = func() (*portaudio.DeviceInfo, error) { return out, nil }
}
