// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gordonklaus/portaudio"
)

var (
	// ErrPermissionDenied means the host refused access to the microphone.
	ErrPermissionDenied = errors.New("microphone access denied")
	// ErrDeviceUnavailable means no usable capture device could be opened.
	ErrDeviceUnavailable = errors.New("audio device unavailable")
)

// stream is the subset of *portaudio.Stream used here.
type stream interface {
	Start() error
	Stop() error
	Close() error
}

// openStreamFunc opens a callback stream; swapped in tests.
var openStreamFunc = func(params portaudio.StreamParameters, callback func([]float32)) (stream, error) {
	s, err := portaudio.OpenStream(params, callback)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// classify maps a PortAudio failure onto ErrPermissionDenied or
// ErrDeviceUnavailable, keeping the original error in the chain. Host APIs
// only report denial through their error text; anything else means the
// device could not be used.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrDeviceUnavailable) {
		return err
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "not permitted") ||
		strings.Contains(msg, "access denied") {
		return fmt.Errorf("%s: %w: %w", op, ErrPermissionDenied, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrDeviceUnavailable, err)
}
