// SPDX-License-Identifier: MIT
package analysis

import "sync"

// RollingBuffer is a capped sliding window of raw samples. Once full, each
// append discards the oldest samples first. It is safe for concurrent use.
type RollingBuffer struct {
	mu     sync.RWMutex
	data   []float32
	head   int // Index of the oldest sample.
	filled int
}

// NewRollingBuffer creates a buffer holding at most capacity samples.
// A capacity below 1 is raised to 1.
func NewRollingBuffer(capacity int) *RollingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RollingBuffer{data: make([]float32, capacity)}
}

// NewSecondBuffer sizes a RollingBuffer to one second at sampleRate.
func NewSecondBuffer(sampleRate float64) *RollingBuffer {
	return NewRollingBuffer(int(sampleRate))
}

// Write appends samples; it satisfies FrameProcessor so the buffer can sit
// directly on the capture callback.
func (rb *RollingBuffer) Write(samples []float32) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	size := len(rb.data)
	if len(samples) >= size {
		copy(rb.data, samples[len(samples)-size:])
		rb.head = 0
		rb.filled = size
		return
	}

	for _, s := range samples {
		tail := (rb.head + rb.filled) % size
		rb.data[tail] = s
		if rb.filled < size {
			rb.filled++
		} else {
			rb.head = (rb.head + 1) % size
		}
	}
}

// AppendTo appends the buffered samples, oldest first, to dst and returns
// the extended slice.
func (rb *RollingBuffer) AppendTo(dst []float32) []float32 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	size := len(rb.data)
	end := rb.head + rb.filled
	if end <= size {
		return append(dst, rb.data[rb.head:end]...)
	}
	dst = append(dst, rb.data[rb.head:]...)
	return append(dst, rb.data[:end-size]...)
}

// Peak returns the largest absolute value among the newest n samples.
func (rb *RollingBuffer) Peak(n int) float32 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n > rb.filled {
		n = rb.filled
	}
	size := len(rb.data)
	var peak float32
	for i := rb.filled - n; i < rb.filled; i++ {
		v := rb.data[(rb.head+i)%size]
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}

// Len returns the number of buffered samples.
func (rb *RollingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.filled
}

// Cap returns the maximum number of samples kept.
func (rb *RollingBuffer) Cap() int {
	return len(rb.data)
}

// Clear empties the buffer.
func (rb *RollingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.head = 0
	rb.filled = 0
}

var _ FrameProcessor = (*RollingBuffer)(nil)
