// SPDX-License-Identifier: MIT
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	applog "pulse/internal/log"
	"pulse/internal/observe"
)

var (
	// ErrPlayback wraps failures reported by an Output.
	ErrPlayback = errors.New("playback failed")
	// ErrQueueFull is returned by Enqueue when MaxQueue clips are waiting.
	ErrQueueFull = errors.New("playback queue full")
	// ErrClosed is returned by Enqueue after Close.
	ErrClosed = errors.New("playback queue closed")
)

// Output is the single shared audio sink. Play starts a clip and returns
// without waiting for it; onEnded is called once when the clip finishes.
// Stop interrupts whatever is playing.
type Output interface {
	Play(clip *Clip, onEnded func()) error
	Stop() error
}

// State of the queue's output assignment.
type State int

const (
	Idle State = iota
	Playing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	default:
		return "unknown"
	}
}

// Clip results recorded in metrics.
const (
	resultPlayed  = "played"
	resultFailed  = "failed"
	resultDropped = "dropped"
)

// Options configures a Queue.
type Options struct {
	MaxQueue int              // Pending clip limit; 0 is unlimited.
	Metrics  *observe.Metrics // Optional.
}

// Queue is a FIFO of clips in front of one Output. A clip is handed to the
// output only in the Idle state, so at most one clip plays at a time.
type Queue struct {
	out      Output
	maxQueue int
	metrics  *observe.Metrics

	mu      sync.Mutex
	state   State
	pending []*Clip
	active  *Clip
	closed  bool
}

// NewQueue creates an idle queue feeding out.
func NewQueue(out Output, opts Options) *Queue {
	return &Queue{
		out:      out,
		maxQueue: opts.MaxQueue,
		metrics:  opts.Metrics,
	}
}

// Enqueue appends clip and drains the queue.
func (q *Queue) Enqueue(clip *Clip) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if q.maxQueue > 0 && len(q.pending) >= q.maxQueue {
		q.mu.Unlock()
		q.metrics.RecordClip(context.Background(), resultDropped)
		return fmt.Errorf("%w: %d clips waiting", ErrQueueFull, q.maxQueue)
	}
	q.pending = append(q.pending, clip)
	q.mu.Unlock()

	q.metrics.AddQueueDepth(context.Background(), 1)
	applog.Debugf("Playback: Queued clip %s (%.2fs)", clip.ID, clip.Duration().Seconds())

	q.Drain()
	return nil
}

// Drain starts the next clip if the queue is Idle and non-empty; otherwise
// it does nothing. A clip the output refuses is dropped and draining moves on
// to the next one.
func (q *Queue) Drain() {
	for {
		q.mu.Lock()
		if q.closed || q.state != Idle || len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		clip := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.active = clip
		q.state = Playing
		q.mu.Unlock()

		q.metrics.AddQueueDepth(context.Background(), -1)
		applog.Debugf("Playback: Playing clip %s", clip.ID)

		err := q.out.Play(clip, func() { q.ended(clip) })
		if err == nil {
			return
		}

		q.mu.Lock()
		if q.active == clip {
			q.active = nil
			q.state = Idle
		}
		q.mu.Unlock()

		q.metrics.RecordClip(context.Background(), resultFailed)
		applog.Errorf("Playback: Dropping clip %s: %v", clip.ID, fmt.Errorf("%w: %w", ErrPlayback, err))
	}
}

// ended moves Playing back to Idle, but only for the clip still active.
func (q *Queue) ended(clip *Clip) {
	q.mu.Lock()
	if q.active != clip {
		q.mu.Unlock()
		return
	}
	q.active = nil
	q.state = Idle
	q.mu.Unlock()

	q.metrics.RecordClip(context.Background(), resultPlayed)
	applog.Debugf("Playback: Clip %s ended", clip.ID)
	q.Drain()
}

// State returns the current state.
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Active returns the clip being played, or nil.
func (q *Queue) Active() *Clip {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}

// Len returns the number of clips waiting, excluding the active one.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close discards pending clips and stops the output. Later calls return nil
// and do nothing.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	dropped := len(q.pending)
	q.pending = nil
	playing := q.active != nil
	q.active = nil
	q.state = Idle
	q.mu.Unlock()

	q.metrics.AddQueueDepth(context.Background(), -int64(dropped))
	if dropped > 0 {
		applog.Infof("Playback: Discarded %d pending clips", dropped)
	}
	if !playing {
		return nil
	}
	if err := q.out.Stop(); err != nil {
		return fmt.Errorf("%w: stopping output: %w", ErrPlayback, err)
	}
	return nil
}
