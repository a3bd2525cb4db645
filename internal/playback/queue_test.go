// SPDX-License-Identifier: MIT
package playback

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeOutput plays nothing; clips end when the test calls finish.
type fakeOutput struct {
	mu         sync.Mutex
	played     []*Clip
	current    func()
	rawEnded   func()
	playing    int
	maxPlaying int
	failures   []error
	stops      int
}

func (f *fakeOutput) Play(clip *Clip, onEnded func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		if err != nil {
			return err
		}
	}
	f.playing++
	if f.playing > f.maxPlaying {
		f.maxPlaying = f.playing
	}
	f.played = append(f.played, clip)
	f.rawEnded = onEnded
	f.current = func() {
		f.mu.Lock()
		f.playing--
		f.mu.Unlock()
		onEnded()
	}
	return nil
}

func (f *fakeOutput) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if f.current != nil {
		f.current = nil
		f.playing--
	}
	return nil
}

// finish ends the current clip, reporting whether one was playing.
func (f *fakeOutput) finish() bool {
	f.mu.Lock()
	end := f.current
	f.current = nil
	f.mu.Unlock()
	if end == nil {
		return false
	}
	end()
	return true
}

func (f *fakeOutput) playedIDs() []*Clip {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Clip(nil), f.played...)
}

func (f *fakeOutput) peak() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxPlaying
}

func testClip() *Clip {
	return NewClip([]float32{0, 0.5, -0.5, 0}, 8000, 1)
}

func TestQueuePlaysImmediatelyWhenIdle(t *testing.T) {
	out := &fakeOutput{}
	q := NewQueue(out, Options{})

	a := testClip()
	if err := q.Enqueue(a); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if q.State() != Playing || q.Active() != a {
		t.Fatalf("state = %v active = %v, want playing %v", q.State(), q.Active(), a.ID)
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}

	out.finish()
	if q.State() != Idle || q.Active() != nil {
		t.Errorf("after end: state = %v active = %v", q.State(), q.Active())
	}
}

func TestQueueFetchesDuringPlaybackPlayInOrder(t *testing.T) {
	out := &fakeOutput{}
	q := NewQueue(out, Options{})

	first := testClip()
	_ = q.Enqueue(first)

	// Three clips arrive while the first is still playing.
	waiting := []*Clip{testClip(), testClip(), testClip()}
	for _, c := range waiting {
		if err := q.Enqueue(c); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	if q.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", q.Len())
	}
	if got := len(out.playedIDs()); got != 1 {
		t.Fatalf("%d clips started while one was playing", got)
	}

	for out.finish() {
	}

	want := append([]*Clip{first}, waiting...)
	got := out.playedIDs()
	if len(got) != len(want) {
		t.Fatalf("played %d clips, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d played %s, want %s", i, got[i].ID, want[i].ID)
		}
	}
	if out.peak() != 1 {
		t.Errorf("max concurrent clips = %d, want 1", out.peak())
	}
}

func TestQueueDrainNoopWhilePlaying(t *testing.T) {
	out := &fakeOutput{}
	q := NewQueue(out, Options{})
	_ = q.Enqueue(testClip())
	_ = q.Enqueue(testClip())

	q.Drain()
	q.Drain()

	if got := len(out.playedIDs()); got != 1 {
		t.Errorf("Drain started %d clips while playing, want 1", got)
	}
	if q.Len() != 1 {
		t.Errorf("Len() = %d, want 1", q.Len())
	}

	// Drain on an empty idle queue is also a no-op.
	out.finish()
	out.finish()
	q.Drain()
	if q.State() != Idle {
		t.Errorf("state = %v, want idle", q.State())
	}
}

func TestQueueIgnoresRepeatedEnd(t *testing.T) {
	out := &fakeOutput{}
	q := NewQueue(out, Options{})

	a, b, c := testClip(), testClip(), testClip()
	_ = q.Enqueue(a)
	out.mu.Lock()
	endA := out.rawEnded
	out.mu.Unlock()
	_ = q.Enqueue(b)
	_ = q.Enqueue(c)

	out.finish() // a ends, b starts
	endA()       // stale callback for a

	if q.Active() != b {
		t.Fatalf("active = %v, want b", q.Active())
	}
	if q.Len() != 1 {
		t.Errorf("stale end skipped a clip: Len() = %d, want 1", q.Len())
	}
}

func TestQueueDropsClipWhenPlayFails(t *testing.T) {
	out := &fakeOutput{failures: []error{errors.New("device lost")}}
	q := NewQueue(out, Options{})

	bad := testClip()
	if err := q.Enqueue(bad); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if q.State() != Idle || q.Active() != nil || q.Len() != 0 {
		t.Fatalf("failed clip not dropped: state=%v active=%v len=%d", q.State(), q.Active(), q.Len())
	}

	good := testClip()
	_ = q.Enqueue(good)
	if q.Active() != good {
		t.Errorf("queue did not recover after failed play")
	}
}

func TestQueueFailedPlayMovesToNextClip(t *testing.T) {
	out := &fakeOutput{}
	q := NewQueue(out, Options{})

	_ = q.Enqueue(testClip())
	second, third := testClip(), testClip()
	_ = q.Enqueue(second)
	_ = q.Enqueue(third)

	out.mu.Lock()
	out.failures = []error{errors.New("bad format")}
	out.mu.Unlock()
	out.finish()

	if q.Active() != third {
		t.Errorf("active = %v, want third clip after second failed", q.Active())
	}
}

func TestQueueMaxQueue(t *testing.T) {
	out := &fakeOutput{}
	q := NewQueue(out, Options{MaxQueue: 1})

	_ = q.Enqueue(testClip()) // playing
	if err := q.Enqueue(testClip()); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Enqueue(testClip()); !errors.Is(err, ErrQueueFull) {
		t.Errorf("err = %v, want ErrQueueFull", err)
	}
}

func TestQueueCloseIdempotent(t *testing.T) {
	out := &fakeOutput{}
	q := NewQueue(out, Options{})
	_ = q.Enqueue(testClip())
	_ = q.Enqueue(testClip())

	out.mu.Lock()
	end := out.rawEnded
	out.mu.Unlock()

	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if out.stops != 1 {
		t.Errorf("output stopped %d times, want 1", out.stops)
	}
	if q.Len() != 0 || q.Active() != nil {
		t.Errorf("Close left len=%d active=%v", q.Len(), q.Active())
	}

	// A late end callback and a late enqueue change nothing.
	end()
	if err := q.Enqueue(testClip()); !errors.Is(err, ErrClosed) {
		t.Errorf("Enqueue after Close = %v, want ErrClosed", err)
	}
	if got := len(out.playedIDs()); got != 1 {
		t.Errorf("played %d clips after close, want 1", got)
	}
}

func TestQueueConcurrentNeverOverlaps(t *testing.T) {
	out := &fakeOutput{}
	q := NewQueue(out, Options{})

	const producers, perProducer = 4, 25
	total := producers * perProducer

	var wg sync.WaitGroup
	for range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perProducer {
				_ = q.Enqueue(testClip())
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		deadline := time.Now().Add(5 * time.Second)
		for len(out.playedIDs()) < total && time.Now().Before(deadline) {
			if !out.finish() {
				time.Sleep(time.Millisecond)
			}
		}
		out.finish()
	}()

	wg.Wait()
	<-done

	if got := len(out.playedIDs()); got != total {
		t.Errorf("played %d clips, want %d", got, total)
	}
	if out.peak() != 1 {
		t.Errorf("max concurrent clips = %d, want 1", out.peak())
	}
	seen := make(map[*Clip]bool, total)
	for _, c := range out.playedIDs() {
		if seen[c] {
			t.Fatalf("clip %s played twice", c.ID)
		}
		seen[c] = true
	}
}

func TestStateString(t *testing.T) {
	if Idle.String() != "idle" || Playing.String() != "playing" || State(9).String() != "unknown" {
		t.Error("unexpected state names")
	}
}
