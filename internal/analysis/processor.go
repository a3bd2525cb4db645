// SPDX-License-Identifier: MIT
package analysis

// FrameProcessor consumes raw capture frames. Implementations are called from
// the capture callback and must not block.
type FrameProcessor interface {
	// Write consumes one frame of mono float32 samples in [-1, 1].
	Write(frame []float32)
}

// SnapshotProvider exposes the most recent Frequency Snapshot to consumers
// that poll on their own schedule (UDP publisher, terminal view).
type SnapshotProvider interface {
	// LatestInto copies the latest snapshot into dst and returns the number
	// of bins copied.
	LatestInto(dst Snapshot) int
	// Bins returns the number of frequency bins per snapshot.
	Bins() int
}
