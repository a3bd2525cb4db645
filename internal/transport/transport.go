// SPDX-License-Identifier: MIT

// Package transport publishes Frequency Snapshots to scene clients.
package transport

import (
	"errors"
	"sync/atomic"
	"time"

	"pulse/internal/analysis"
)

// Transport sends snapshots somewhere. Send must not block the render tick
// and must not keep a reference to snap after returning.
type Transport interface {
	Send(snap analysis.Snapshot) error
	Close() error
}

// Message is the JSON form of a snapshot.
type Message struct {
	Type      string `json:"type"`
	Seq       uint64 `json:"seq"`
	Timestamp int64  `json:"timestamp"` // Unix milliseconds.
	Bins      []int  `json:"bins"`
	// Bands holds per-band levels in [0, 1] when a BandMeter is attached.
	Bands map[string]float64 `json:"bands,omitempty"`
}

// NewMessage copies snap into a Message.
func NewMessage(seq uint64, snap analysis.Snapshot, at time.Time) Message {
	bins := make([]int, len(snap))
	for i, v := range snap {
		bins[i] = int(v)
	}
	return Message{Type: "snapshot", Seq: seq, Timestamp: at.UnixMilli(), Bins: bins}
}

// Multi fans a snapshot out to several transports.
type Multi struct {
	transports []Transport
	closed     atomic.Bool
}

var _ Transport = (*Multi)(nil)

// NewMulti returns a Transport sending to every non-nil t.
func NewMulti(ts ...Transport) *Multi {
	m := &Multi{}
	for _, t := range ts {
		if t != nil {
			m.transports = append(m.transports, t)
		}
	}
	return m
}

// Len returns the number of wrapped transports.
func (m *Multi) Len() int {
	return len(m.transports)
}

// Send forwards snap to every transport and joins their errors.
func (m *Multi) Send(snap analysis.Snapshot) error {
	var errs []error
	for _, t := range m.transports {
		errs = append(errs, t.Send(snap))
	}
	return errors.Join(errs...)
}

// Close closes every transport once.
func (m *Multi) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	for _, t := range m.transports {
		errs = append(errs, t.Close())
	}
	return errors.Join(errs...)
}
