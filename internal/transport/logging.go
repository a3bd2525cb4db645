// SPDX-License-Identifier: MIT
package transport

import (
	"sync/atomic"

	"pulse/internal/analysis"
	applog "pulse/internal/log"
)

// LoggingTransport writes every n-th snapshot to the debug log.
type LoggingTransport struct {
	every uint64
	count atomic.Uint64
}

var _ Transport = (*LoggingTransport)(nil)

// NewLoggingTransport logs one snapshot out of every. every below 1 logs
// all of them.
func NewLoggingTransport(every int) *LoggingTransport {
	if every < 1 {
		every = 1
	}
	applog.Debugf("Transport: Logging every %d snapshots", every)
	return &LoggingTransport{every: uint64(every)}
}

// Send logs snap when its turn comes. It never fails.
func (lt *LoggingTransport) Send(snap analysis.Snapshot) error {
	n := lt.count.Add(1)
	if (n-1)%lt.every == 0 {
		applog.Debugf("Transport: Snapshot %d %v", n, []uint8(snap))
	}
	return nil
}

// Count returns the number of snapshots seen.
func (lt *LoggingTransport) Count() uint64 {
	return lt.count.Load()
}

// Close does nothing.
func (lt *LoggingTransport) Close() error {
	return nil
}
