// SPDX-License-Identifier: MIT
package udp

import (
	"fmt"
	"sync"
	"time"

	"pulse/internal/analysis"
	applog "pulse/internal/log"
)

// Sender transmits one datagram.
type Sender interface {
	Send(data []byte) error
	Close() error
}

// Publisher reads the latest snapshot from a provider on a fixed interval
// and sends it as a packet. It never runs the transform itself.
type Publisher struct {
	sender   Sender
	source   analysis.SnapshotProvider
	interval time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex

	sequenceNum uint32

	// Reused on every tick.
	snap   analysis.Snapshot
	packet []byte
}

// NewPublisher validates its inputs. An interval <= 0 defaults to ~30Hz.
func NewPublisher(interval time.Duration, sender Sender, source analysis.SnapshotProvider) (*Publisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: sender cannot be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("UDPPublisher: snapshot source cannot be nil")
	}
	if interval <= 0 {
		interval = 33 * time.Millisecond
		applog.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}

	bins := source.Bins()
	applog.Infof("UDPPublisher: Initializing (Interval: %s, Bins: %d)", interval, bins)
	return &Publisher{
		sender:   sender,
		source:   source,
		interval: interval,
		snap:     make(analysis.Snapshot, bins),
		packet:   make([]byte, 0, HeaderSize+bins),
	}, nil
}

// Start launches the publishing goroutine. Calling Start while running does
// nothing.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("UDPPublisher: Start called but already running.")
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}
	ticker, doneChan := p.ticker, p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ticker.C:
				p.publish()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop ends the goroutine and waits for it. It is safe to call repeatedly.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	applog.Debugf("UDPPublisher: Stopped after %d packets", p.sequenceNum)
	return nil
}

func (p *Publisher) publish() {
	n := p.source.LatestInto(p.snap)
	p.sequenceNum++

	var err error
	p.packet, err = AppendPacket(p.packet[:0], Packet{
		Seq:       p.sequenceNum,
		Timestamp: time.Now().UnixNano(),
		Bins:      p.snap[:n],
	})
	if err != nil {
		applog.Errorf("UDPPublisher: Error packing snapshot: %v", err)
		return
	}
	if err := p.sender.Send(p.packet); err != nil {
		return // Sender logs its own failures.
	}
	applog.Debugf("UDPPublisher: Sent packet %d (%d bytes)", p.sequenceNum, len(p.packet))
}

// Close stops publishing and closes the sender.
func (p *Publisher) Close() error {
	if err := p.Stop(); err != nil {
		return err
	}
	return p.sender.Close()
}
