// SPDX-License-Identifier: MIT

// Package udp streams feature frames as binary datagrams for external
// visualisers.
package udp

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"whisperer/internal/analysis"
	"whisperer/internal/config"
	applog "whisperer/internal/log"
)

// PacketSender delivers one encoded packet.
type PacketSender interface {
	Send(data []byte) error
}

// FrameSource provides the latest feature frame.
type FrameSource interface {
	Latest() *analysis.FeatureFrame
}

// Publisher sends the current feature frame at a fixed interval from its
// own goroutine. Nothing is sent while there is no frame.
type Publisher struct {
	sender   PacketSender
	source   FrameSource
	interval time.Duration
	now      func() time.Time

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects ticker and doneChan during Start/Stop.

	// Publishing goroutine only.
	seq     uint32
	lastSeq uint64
	f32     []float32
	packet  *bytes.Buffer
}

// NewPublisher creates a publisher. Intervals <= 0 default to ~60Hz.
func NewPublisher(interval time.Duration, sender PacketSender, source FrameSource) (*Publisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("udp publisher: sender cannot be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("udp publisher: frame source cannot be nil")
	}
	if interval <= 0 {
		interval = config.DefaultUDPSendInterval
		applog.Warnf("udp publisher: invalid interval, defaulting to %s", interval)
	}
	return &Publisher{
		sender:   sender,
		source:   source,
		interval: interval,
		now:      time.Now,
		packet:   new(bytes.Buffer),
	}, nil
}

// Start launches the publishing goroutine. Calling it while running is a
// no-op.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}
	ticker, done := p.ticker, p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Debugf("udp publisher: started (interval %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.publish()
			case <-done:
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
	applog.Debugf("udp publisher: stopped after %d packets", p.seq)
	return nil
}

// Close implements io.Closer.
func (p *Publisher) Close() error {
	return p.Stop()
}

// publish sends the current frame once; repeated frames are skipped.
func (p *Publisher) publish() {
	frame := p.source.Latest()
	if frame == nil || frame.Seq == p.lastSeq {
		return
	}

	var err error
	p.f32, err = appendPacket(p.packet, p.f32, p.seq+1, p.now().UnixNano(), frame.Values)
	if err != nil {
		applog.Errorf("udp publisher: packing frame %d: %v", frame.Seq, err)
		return
	}
	p.seq++
	p.lastSeq = frame.Seq

	if err := p.sender.Send(p.packet.Bytes()); err != nil {
		applog.Debugf("udp publisher: packet %d: %v", p.seq, err)
	}
}
