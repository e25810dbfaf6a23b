// SPDX-License-Identifier: MIT
package transport

import (
	"context"
	"errors"
	"time"

	"fractalwave/internal/log"
	"fractalwave/internal/metrics"
)

// DefaultInterval is used when the configured interval is not positive.
const DefaultInterval = 33 * time.Millisecond

// Publisher periodically samples a Source and sends a Frame to every
// transport. It owns the transports and closes them when Run returns.
type Publisher struct {
	source     Source
	transports []Transport
	interval   time.Duration
	metrics    *metrics.Metrics
	log        *log.Logger

	seq uint32
	now func() time.Time
}

// PublisherOption customizes a Publisher.
type PublisherOption func(*Publisher)

// WithMetrics counts sent and failed frames per transport.
func WithMetrics(m *metrics.Metrics) PublisherOption {
	return func(p *Publisher) { p.metrics = m }
}

// NewPublisher creates a publisher. An invalid interval falls back to
// DefaultInterval.
func NewPublisher(source Source, interval time.Duration, transports []Transport, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		source:     source,
		transports: transports,
		interval:   interval,
		log:        log.New("transport"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.interval <= 0 {
		p.log.Warnf("invalid interval %s, defaulting to %s", interval, DefaultInterval)
		p.interval = DefaultInterval
	}
	return p
}

// Run publishes until ctx is done, then closes every transport.
func (p *Publisher) Run(ctx context.Context) error {
	names := make([]string, len(p.transports))
	for i, t := range p.transports {
		names[i] = t.Name()
	}
	p.log.Infof("publishing every %s to %v", p.interval, names)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return p.close()
		case <-ticker.C:
			p.publish()
		}
	}
}

// publish sends one frame while visualization is active. Frames are
// skipped otherwise so consumers see a gap rather than zeros.
func (p *Publisher) publish() {
	if !p.source.VisualizationActive() {
		return
	}

	p.seq++
	frame := Frame{
		Seq:       p.seq,
		Timestamp: p.now().UnixNano(),
		Bands:     p.source.Bands(),
	}

	for _, t := range p.transports {
		err := t.Send(frame)
		p.metrics.FrameSent(t.Name(), err)
		if err != nil {
			p.log.Debugf("%s: frame %d: %v", t.Name(), frame.Seq, err)
		}
	}
}

func (p *Publisher) close() error {
	var errs []error
	for _, t := range p.transports {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
