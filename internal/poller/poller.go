// Package poller samples the published spectrum at a fixed cadence and hands
// each frame to a set of sinks.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/petems/spectrum-tray/internal/app"
	"github.com/petems/spectrum-tray/internal/spectrum"
	"github.com/rs/zerolog"
)

// DefaultInterval matches the consumer refresh rate of 20 frames per second.
const DefaultInterval = 50 * time.Millisecond

// Frame is one sample of the published vector.
type Frame struct {
	SessionID string            `json:"session_id"`
	Sequence  uint64            `json:"seq"`
	Timestamp time.Time         `json:"timestamp"`
	Bins      []float64         `json:"bins"`
	Features  spectrum.Features `json:"features"`
}

// Sink receives frames. Publish should not block for long; the poller calls
// sinks one after another on its own goroutine.
type Sink interface {
	Name() string
	Publish(ctx context.Context, f Frame) error
}

// Source is the read side of the capture app.
type Source interface {
	SnapshotAt() (spectrum.Vector, time.Time)
	Session() (app.SessionInfo, bool)
}

type Poller struct {
	src      Source
	interval time.Duration
	log      zerolog.Logger

	mu    sync.Mutex
	sinks []Sink
	seq   uint64
}

func New(src Source, interval time.Duration, log zerolog.Logger, sinks ...Sink) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		src:      src,
		interval: interval,
		log:      log.With().Str("component", "poller").Logger(),
		sinks:    sinks,
	}
}

// AddSink registers another sink. Safe to call while Run is active.
func (p *Poller) AddSink(s Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sinks = append(p.sinks, s)
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.log.Debug().Dur("interval", p.interval).Msg("Poller started")
	for {
		select {
		case <-ctx.Done():
			p.log.Debug().Msg("Poller stopped")
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll builds one frame and publishes it to every sink. Nothing is published
// while capture is not running.
func (p *Poller) Poll(ctx context.Context) (Frame, bool) {
	session, ok := p.src.Session()
	if !ok {
		return Frame{}, false
	}

	v, updated := p.src.SnapshotAt()
	if updated.IsZero() {
		updated = time.Now()
	}

	p.mu.Lock()
	p.seq++
	f := Frame{
		SessionID: session.ID,
		Sequence:  p.seq,
		Timestamp: updated,
		Bins:      v,
		Features:  spectrum.Extract(v),
	}
	sinks := make([]Sink, len(p.sinks))
	copy(sinks, p.sinks)
	p.mu.Unlock()

	for _, s := range sinks {
		if err := s.Publish(ctx, f); err != nil {
			p.log.Warn().Err(err).Str("sink", s.Name()).Uint64("seq", f.Sequence).Msg("Sink publish failed")
		}
	}
	return f, true
}
