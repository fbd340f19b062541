// Package sampler produces periodic position fixes for an active emergency
// session and transmits each one to the SOS backend as a heartbeat.
package sampler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/beacon/internal/client"
	"github.com/alfredjeanlab/beacon/internal/model"
)

// Sender is the subset of client.SOSClient the sampler needs.
type Sender interface {
	Send(ctx context.Context, identity string, fix model.PositionFix) (*client.SendResponse, error)
}

// Sampler sends an immediate fix when started, then one fix per interval
// until stopped. A failure to obtain or transmit a fix is reported upward
// but never stops the sampler: only the termination routine does that.
type Sampler struct {
	identity string
	source   Source
	sender   Sender
	interval time.Duration
	logger   *slog.Logger

	// OnFix is called after each successfully transmitted fix, with the
	// reverse-geocoded address when the backend resolved one. May be nil.
	OnFix func(fix model.PositionFix, address string)

	// OnError is called when obtaining or transmitting a fix fails. May be nil.
	OnError func(err error)

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New creates a sampler for the identity. Start must be called to begin.
func New(identity string, source Source, sender Sender, interval time.Duration, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{
		identity: identity,
		source:   source,
		sender:   sender,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sampling loop. The first fix is sent immediately.
func (s *Sampler) Start() {
	go s.run()
}

// Stop halts the loop and waits for the in-flight sample (if any) to finish.
// Safe to call more than once and from any termination path, but only after
// Start has been called.
func (s *Sampler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *Sampler) run() {
	defer close(s.done)

	s.sampleOnce()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sampleOnce()
		}
	}
}

func (s *Sampler) sampleOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	fix, err := s.source.Current(ctx)
	if err != nil {
		s.logger.Warn("location fix unavailable", "identity", s.identity, "error", err)
		s.report(err)
		return
	}

	resp, err := s.sender.Send(ctx, s.identity, fix)
	if err != nil {
		s.logger.Warn("heartbeat failed", "identity", s.identity, "error", err)
		s.report(err)
		return
	}

	s.logger.Debug("heartbeat sent",
		"identity", s.identity,
		"lat", fix.Latitude,
		"lng", fix.Longitude,
		"address", resp.Address)
	if s.OnFix != nil {
		s.OnFix(fix, resp.Address)
	}
}

func (s *Sampler) report(err error) {
	if s.OnError != nil {
		s.OnError(err)
	}
}
