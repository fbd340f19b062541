// Package archive periodically exports the session history as JSONL to
// off-device destinations, so a reporter's emergency record survives the
// device.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/beacon/internal/store"
)

// exportLimit caps how many history rows a single export carries.
const exportLimit = 1000

// Destination is the interface for an archive target.
type Destination interface {
	// Write sends the JSONL payload to the destination.
	Write(ctx context.Context, data []byte) error
}

// Scheduler runs periodic exports to one or more destinations.
type Scheduler struct {
	store        store.Store
	identity     func() string
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that exports the identity's session
// history to the given destinations at the specified interval. identity is
// resolved at export time so a login after startup is picked up.
func NewScheduler(s store.Store, identity func() string, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:        s,
		identity:     identity,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
	}
}

// Start begins periodic export. It runs an initial export immediately, then
// on each tick.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current export (if any) to
// finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	s.exportOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.exportOnce(ctx)
		}
	}
}

func (s *Scheduler) exportOnce(ctx context.Context) {
	identity := s.identity()
	if identity == "" {
		return
	}

	data, err := s.export(ctx, identity)
	if err != nil {
		s.logger.Warn("history export failed", "error", err)
		return
	}
	if data == nil {
		return
	}

	for _, dest := range s.destinations {
		if err := dest.Write(ctx, data); err != nil {
			s.logger.Warn("history archive write failed", "error", err)
		}
	}
}

// export renders the identity's session history as JSONL, newest first.
// Returns nil when there is no history yet.
func (s *Scheduler) export(ctx context.Context, identity string) ([]byte, error) {
	recs, err := s.store.ListSessions(ctx, identity, exportLimit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if len(recs) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, rec := range recs {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("encode session %s: %w", rec.ID, err)
		}
	}
	return buf.Bytes(), nil
}
