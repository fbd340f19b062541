package sampler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/alfredjeanlab/beacon/internal/model"
)

// Source produces position fixes on demand. Implementations wrap whatever
// platform facility provides geolocation.
type Source interface {
	Current(ctx context.Context) (model.PositionFix, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (model.PositionFix, error)

func (f SourceFunc) Current(ctx context.Context) (model.PositionFix, error) { return f(ctx) }

// FileSource reads the most recent fix from a JSON file maintained by the
// platform location service. The file holds a single PositionFix object.
type FileSource struct {
	Path string
}

func (s *FileSource) Current(ctx context.Context) (model.PositionFix, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return model.PositionFix{}, fmt.Errorf("reading fix file: %w", err)
	}
	var fix model.PositionFix
	if err := json.Unmarshal(data, &fix); err != nil {
		return model.PositionFix{}, fmt.Errorf("decoding fix file: %w", err)
	}
	if err := fix.Validate(); err != nil {
		return model.PositionFix{}, fmt.Errorf("invalid fix: %w", err)
	}
	return fix, nil
}

// LatestSource serves the most recently reported fix, re-stamped with the
// current time. Used when no platform fix feed is configured: the session
// then heartbeats its activation coordinates until a newer fix is pushed in
// via Set.
type LatestSource struct {
	mu  sync.Mutex
	fix *model.PositionFix
}

func (s *LatestSource) Set(fix model.PositionFix) {
	s.mu.Lock()
	s.fix = &fix
	s.mu.Unlock()
}

func (s *LatestSource) Current(ctx context.Context) (model.PositionFix, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fix == nil {
		return model.PositionFix{}, fmt.Errorf("no position fix reported yet")
	}
	fix := *s.fix
	fix.CapturedAt = time.Now()
	return fix, nil
}

// StaticSource returns a fixed coordinate stamped with the current time.
// Useful for development and tests.
type StaticSource struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
}

func (s *StaticSource) Current(ctx context.Context) (model.PositionFix, error) {
	return model.PositionFix{
		Latitude:   s.Latitude,
		Longitude:  s.Longitude,
		Accuracy:   s.Accuracy,
		CapturedAt: time.Now(),
	}, nil
}
