package store

import (
	"context"
	"errors"
	"time"

	"github.com/alfredjeanlab/beacon/internal/model"
)

// ErrNotFound is returned when a setting or session record does not exist.
var ErrNotFound = errors.New("not found")

// Store is the local persistence interface: a small key-value settings table
// (identity, bearer credential, cached profile fields) plus the session
// history list.
type Store interface {
	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error

	// Session history
	CreateSession(ctx context.Context, rec *model.SessionRecord) error
	UpdateSessionFix(ctx context.Context, id string, lat, lng float64, address string) error
	// FinalizeSession sets the end time and reason. It is a no-op for a
	// record that is already finalized, so the termination reason is never
	// overwritten.
	FinalizeSession(ctx context.Context, id string, endedAt time.Time, reason model.TerminationReason) error
	// OpenSession returns the most recent unfinalized record for the
	// identity, or ErrNotFound.
	OpenSession(ctx context.Context, identity string) (*model.SessionRecord, error)
	ListSessions(ctx context.Context, identity string, limit int) ([]*model.SessionRecord, error)

	// Lifecycle
	Close() error
}
