// Package events delivers remote session-resolution signals to the
// reconciliation engine over a persistent push channel.
//
// The event set is fixed: a session is either resolved by the remote party or
// cancelled elsewhere. Delivery is at-most-once per physical connection, but
// duplicates can occur across reconnects; deduplication is the engine's job
// (its termination guard), not the channel's.
package events

import (
	"time"
)

// Kind identifies a push event.
type Kind string

const (
	// KindResolved means the remote party ended the emergency.
	KindResolved Kind = "resolved"
	// KindCancelled means a cancellation initiated elsewhere should be
	// reflected locally.
	KindCancelled Kind = "cancelled"
)

// Event is a typed push event for one identity. The payload carries no
// contract beyond presence.
type Event struct {
	Kind       Kind      `json:"kind"`
	Identity   string    `json:"identity"`
	ReceivedAt time.Time `json:"received_at"`
}

// Subject names for an identity's logical channel.
func ResolvedSubject(identity string) string  { return "sos." + identity + ".resolved" }
func CancelledSubject(identity string) string { return "sos." + identity + ".cancelled" }

// Channel is a persistent, reconnecting push connection. Join subscribes to
// the identity's logical channel and re-subscribes on every reconnect.
type Channel interface {
	// Join delivers typed events for the identity on the returned channel.
	// Call the returned cancel function to leave and close the channel.
	Join(identity string) (<-chan Event, func(), error)
	Close() error
}
