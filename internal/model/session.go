package model

import (
	"time"
)

// SessionState is the lifecycle state of an emergency session.
type SessionState string

const (
	StateInactive    SessionState = "inactive"
	StateActivating  SessionState = "activating"
	StateActive      SessionState = "active"
	StateTerminating SessionState = "terminating"
)

// Valid reports whether s is one of the known session states.
func (s SessionState) Valid() bool {
	switch s {
	case StateInactive, StateActivating, StateActive, StateTerminating:
		return true
	}
	return false
}

// TerminationReason records why a session ended. It is set exactly once per
// session lifecycle and never overwritten afterwards.
type TerminationReason string

const (
	ReasonNone           TerminationReason = "none"
	ReasonUserCancelled  TerminationReason = "user_cancelled"
	ReasonRemoteResolved TerminationReason = "remote_resolved"
	ReasonNotFound       TerminationReason = "not_found"
)

// Terminal reports whether the reason marks a completed termination.
func (r TerminationReason) Terminal() bool {
	return r != ReasonNone && r != ""
}

// Session is one emergency-alert lifecycle for one identity, from activation
// to termination. A terminated session is never reused: a later activation
// creates a logically new Session even for the same identity.
type Session struct {
	Identity          string            `json:"identity"`
	State             SessionState      `json:"state"`
	StartedAt         time.Time         `json:"started_at,omitzero"`
	LastFixAt         *time.Time        `json:"last_fix_at,omitempty"`
	TerminationReason TerminationReason `json:"termination_reason"`
}

// SessionRecord is the persisted history row for a session. It is created
// when a session becomes active and finalized exactly once by the
// termination routine.
type SessionRecord struct {
	ID            string            `json:"id"`
	Identity      string            `json:"identity"`
	StartedAt     time.Time         `json:"started_at"`
	EndedAt       *time.Time        `json:"ended_at,omitempty"`
	Reason        TerminationReason `json:"reason"`
	LastLatitude  float64           `json:"last_latitude"`
	LastLongitude float64           `json:"last_longitude"`
	LastAddress   string            `json:"last_address,omitempty"`
}

// Settings keys stored in the local key-value store.
const (
	SettingIdentity   = "identity"
	SettingCredential = "credential"
	SettingProfile    = "profile"
)
