// Package client provides a transport-agnostic interface for the remote SOS
// backend and an HTTP/JSON implementation that talks to its REST API.
package client

import (
	"context"

	"github.com/alfredjeanlab/beacon/internal/model"
)

// SOSClient is the interface the reconciliation engine uses to communicate
// with the SOS backend. It is implemented by HTTPClient (default) and can be
// backed by any transport.
type SOSClient interface {
	// Send transmits a position fix for the identity. The backend interprets
	// the first Send for an identity as activation; subsequent calls are
	// heartbeats for the active session.
	Send(ctx context.Context, identity string, fix model.PositionFix) (*SendResponse, error)

	// Cancel ends the active session for the identity. A 404 means the
	// backend has no record of an active session.
	Cancel(ctx context.Context, identity string) error

	// Active reports whether the backend considers a session active for the
	// identity. A 404 response is returned as ErrNotFound, distinct from a
	// well-formed {hasActiveSOS:false} payload.
	Active(ctx context.Context, identity string) (bool, error)

	// Lifecycle
	Close() error
}

// SendResponse is the backend's reply to a send/heartbeat call.
type SendResponse struct {
	// Address is the reverse-geocoded street address of the transmitted fix,
	// when the backend resolves one.
	Address string `json:"address,omitempty"`
}
