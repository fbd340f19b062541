package engine

import (
	"errors"
	"fmt"

	"github.com/alfredjeanlab/beacon/internal/client"
)

// Typed errors surfaced by engine operations. Callers classify with
// errors.Is; each maps to a distinct user-facing affordance.
var (
	// ErrNoIdentity means no reporter identity is stored; the user must log
	// in before activating.
	ErrNoIdentity = errors.New("no identity configured")

	// ErrAlreadyActive is returned for activation attempts while a session
	// is activating or active. The attempt has no side effects.
	ErrAlreadyActive = errors.New("session already active")

	// ErrStaleFix means the supplied position fix is older than the
	// freshness window. Retryable with a new fix.
	ErrStaleFix = errors.New("position fix is stale")

	// ErrPermissionDenied means location access was refused. The user is
	// redirected to settings; the session stays inactive.
	ErrPermissionDenied = errors.New("location permission denied")

	// ErrLocationUnavailable means no usable fix could be obtained.
	// Retryable by re-invoking activation.
	ErrLocationUnavailable = errors.New("location unavailable")

	// ErrNetworkUnreachable is a transient transport failure. During
	// activation it blocks the transition; during an active session it
	// never terminates anything.
	ErrNetworkUnreachable = errors.New("network unreachable")

	// ErrRemoteConflict means the backend reports an already-active session
	// under another flow. Surfaced, not fatal.
	ErrRemoteConflict = errors.New("remote session conflict")

	// ErrAmbiguousStatus means a status query failed in a way that is
	// neither a clean inactive payload nor a clear not-found. Current state
	// is preserved.
	ErrAmbiguousStatus = errors.New("ambiguous session status")
)

// classifySend maps failures of the activation/heartbeat call onto the
// engine taxonomy.
func classifySend(err error) error {
	switch {
	case errors.Is(err, client.ErrConflict):
		return fmt.Errorf("%w: %s", ErrRemoteConflict, err)
	case errors.Is(err, client.ErrUnauthorized):
		// Credential invalid; deferred to the auth collaborator.
		return err
	default:
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			// Backend rejected the call; surface as-is, retryable.
			return err
		}
		return fmt.Errorf("%w: %s", ErrNetworkUnreachable, err)
	}
}

// classifyQuery maps failures of the active-status query onto the engine
// taxonomy. A 404 is deliberately not mapped here: it is the one response
// that carries termination semantics, so callers check client.ErrNotFound
// before classifying. Everything else is ambiguous and preserves state.
func classifyQuery(err error) error {
	return fmt.Errorf("%w: %s", ErrAmbiguousStatus, err)
}
