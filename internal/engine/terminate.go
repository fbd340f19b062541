package engine

import (
	"context"
	"errors"
	"time"

	"github.com/alfredjeanlab/beacon/internal/client"
	"github.com/alfredjeanlab/beacon/internal/model"
)

// terminate is the single termination routine. Every trigger — push event,
// poll observation, user cancel — lands here, and the compare-and-set guard
// admits exactly one per session lifecycle: the side effects below run once,
// in a fixed order, and later arrivals are no-ops.
//
// remoteCancel is true only for user-initiated cancellation, where this
// process must tell the backend to end the session. For the other triggers
// the backend already considers it over.
func (e *Engine) terminate(reason model.TerminationReason, remoteCancel bool) {
	if !e.terminating.CompareAndSwap(false, true) {
		return
	}

	e.mu.Lock()
	// The reason is set once, before entering TERMINATING, and is never
	// overwritten afterwards.
	e.session.TerminationReason = reason
	e.setStateLocked(model.StateTerminating)
	identity := e.session.Identity
	recordID := e.recordID
	smp := e.sampler
	e.sampler = nil
	leave := e.leave
	e.leave = nil
	pollStop, pollDone := e.pollStop, e.pollDone
	e.pollStop, e.pollDone, e.pollKick = nil, nil, nil
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()

	// Fixed side-effect order: stop sampler, stop poll, silence alert,
	// notify. The sampler and alert stop before any remote call so the user
	// never sees cancellation acknowledged while tracking continues.
	if smp != nil {
		smp.Stop()
	}
	if pollStop != nil {
		close(pollStop)
		<-pollDone
	}
	if leave != nil {
		leave()
	}
	if err := e.alerter.Stop(ctx); err != nil {
		e.logger.Warn("alert stop failed", "error", err)
	}

	if remoteCancel {
		if err := e.client.Cancel(ctx, identity); err != nil {
			if errors.Is(err, client.ErrNotFound) {
				// The backend had no record of the session; from the user's
				// side this is still a completed cancellation.
				e.logger.Info("remote session already gone", "identity", identity)
			} else {
				// Local teardown already happened and is not undone: the
				// user asked to stop, so tracking stays stopped even if the
				// backend could not be told.
				e.logger.Warn("remote cancel failed", "identity", identity, "error", err)
			}
		}
	}

	if recordID != "" {
		if err := e.store.FinalizeSession(ctx, recordID, time.Now(), reason); err != nil {
			e.logger.Warn("finalizing session record", "error", err)
		}
	}

	e.notifier.TerminationNotice(identity, reason)

	e.mu.Lock()
	e.recordID = ""
	e.session.LastFixAt = nil
	e.setStateLocked(model.StateInactive)
	e.mu.Unlock()

	e.logger.Info("termination complete", "identity", identity, "reason", reason)
}
