package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alfredjeanlab/beacon/internal/client"
	"github.com/alfredjeanlab/beacon/internal/idgen"
	"github.com/alfredjeanlab/beacon/internal/model"
	"github.com/alfredjeanlab/beacon/internal/store"
)

func defaultNewID() (string, error) {
	return idgen.Generate()
}

// Activate starts an emergency session for the configured identity using the
// supplied fix, which must have been captured within the freshness window.
// Rejected without side effects while a session is activating or active.
func (e *Engine) Activate(ctx context.Context, fix model.PositionFix) error {
	e.mu.Lock()
	if e.session.State != model.StateInactive {
		e.mu.Unlock()
		return ErrAlreadyActive
	}
	identity := e.identity
	if identity == "" {
		e.mu.Unlock()
		return ErrNoIdentity
	}
	if err := fix.Validate(); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrLocationUnavailable, err)
	}
	if !fix.FreshWithin(e.fixWindow, time.Now()) {
		e.mu.Unlock()
		return ErrStaleFix
	}
	e.cancelQueued = false
	e.setStateLocked(model.StateActivating)
	e.mu.Unlock()

	resp, err := e.client.Send(ctx, identity, fix)
	if err != nil {
		e.mu.Lock()
		e.cancelQueued = false
		e.setStateLocked(model.StateInactive)
		e.mu.Unlock()
		return classifySend(err)
	}

	return e.enterActive(ctx, identity, &fix, resp.Address, false)
}

// Cancel ends the session at the user's request. It is a successful no-op
// when no session exists. A cancel issued while activation is in flight is
// queued and applied the moment the session reaches active, before any
// heartbeat is sent.
func (e *Engine) Cancel(ctx context.Context) error {
	e.mu.Lock()
	switch e.session.State {
	case model.StateInactive:
		e.mu.Unlock()
		return nil
	case model.StateActivating:
		e.cancelQueued = true
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	e.terminate(model.ReasonUserCancelled, true)
	return nil
}

// ResumeIfActive re-attaches local machinery to a session the backend still
// considers active. Called once at process start; it never creates a remote
// session. Only a clean inactive payload or a well-formed 404 may finalize
// prior local history; any other failure leaves state untouched.
func (e *Engine) ResumeIfActive(ctx context.Context) (bool, error) {
	e.mu.Lock()
	if e.session.State != model.StateInactive {
		e.mu.Unlock()
		return false, ErrAlreadyActive
	}
	identity := e.identity
	e.mu.Unlock()

	if identity == "" {
		// Nobody logged in; nothing to resume.
		return false, nil
	}

	active, err := e.client.Active(ctx, identity)
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			// The record does not exist: the session ended while we were
			// not running.
			e.finalizeStale(ctx, identity, model.ReasonNotFound)
			return false, nil
		}
		e.logger.Warn("resume status query failed, preserving state",
			"identity", identity, "error", err)
		return false, classifyQuery(err)
	}
	if !active {
		e.finalizeStale(ctx, identity, model.ReasonRemoteResolved)
		return false, nil
	}

	// Seed the sampler from the open record's last transmitted coordinates
	// so heartbeats resume without waiting for a fresh platform fix.
	var seed *model.PositionFix
	if rec, err := e.store.OpenSession(ctx, identity); err == nil &&
		(rec.LastLatitude != 0 || rec.LastLongitude != 0) {
		seed = &model.PositionFix{
			Latitude:   rec.LastLatitude,
			Longitude:  rec.LastLongitude,
			CapturedAt: time.Now(),
		}
	}

	if err := e.enterActive(ctx, identity, seed, "", true); err != nil {
		return false, err
	}
	return true, nil
}

// enterActive performs the INACTIVE/ACTIVATING -> ACTIVE transition entry
// actions: join the push channel, start the fallback poll, start the
// sampler, raise the alert and record the start. All-or-nothing: a failed
// entry action rolls back to INACTIVE with every piece stopped.
//
// fix is nil on the resume path, where no fresh fix is required.
func (e *Engine) enterActive(ctx context.Context, identity string, fix *model.PositionFix, address string, resumed bool) error {
	evCh, leave, err := e.channel.Join(identity)
	if err != nil {
		e.mu.Lock()
		e.cancelQueued = false
		e.setStateLocked(model.StateInactive)
		e.mu.Unlock()
		if !resumed {
			// Undo the remote activation so the backend does not carry a
			// session this process is not tracking.
			e.remoteCancelBestEffort(identity)
		}
		return fmt.Errorf("%w: %s", ErrNetworkUnreachable, err)
	}

	e.mu.Lock()

	// A new session begins: reset the termination guard.
	e.terminating.Store(false)

	now := time.Now()
	e.session = model.Session{
		Identity:          identity,
		State:             e.session.State,
		StartedAt:         now,
		TerminationReason: model.ReasonNone,
	}
	if fix != nil {
		t := fix.CapturedAt
		e.session.LastFixAt = &t
	}

	e.recordID = e.ensureRecordLocked(ctx, identity, now, fix, address, resumed)

	if e.cancelQueued {
		// Cancel arrived during activation. Reach ACTIVE for the state
		// machine's sake, then terminate immediately: no sampler, poll or
		// channel machinery ever starts, so no heartbeat follows the
		// acknowledged cancel.
		e.cancelQueued = false
		e.setStateLocked(model.StateActive)
		e.mu.Unlock()
		leave()
		e.terminate(model.ReasonUserCancelled, true)
		return nil
	}

	e.leave = leave
	e.sampler = e.samplers(identity, fix, e.recordFix, e.reportSampleError)
	e.pollStop = make(chan struct{})
	e.pollDone = make(chan struct{})
	e.pollKick = make(chan struct{}, 1)

	if err := e.alerter.Start(ctx); err != nil {
		e.logger.Warn("alert start failed", "error", err)
	}

	e.setStateLocked(model.StateActive)

	e.sampler.Start()
	go e.pollLoop(identity, e.pollStop, e.pollDone, e.pollKick)
	go e.watchEvents(evCh)

	e.mu.Unlock()

	e.logger.Info("emergency session active",
		"identity", identity, "resumed", resumed)
	return nil
}

// ensureRecordLocked creates (or, on resume, reuses) the persisted history
// record. History writes are best-effort: losing a history row must never
// block an emergency activation. Callers must hold e.mu.
func (e *Engine) ensureRecordLocked(ctx context.Context, identity string, now time.Time, fix *model.PositionFix, address string, resumed bool) string {
	if resumed {
		rec, err := e.store.OpenSession(ctx, identity)
		if err == nil {
			return rec.ID
		}
		if err != store.ErrNotFound {
			e.logger.Warn("looking up open session record", "error", err)
		}
	}

	id, err := e.newID()
	if err != nil {
		e.logger.Warn("generating session record id", "error", err)
		return ""
	}
	rec := &model.SessionRecord{
		ID:        id,
		Identity:  identity,
		StartedAt: now,
		Reason:    model.ReasonNone,
	}
	if fix != nil {
		rec.LastLatitude = fix.Latitude
		rec.LastLongitude = fix.Longitude
		rec.LastAddress = address
	}
	if err := e.store.CreateSession(ctx, rec); err != nil {
		e.logger.Warn("recording session start", "error", err)
		return ""
	}
	return id
}

// finalizeStale closes out a persisted session record whose remote
// counterpart ended while this process was not running. The user still gets
// the termination notice exactly once, on the next launch.
func (e *Engine) finalizeStale(ctx context.Context, identity string, reason model.TerminationReason) {
	rec, err := e.store.OpenSession(ctx, identity)
	if err == store.ErrNotFound {
		return
	}
	if err != nil {
		e.logger.Warn("looking up stale session record", "error", err)
		return
	}
	if err := e.store.FinalizeSession(ctx, rec.ID, time.Now(), reason); err != nil {
		e.logger.Warn("finalizing stale session record", "error", err)
	}
	e.notifier.TerminationNotice(identity, reason)
}

// recordFix notes each transmitted heartbeat on the session and its record.
func (e *Engine) recordFix(fix model.PositionFix, address string) {
	e.mu.Lock()
	if e.session.State != model.StateActive {
		e.mu.Unlock()
		return
	}
	t := fix.CapturedAt
	e.session.LastFixAt = &t
	id := e.recordID
	e.mu.Unlock()

	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()
	if err := e.store.UpdateSessionFix(ctx, id, fix.Latitude, fix.Longitude, address); err != nil {
		e.logger.Warn("recording heartbeat fix", "error", err)
	}
}

// reportSampleError absorbs sampler failures: a missing fix never ends the
// session, only the explicit termination triggers do.
func (e *Engine) reportSampleError(err error) {
	e.logger.Warn("location sample failed", "error", err)
}

func (e *Engine) remoteCancelBestEffort(identity string) {
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()
	if err := e.client.Cancel(ctx, identity); err != nil && !errors.Is(err, client.ErrNotFound) {
		e.logger.Warn("rollback cancel failed", "identity", identity, "error", err)
	}
}
