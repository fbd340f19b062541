// Package engine owns the emergency session state machine.
//
// The engine reconciles three independent signals that an emergency has
// ended: a push event from the realtime channel, the fallback status poll,
// and a user-initiated cancel. All three funnel into one termination routine
// gated by a compare-and-set guard, so the side-effect sequence (stop
// sampler, stop poll, silence alert, notify) runs exactly once per session
// no matter which signals fire or how many times.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alfredjeanlab/beacon/internal/alert"
	"github.com/alfredjeanlab/beacon/internal/client"
	"github.com/alfredjeanlab/beacon/internal/events"
	"github.com/alfredjeanlab/beacon/internal/lifecycle"
	"github.com/alfredjeanlab/beacon/internal/model"
	"github.com/alfredjeanlab/beacon/internal/store"
)

const (
	// defaultPollInterval is the fallback poll cadence while active.
	defaultPollInterval = 10 * time.Second

	// defaultFixWindow is how recent a fix must be to activate with it.
	defaultFixWindow = 30 * time.Second

	// defaultInactiveThreshold is how many consecutive clean
	// hasActiveSOS:false poll responses terminate the session. A 404
	// terminates on first sight regardless.
	defaultInactiveThreshold = 3

	// sideEffectTimeout bounds the remote calls made by the termination
	// routine and fix recording.
	sideEffectTimeout = 10 * time.Second
)

// FixStreamer is the sampler surface the engine controls: started on
// activation, stopped exactly once by the termination routine.
type FixStreamer interface {
	Start()
	Stop()
}

// SamplerFactory builds a sampler for one session. initial is the fix the
// session was activated with (nil on the resume path). onFix is invoked
// after each transmitted fix; onError after each failed sample.
type SamplerFactory func(identity string, initial *model.PositionFix, onFix func(model.PositionFix, string), onError func(error)) FixStreamer

// Notifier surfaces the user-visible termination notice. It is called
// exactly once per session lifecycle.
type Notifier interface {
	TerminationNotice(identity string, reason model.TerminationReason)
}

// LogNotifier writes notices to the log.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) TerminationNotice(identity string, reason model.TerminationReason) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("emergency session ended", "identity", identity, "reason", reason)
}

// Options configures a new Engine. Client, Channel, Store and Samplers are
// required; the rest default sensibly.
type Options struct {
	Client   client.SOSClient
	Channel  events.Channel
	Store    store.Store
	Samplers SamplerFactory

	Alerter   alert.Alerter
	Notifier  Notifier
	Lifecycle *lifecycle.Observer
	Logger    *slog.Logger

	PollInterval      time.Duration
	FixWindow         time.Duration
	InactiveThreshold int

	// NewID produces session record IDs. Defaults to idgen.Generate.
	NewID func() (string, error)
}

// Engine is the reconciliation engine. It is a process-scoped singleton:
// created once at startup, torn down on shutdown, never recreated
// mid-session.
type Engine struct {
	client   client.SOSClient
	channel  events.Channel
	store    store.Store
	samplers SamplerFactory
	alerter  alert.Alerter
	notifier Notifier
	logger   *slog.Logger
	newID    func() (string, error)

	pollInterval      time.Duration
	fixWindow         time.Duration
	inactiveThreshold int

	// terminating is the Termination Guard: set by the first termination
	// trigger, reset only when a new session begins.
	terminating atomic.Bool

	mu           sync.Mutex
	identity     string
	session      model.Session
	recordID     string
	cancelQueued bool

	// Per-activation machinery, owned exclusively by the engine. The
	// sampler, channel and poll only raise events; they never touch state.
	sampler  FixStreamer
	leave    func()
	pollStop chan struct{}
	pollDone chan struct{}
	pollKick chan struct{}

	// OnTransition, when set, is invoked with a session snapshot on every
	// state change. Called synchronously with internal locks held: it must
	// be fast and must not call back into the engine.
	OnTransition func(model.Session)

	lifecycleCancel func()
	closeOnce       sync.Once
}

// New creates the engine and, when a lifecycle observer is supplied, starts
// watching for foreground transitions to trigger out-of-band polls.
func New(opts Options) *Engine {
	e := &Engine{
		client:            opts.Client,
		channel:           opts.Channel,
		store:             opts.Store,
		samplers:          opts.Samplers,
		alerter:           opts.Alerter,
		notifier:          opts.Notifier,
		logger:            opts.Logger,
		newID:             opts.NewID,
		pollInterval:      opts.PollInterval,
		fixWindow:         opts.FixWindow,
		inactiveThreshold: opts.InactiveThreshold,
		session:           model.Session{State: model.StateInactive, TerminationReason: model.ReasonNone},
	}
	if e.alerter == nil {
		e.alerter = alert.Noop{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.notifier == nil {
		e.notifier = &LogNotifier{Logger: e.logger}
	}
	if e.newID == nil {
		e.newID = defaultNewID
	}
	if e.pollInterval <= 0 {
		e.pollInterval = defaultPollInterval
	}
	if e.fixWindow <= 0 {
		e.fixWindow = defaultFixWindow
	}
	if e.inactiveThreshold <= 0 {
		e.inactiveThreshold = defaultInactiveThreshold
	}

	if opts.Lifecycle != nil {
		ch, cancel := opts.Lifecycle.Subscribe()
		e.lifecycleCancel = cancel
		go e.watchLifecycle(ch)
	}

	return e
}

// SetNotifier replaces the termination notifier. Must be called before any
// session activity; the control server installs itself here so notices reach
// its event stream as well as the log.
func (e *Engine) SetNotifier(n Notifier) {
	if n != nil {
		e.notifier = n
	}
}

// LoadIdentity reads the stored reporter identity, if any.
func (e *Engine) LoadIdentity(ctx context.Context) error {
	identity, err := e.store.GetSetting(ctx, model.SettingIdentity)
	if err == store.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.identity = identity
	e.mu.Unlock()
	return nil
}

// SetIdentity stores the reporter identity. The identity of an active
// session is immutable; changing it requires the session to be inactive.
func (e *Engine) SetIdentity(ctx context.Context, identity string) error {
	e.mu.Lock()
	if e.session.State != model.StateInactive {
		e.mu.Unlock()
		return ErrAlreadyActive
	}
	e.identity = identity
	e.mu.Unlock()
	return e.store.SetSetting(ctx, model.SettingIdentity, identity)
}

// Identity returns the configured reporter identity.
func (e *Engine) Identity() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.identity
}

// Snapshot returns a copy of the current session.
func (e *Engine) Snapshot() model.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// Close detaches the engine from its collaborators without terminating the
// session: process death is not a termination trigger, and an active session
// is re-attached by ResumeIfActive on the next start. Termination side
// effects run only for the three explicit triggers.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		if e.lifecycleCancel != nil {
			e.lifecycleCancel()
		}
		e.mu.Lock()
		smp := e.sampler
		e.sampler = nil
		leave := e.leave
		e.leave = nil
		pollStop, pollDone := e.pollStop, e.pollDone
		e.pollStop, e.pollDone, e.pollKick = nil, nil, nil
		e.mu.Unlock()

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
	})
}

// setStateLocked updates the state machine and fires the transition hook.
// Callers must hold e.mu.
func (e *Engine) setStateLocked(st model.SessionState) {
	e.session.State = st
	if e.OnTransition != nil {
		e.OnTransition(e.session)
	}
}

func (e *Engine) watchLifecycle(ch <-chan lifecycle.Transition) {
	for tr := range ch {
		if tr.To != lifecycle.Foreground {
			continue
		}
		// Regained focus: check status now instead of waiting out the poll
		// interval.
		e.KickPoll()
	}
}

// KickPoll triggers an immediate out-of-band status check when a session is
// active. No-op otherwise.
func (e *Engine) KickPoll() {
	e.mu.Lock()
	kick := e.pollKick
	e.mu.Unlock()
	if kick == nil {
		return
	}
	select {
	case kick <- struct{}{}:
	default:
	}
}
