package engine

import (
	"context"
	"errors"
	"time"

	"github.com/alfredjeanlab/beacon/internal/client"
	"github.com/alfredjeanlab/beacon/internal/events"
	"github.com/alfredjeanlab/beacon/internal/model"
)

// pollLoop is the fallback resolution detector: while the session is active
// it queries the backend on a fixed interval (or immediately on a kick from
// the lifecycle observer) and raises a termination trigger when the backend
// stops reporting the session as active.
//
// Error policy: any failure that is not a clean 404 is transient — the
// session is presumed still active and the next cycle retries. A transient
// failure also breaks the run of consecutive inactive observations.
func (e *Engine) pollLoop(identity string, stop, done, kick chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	inactiveRun := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		case <-kick:
		}

		ctx, cancel := context.WithTimeout(context.Background(), e.pollInterval)
		active, err := e.client.Active(ctx, identity)
		cancel()

		if err != nil {
			if errors.Is(err, client.ErrNotFound) {
				// The sole evidence needed: the record is gone. Same
				// termination path as an explicit inactive payload.
				go e.terminate(model.ReasonNotFound, false)
				return
			}
			e.logger.Debug("status poll failed, presuming active",
				"identity", identity, "error", err)
			inactiveRun = 0
			continue
		}
		if active {
			inactiveRun = 0
			continue
		}

		inactiveRun++
		if inactiveRun >= e.inactiveThreshold {
			go e.terminate(model.ReasonRemoteResolved, false)
			return
		}
	}
}

// watchEvents consumes the push channel for the session. The loop exits when
// the termination routine leaves the channel; duplicate events across
// reconnects are harmless because terminate is guarded.
func (e *Engine) watchEvents(ch <-chan events.Event) {
	for ev := range ch {
		switch ev.Kind {
		case events.KindResolved:
			e.logger.Info("resolved event received", "identity", ev.Identity)
			go e.terminate(model.ReasonRemoteResolved, false)
		case events.KindCancelled:
			// Cancellation initiated elsewhere: reflect it locally without
			// issuing another remote cancel.
			e.logger.Info("cancelled event received", "identity", ev.Identity)
			go e.terminate(model.ReasonUserCancelled, false)
		}
	}
}
