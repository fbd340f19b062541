// Package alert abstracts the audible alarm raised while an emergency
// session is active.
package alert

import (
	"context"
	"log/slog"
	"os/exec"
	"strings"
)

// Alerter starts and silences the audible alert. Stop must be idempotent:
// the termination routine and user cancellation may both silence the alert,
// and cancellation silences it before the remote cancel call returns.
type Alerter interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Noop is an Alerter that does nothing. Used when no alert command is
// configured.
type Noop struct{}

var _ Alerter = (*Noop)(nil)

func (Noop) Start(context.Context) error { return nil }
func (Noop) Stop(context.Context) error  { return nil }

// Command runs configured shell commands to start and silence the alert
// (e.g. a platform sound daemon hook). Errors are logged and swallowed: a
// failing alert hook must never block activation or termination.
type Command struct {
	StartCmd string
	StopCmd  string
	Logger   *slog.Logger
}

var _ Alerter = (*Command)(nil)

func (c *Command) Start(ctx context.Context) error {
	c.run(ctx, c.StartCmd, "start")
	return nil
}

func (c *Command) Stop(ctx context.Context) error {
	c.run(ctx, c.StopCmd, "stop")
	return nil
}

func (c *Command) run(ctx context.Context, cmdline, action string) {
	if strings.TrimSpace(cmdline) == "" {
		return
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", cmdline)
	if out, err := cmd.CombinedOutput(); err != nil {
		logger.Warn("alert command failed", "action", action, "error", err, "output", string(out))
	}
}
