package alert

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestNoop(t *testing.T) {
	var a Noop
	if err := a.Start(context.Background()); err != nil {
		t.Errorf("Start: %v", err)
	}
	if err := a.Stop(context.Background()); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

func TestCommand_RunsHooks(t *testing.T) {
	dir := t.TempDir()
	startMark := filepath.Join(dir, "started")
	stopMark := filepath.Join(dir, "stopped")

	c := &Command{
		StartCmd: "touch " + startMark,
		StopCmd:  "touch " + stopMark,
	}

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := os.Stat(startMark); err != nil {
		t.Errorf("start hook did not run: %v", err)
	}

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, err := os.Stat(stopMark); err != nil {
		t.Errorf("stop hook did not run: %v", err)
	}
}

func TestCommand_FailureSwallowed(t *testing.T) {
	c := &Command{StartCmd: "exit 3", StopCmd: "exit 4"}
	if err := c.Start(context.Background()); err != nil {
		t.Errorf("Start surfaced hook failure: %v", err)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Errorf("Stop surfaced hook failure: %v", err)
	}
}

func TestCommand_EmptyCommandIsNoop(t *testing.T) {
	c := &Command{}
	if err := c.Start(context.Background()); err != nil {
		t.Errorf("Start: %v", err)
	}
	if err := c.Stop(context.Background()); err != nil {
		t.Errorf("Stop: %v", err)
	}
}
