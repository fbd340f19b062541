package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alfredjeanlab/beacon/internal/lifecycle"
	"github.com/spf13/cobra"
)

var lifecycleCmd = &cobra.Command{
	Use:     "lifecycle <foreground|background>",
	Short:   "Report an app focus transition to the daemon",
	GroupID: "system",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		state := lifecycle.State(args[0])
		if !state.Valid() {
			return fmt.Errorf("state must be foreground or background, got %q", args[0])
		}
		if err := controlClient.ReportLifecycle(context.Background(), state); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Reported %s\n", state)
		return nil
	},
}
