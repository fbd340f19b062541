package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:     "cancel",
	Short:   "Cancel the active emergency alert",
	GroupID: "session",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := controlClient.Cancel(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error cancelling: %v\n", err)
			os.Exit(1)
		}

		if jsonOutput {
			printJSON(st)
		} else {
			fmt.Println("Emergency cancelled")
		}
		return nil
	},
}
