package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/alfredjeanlab/beacon/internal/model"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show the current session state",
	GroupID: "session",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := controlClient.Status(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if jsonOutput {
			printJSON(st)
			return nil
		}

		identity := st.Identity
		if identity == "" {
			identity = "(not logged in)"
		}
		fmt.Printf("Identity: %s\n", identity)
		fmt.Printf("State:    %s\n", st.Session.State)
		if st.Session.State == model.StateActive {
			fmt.Printf("Started:  %s\n", st.Session.StartedAt.Format("2006-01-02 15:04:05"))
			if st.Session.LastFixAt != nil {
				fmt.Printf("Last fix: %s\n", st.Session.LastFixAt.Format("15:04:05"))
			}
		}
		if st.Session.TerminationReason.Terminal() {
			fmt.Printf("Ended:    %s\n", st.Session.TerminationReason)
		}
		return nil
	},
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
