package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/alfredjeanlab/beacon/internal/control"
	"github.com/spf13/cobra"
)

var activateAccuracy float64

var activateCmd = &cobra.Command{
	Use:     "activate <latitude> <longitude>",
	Short:   "Raise an emergency alert at the given position",
	GroupID: "session",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		lat, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid latitude %q", args[0])
		}
		lng, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid longitude %q", args[1])
		}

		st, err := controlClient.Activate(context.Background(), &control.ActivateRequest{
			Latitude:  lat,
			Longitude: lng,
			Accuracy:  activateAccuracy,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error activating: %v\n", err)
			os.Exit(1)
		}

		if jsonOutput {
			printJSON(st)
		} else {
			fmt.Printf("Emergency active for %s (started %s)\n",
				st.Identity, st.Session.StartedAt.Format("15:04:05"))
		}
		return nil
	},
}

func init() {
	activateCmd.Flags().Float64Var(&activateAccuracy, "accuracy", 20, "fix accuracy in meters")
}
