package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/alfredjeanlab/beacon/internal/control"
	"github.com/spf13/cobra"
)

var fixAccuracy float64

var fixCmd = &cobra.Command{
	Use:     "fix <latitude> <longitude>",
	Short:   "Report a fresh position fix to the daemon",
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

		if err := controlClient.ReportFix(context.Background(), &control.ActivateRequest{
			Latitude:  lat,
			Longitude: lng,
			Accuracy:  fixAccuracy,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Reported fix (%.4f, %.4f)\n", lat, lng)
		return nil
	},
}

func init() {
	fixCmd.Flags().Float64Var(&fixAccuracy, "accuracy", 20, "fix accuracy in meters")
}
