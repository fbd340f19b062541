package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:     "history",
	Short:   "List past emergency sessions",
	GroupID: "session",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		recs, err := controlClient.Sessions(context.Background(), historyLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if jsonOutput {
			printJSON(recs)
			return nil
		}

		if len(recs) == 0 {
			fmt.Println("No sessions recorded")
			return nil
		}
		for _, rec := range recs {
			ended := "ongoing"
			if rec.EndedAt != nil {
				ended = rec.EndedAt.Format("15:04:05")
			}
			fmt.Printf("%s  %s  %s -> %s  %s  (%.4f, %.4f)\n",
				rec.ID,
				rec.StartedAt.Format("2006-01-02"),
				rec.StartedAt.Format("15:04:05"),
				ended,
				rec.Reason,
				rec.LastLatitude, rec.LastLongitude)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum sessions to list")
}
