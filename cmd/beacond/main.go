package main

import (
	"fmt"
	"os"

	"github.com/alfredjeanlab/beacon/internal/control"
	"github.com/spf13/cobra"
)

var (
	controlURL string
	authToken  string
	jsonOutput bool

	controlClient *control.Client
)

func defaultControlURL() string {
	if s := os.Getenv("BEACON_CONTROL_URL"); s != "" {
		return s
	}
	if p, err := loadProfile(); err == nil && p.ControlURL != "" {
		return p.ControlURL
	}
	return "http://127.0.0.1:7320"
}

func defaultToken() string {
	if s := os.Getenv("BEACON_CONTROL_TOKEN"); s != "" {
		return s
	}
	if p, err := loadProfile(); err == nil {
		return p.Token
	}
	return ""
}

var rootCmd = &cobra.Command{
	Use:   "beacond <command>",
	Short: "Personal-safety SOS agent",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		controlClient = control.NewClient(controlURL, authToken)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&controlURL, "control-url", defaultControlURL(), "daemon control API URL")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", defaultToken(), "control API bearer token")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "session", Title: "Session:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false

	rootCmd.AddCommand(activateCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(fixCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(lifecycleCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
