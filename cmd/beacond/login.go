package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var loginSaveProfile bool

var loginCmd = &cobra.Command{
	Use:     "login <identity>",
	Short:   "Store the reporter identity and bearer credential",
	GroupID: "system",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		identity := args[0]

		credential := os.Getenv("BEACON_CREDENTIAL")
		if credential == "" && term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprint(os.Stderr, "Credential (leave empty to keep current): ")
			raw, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return fmt.Errorf("reading credential: %w", err)
			}
			credential = string(raw)
		}

		if err := controlClient.Login(context.Background(), identity, credential); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if loginSaveProfile {
			p, _ := loadProfile()
			p.ControlURL = controlURL
			p.Token = authToken
			if err := saveProfile(p); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: could not save profile: %v\n", err)
			}
		}

		fmt.Printf("Logged in as %s\n", identity)
		return nil
	},
}

func init() {
	loginCmd.Flags().BoolVar(&loginSaveProfile, "save-profile", true, "save control URL and token to the profile file")
}
