package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "authkit",
	Short: "authkit is a session-aware client for a hosted auth backend",
	Long: `A client for hosted backend-as-a-service authentication: sign in, sign up,
confirm accounts with one-time codes, and manage the user profile, with the
session cached locally across runs.

Configuration comes from the environment: AUTHKIT_BACKEND_URL and
AUTHKIT_ANON_KEY are required; see the config package for the rest.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
