package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current session and where the app would route",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		a.start(cmd.Context())

		snap := a.state.Snapshot()
		fmt.Printf("route: %s\n", a.route.Current())
		if snap.Session == nil {
			fmt.Println("not signed in")
			return nil
		}
		fmt.Printf("user:  %s (%s)\n", snap.Session.User.Email, snap.Session.User.ID)
		if exp := snap.Session.Expiry(); !exp.IsZero() {
			fmt.Printf("expires: %s\n", exp.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}
