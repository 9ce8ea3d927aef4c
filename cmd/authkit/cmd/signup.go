package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var signupPassword string

var signupCmd = &cobra.Command{
	Use:   "signup <email>",
	Short: "Create a new account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx := cmd.Context()
		a.start(ctx)

		password := signupPassword
		if password == "" {
			password, err = promptPassword()
			if err != nil {
				return err
			}
		}

		confirm, err := a.manager.SignUp(ctx, args[0], password)
		if err != nil {
			return fmt.Errorf("sign up: %w", err)
		}
		if confirm {
			fmt.Println("Please check your inbox for email verification!")
			fmt.Printf("Then run: authkit verify %s <code>\n", args[0])
			return nil
		}
		waitFor(a.state, eventTimeout, signedIn)
		fmt.Println("Account created and signed in.")
		return nil
	},
}

func init() {
	signupCmd.Flags().StringVarP(&signupPassword, "password", "p", "", "account password (prompted when omitted)")
	rootCmd.AddCommand(signupCmd)
}
