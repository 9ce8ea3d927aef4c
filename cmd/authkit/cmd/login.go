package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var loginPassword string

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Sign in with email and password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx := cmd.Context()
		a.start(ctx)

		password := loginPassword
		if password == "" {
			password, err = promptPassword()
			if err != nil {
				return err
			}
		}

		if err := a.manager.SignIn(ctx, args[0], password); err != nil {
			return fmt.Errorf("sign in: %w", err)
		}
		if !waitFor(a.state, eventTimeout, signedIn) {
			return errors.New("sign in reported success but no session arrived")
		}
		sess := a.state.Current()
		fmt.Printf("Signed in as %s\n", sess.User.Email)
		return nil
	},
}

func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func init() {
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "account password (prompted when omitted)")
	rootCmd.AddCommand(loginCmd)
}
