package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <email> <code>",
	Short: "Confirm an account with the emailed 6-digit code",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx := cmd.Context()
		a.start(ctx)

		if err := a.manager.VerifyOTP(ctx, args[0], args[1]); err != nil {
			return fmt.Errorf("verification failed: %w", err)
		}
		if !waitFor(a.state, eventTimeout, signedIn) {
			return errors.New("verification succeeded but no session arrived")
		}
		fmt.Println("Your account has been verified!")
		return nil
	},
}

var resendCmd = &cobra.Command{
	Use:   "resend <email>",
	Short: "Resend the account confirmation code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx := cmd.Context()
		a.start(ctx)

		if err := a.manager.ResendOTP(ctx, args[0]); err != nil {
			return fmt.Errorf("resend: %w", err)
		}
		fmt.Println("A new code has been sent to your email.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(resendCmd)
}
