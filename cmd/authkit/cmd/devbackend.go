package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/slmehta/authkit/backend/backendtest"
)

var (
	devAddr        string
	devAutoConfirm bool
)

var devBackendCmd = &cobra.Command{
	Use:   "dev-backend",
	Short: "Run an in-process fake backend for local development",
	Long: `Serves the fake auth/profile/storage backend on a local port so the client
can be exercised without a hosted project. Point AUTHKIT_BACKEND_URL at it.
Confirmation codes are printed nowhere; use --auto-confirm to skip OTP.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		bt := backendtest.New()
		bt.AutoConfirm = devAutoConfirm

		srv := &http.Server{Addr: devAddr, Handler: bt}
		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.ListenAndServe()
		}()
		fmt.Printf("fake backend listening on %s\n", devAddr)

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	},
}

func init() {
	devBackendCmd.Flags().StringVar(&devAddr, "addr", "localhost:9999", "listen address")
	devBackendCmd.Flags().BoolVar(&devAutoConfirm, "auto-confirm", false, "skip email confirmation on sign-up")
	rootCmd.AddCommand(devBackendCmd)
}
