package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var avatarCmd = &cobra.Command{
	Use:   "avatar <image-file>",
	Short: "Upload a profile avatar",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx := cmd.Context()
		a.start(ctx)
		if err := a.requireApp(); err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening image: %w", err)
		}
		defer f.Close()

		url, err := a.profiles.UploadAvatar(ctx, filepath.Base(args[0]), f)
		if err != nil {
			return fmt.Errorf("upload: %w", err)
		}
		fmt.Printf("Avatar uploaded: %s\n", url)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(avatarCmd)
}
