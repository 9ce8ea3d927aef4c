package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	profileUsername string
	profileWebsite  string
	profileName     string
	profileSurname  string
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Read or update the user profile",
}

var profileGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show the current user's profile",
	Args:  cobra.NoArgs,
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

		p, err := a.profiles.Get(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("username: %s\n", p.Username)
		fmt.Printf("name:     %s %s\n", p.Name, p.Surname)
		fmt.Printf("website:  %s\n", p.Website)
		fmt.Printf("avatar:   %s\n", p.AvatarURL)
		return nil
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update profile fields",
	Args:  cobra.NoArgs,
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

		// Read-modify-upsert, the way the profile form saves: only the
		// provided fields change.
		p, err := a.profiles.Get(ctx)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("username") {
			p.Username = profileUsername
		}
		if cmd.Flags().Changed("website") {
			p.Website = profileWebsite
		}
		if cmd.Flags().Changed("name") {
			p.Name = profileName
		}
		if cmd.Flags().Changed("surname") {
			p.Surname = profileSurname
		}
		if err := a.profiles.Upsert(ctx, p); err != nil {
			return err
		}
		fmt.Println("Profile updated.")
		return nil
	},
}

func init() {
	profileSetCmd.Flags().StringVar(&profileUsername, "username", "", "public username")
	profileSetCmd.Flags().StringVar(&profileWebsite, "website", "", "website URL")
	profileSetCmd.Flags().StringVar(&profileName, "name", "", "given name")
	profileSetCmd.Flags().StringVar(&profileSurname, "surname", "", "family name")
	profileCmd.AddCommand(profileGetCmd)
	profileCmd.AddCommand(profileSetCmd)
	rootCmd.AddCommand(profileCmd)
}
