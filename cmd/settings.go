package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var (
	settingsShareLocation bool
	settingsTheme         string
	settingsLocale        string
	settingsNotifications bool
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show user preferences",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initSession()
		if err != nil {
			return err
		}
		defer env.Close()

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(env.Session.Settings(cmd.Context()))
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update user preferences",
	Long:  "Updates only the preferences whose flags were given; the rest keep their stored values.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initSession()
		if err != nil {
			return err
		}
		defer env.Close()

		settings := env.Session.Settings(ctx)
		if cmd.Flags().Changed("share-location") {
			settings.ShareLocation = settingsShareLocation
		}
		if cmd.Flags().Changed("theme") {
			settings.Theme = settingsTheme
		}
		if cmd.Flags().Changed("locale") {
			settings.Locale = settingsLocale
		}
		if cmd.Flags().Changed("notifications") {
			settings.Notifications = settingsNotifications
		}

		if err := env.Session.SaveSettings(ctx, settings); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(settings)
	},
}

func init() {
	settingsSetCmd.Flags().BoolVar(&settingsShareLocation, "share-location", false, "share coordinates with analyses by default")
	settingsSetCmd.Flags().StringVar(&settingsTheme, "theme", "light", "UI theme")
	settingsSetCmd.Flags().StringVar(&settingsLocale, "locale", "en", "locale code")
	settingsSetCmd.Flags().BoolVar(&settingsNotifications, "notifications", true, "notification opt-in")

	settingsCmd.AddCommand(settingsSetCmd)
	rootCmd.AddCommand(settingsCmd)
}
