package main

import (
	"context"
	"fmt"
	"time"

	"github.com/cli/browser"
	"github.com/spf13/cobra"

	"github.com/djwarf/tindico/pkg/providers/google"
)

const authTimeout = 5 * time.Minute

func newAuthCmd() *cobra.Command {
	auth := &cobra.Command{
		Use:   "auth",
		Short: "Authorize a calendar backend",
	}

	auth.AddCommand(&cobra.Command{
		Use:   "google",
		Short: "Authorize access to Google Calendar",
		Long: `Run the Google consent flow in your browser and store the resulting
token next to the configuration. The OAuth client comes from the credentials
file downloaded from the Google Cloud console.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			oauthCfg, err := google.OAuthConfig(cfg.Google.CredentialsFile)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), authTimeout)
			defer cancel()

			out := cmd.OutOrStdout()
			open := func(url string) error {
				fmt.Fprintf(out, "Opening %s\n", url)
				if err := browser.OpenURL(url); err != nil {
					fmt.Fprintln(out, "Could not start a browser, open the URL above yourself.")
				}
				return nil
			}

			token, err := google.Authorize(ctx, oauthCfg, open, logger)
			if err != nil {
				return err
			}

			path := cfg.GoogleTokenPath()
			if err := google.SaveToken(path, token); err != nil {
				return err
			}
			logger.Info().Str("path", path).Msg("saved Google token")
			fmt.Fprintf(out, "Token saved to %s\n", path)
			return nil
		},
	})

	return auth
}
