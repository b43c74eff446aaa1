// Command tindico browses Indico categories and events in the terminal and
// syncs the chosen events into a calendar.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cli/browser"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/djwarf/tindico/internal/config"
	"github.com/djwarf/tindico/internal/logging"
	"github.com/djwarf/tindico/internal/tui"
	"github.com/djwarf/tindico/pkg/indico"
	"github.com/djwarf/tindico/pkg/reconcile"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   config.AppName,
		Short: "Browse Indico events and sync them into your calendar",
		Long: `tindico is a terminal browser for an Indico instance. It lists your
favourite categories' upcoming events, lets you walk the category tree, and
writes events into a calendar. Re-syncing an event updates the entry it
created instead of adding a second one.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         runBrowser,
	}
	root.AddCommand(newExportCmd(), newAuthCmd(), newWaybarCmd())
	return root
}

// loadConfig reads the configuration. The Indico token is only checked when
// requireToken is set; on a missing token the setup help goes to stderr.
func loadConfig(requireToken bool) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	err = cfg.Validate()
	if errors.Is(err, config.ErrMissingToken) {
		if !requireToken {
			return cfg, nil
		}
		fmt.Fprint(os.Stderr, cfg.MissingTokenHelp())
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	lc := logging.DefaultConfig(cfg.DataDir)
	lc.Level = cfg.LogLevel
	return logging.NewLoggerFromConfig(lc)
}

func newCatalog(cfg *config.Config, logger zerolog.Logger) (*indico.Client, error) {
	return indico.NewClient(cfg.BaseURL, cfg.APIToken, indico.WithLogger(logger))
}

func runBrowser(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(true)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	ctx := logging.WithLogger(cmd.Context(), logger)

	catalog, err := newCatalog(cfg, logger)
	if err != nil {
		return err
	}

	be, err := openBackend(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Str("backend", cfg.Backend).Msg("calendar backend unavailable")
		return err
	}
	defer be.Close()

	// the browser owns the terminal
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard

	model := tui.New(tui.Options{
		Catalog:        catalog,
		Syncer:         reconcile.New(be, reconcile.WithLogger(logger)),
		ExportDir:      cfg.ExportDir,
		FavoritesLimit: cfg.FavoritesLimit,
		OpenURL:        browser.OpenURL,
		Logger:         logger,
	})

	logger.Info().
		Str("indico", cfg.BaseURL).
		Str("backend", be.Name()).
		Msg("starting browser")

	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("browser failed: %w", err)
	}
	return nil
}
