package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/djwarf/tindico/internal/config"
	"github.com/djwarf/tindico/internal/logging"
	"github.com/djwarf/tindico/pkg/calendar"
	"github.com/djwarf/tindico/pkg/providers"
	"github.com/djwarf/tindico/pkg/providers/caldav"
	"github.com/djwarf/tindico/pkg/providers/gnome"
	"github.com/djwarf/tindico/pkg/providers/google"
)

// backend is the configured calendar, authenticated and ready
type backend struct {
	providers.Provider
	close func() error
}

// Close releases the backend
func (b *backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// openBackend connects the calendar named by cfg.Backend, logging through
// the context's logger.
func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	logger := logging.FromContext(ctx).With().Str("backend", cfg.Backend).Logger()
	b := &backend{}

	switch cfg.Backend {
	case providers.BackendLocal:
		store, err := calendar.NewStore(cfg.DatabasePath())
		if err != nil {
			return nil, err
		}
		cal, err := store.EnsureCalendar(ctx, cfg.Calendar)
		if err != nil {
			store.Close()
			return nil, err
		}
		logger.Debug().Str("calendar", cal.Name).Str("db", cfg.DatabasePath()).Msg("using local calendar")
		b.Provider, b.close = store, store.Close

	case providers.BackendCalDAV:
		client, err := newCalDAV(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		b.Provider = client

	case providers.BackendGoogle:
		b.Provider = google.NewClient(google.Config{
			CredentialsFile: cfg.Google.CredentialsFile,
			TokenFile:       cfg.GoogleTokenPath(),
			CalendarID:      cfg.Google.Calendar,
		}, google.WithLogger(logger))

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	if err := b.Authenticate(ctx); err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to connect to %s calendar: %w", b.Name(), err)
	}
	return b, nil
}

// newCalDAV builds the CalDAV client. With a GNOME Online Accounts identity
// the account supplies the bearer token and, unless configured, the server.
func newCalDAV(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*caldav.Client, error) {
	dc := caldav.Config{
		ServerURL: cfg.CalDAV.URL,
		Calendar:  cfg.CalDAV.Calendar,
		Username:  cfg.CalDAV.Username,
		Password:  cfg.CalDAV.Password,
	}

	if cfg.CalDAV.GOAAccount != "" {
		account, err := gnome.FindAccount(ctx, cfg.CalDAV.GOAAccount)
		if err != nil {
			return nil, fmt.Errorf("GNOME Online Accounts: %w", err)
		}
		dc.Token = gnome.TokenSource(account.ID)
		if dc.ServerURL == "" {
			dc.ServerURL = account.CalendarURL
		}
		logger.Debug().
			Str("account", account.Identity).
			Str("provider", account.ProviderName).
			Msg("using GNOME Online Accounts token")
	}

	if dc.ServerURL == "" {
		return nil, fmt.Errorf("no CalDAV server configured (set %s)", config.KeyCalDAVURL)
	}
	return caldav.NewClient(dc, caldav.WithLogger(logger)), nil
}
