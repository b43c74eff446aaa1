package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/djwarf/tindico/pkg/calendar"
)

// Provider defines the interface for calendar backends
type Provider interface {
	// Name returns the provider name
	Name() string

	// Authenticate connects to the backend and selects the target calendar
	Authenticate(ctx context.Context) error

	// CreateEvent creates a new entry and returns it with its backend identity
	CreateEvent(ctx context.Context, event *calendar.Event) (*calendar.Event, error)

	// UpdateEvent overwrites an existing entry in a single write
	UpdateEvent(ctx context.Context, event *calendar.Event) (*calendar.Event, error)

	// SetURL replaces only the reference URL of an existing entry
	SetURL(ctx context.Context, id, url string) (*calendar.Event, error)

	// GetEvent returns an entry by its backend identity
	GetEvent(ctx context.Context, id string) (*calendar.Event, error)

	// FindByUID returns every entry carrying the iCal UID
	FindByUID(ctx context.Context, uid string) ([]*calendar.Event, error)

	// EventsInRange returns entries overlapping [start, end)
	EventsInRange(ctx context.Context, start, end time.Time) ([]*calendar.Event, error)
}

// Backend names accepted in configuration
const (
	BackendLocal  = "local"
	BackendCalDAV = "caldav"
	BackendGoogle = "google"
)

// Backends lists every supported backend
var Backends = []string{BackendLocal, BackendCalDAV, BackendGoogle}

// CalDAV server URLs for common providers
var CalDAVServers = map[string]string{
	"google":   "https://apidata.googleusercontent.com/caldav/v2/",
	"icloud":   "https://caldav.icloud.com/",
	"fastmail": "https://caldav.fastmail.com/dav/",
	"outlook":  "https://outlook.office365.com/caldav/",
}

// ResolveCalDAVServer expands a provider shorthand into its server URL.
// Anything containing "://" is returned unchanged.
func ResolveCalDAVServer(server string) (string, error) {
	if strings.Contains(server, "://") {
		return server, nil
	}
	url, ok := CalDAVServers[strings.ToLower(server)]
	if !ok {
		return "", fmt.Errorf("unknown CalDAV server %q: use a full URL", server)
	}
	return url, nil
}
