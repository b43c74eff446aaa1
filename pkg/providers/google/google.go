package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/djwarf/tindico/pkg/calendar"
	"github.com/djwarf/tindico/pkg/providers"
)

// DefaultCalendarID selects the account's main calendar
const DefaultCalendarID = "primary"

const (
	dateLayout  = "2006-01-02"
	sourceTitle = "Indico"
)

// Config holds the Google Calendar settings
type Config struct {
	CredentialsFile string // OAuth client JSON from the Google Cloud console
	TokenFile       string // written by Authorize
	CalendarID      string
}

// Client implements the Provider interface for Google Calendar
type Client struct {
	cfg        Config
	service    *gcal.Service
	httpClient *http.Client
	clientOpts []option.ClientOption
	logger     zerolog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithLogger sets the client logger
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient skips the credential and token files and sends every
// request through client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithClientOptions passes extra options to the Calendar service
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(c *Client) {
		c.clientOpts = append(c.clientOpts, opts...)
	}
}

// NewClient creates a new Google Calendar client
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.CalendarID == "" {
		cfg.CalendarID = DefaultCalendarID
	}
	c := &Client{
		cfg:    cfg,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the provider name
func (c *Client) Name() string {
	return providers.BackendGoogle
}

// OAuthConfig reads the OAuth client file and requests access to events
func OAuthConfig(credentialsFile string) (*oauth2.Config, error) {
	bytes, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("could not read client secret file: %w", err)
	}
	config, err := google.ConfigFromJSON(bytes, gcal.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file: %w", err)
	}
	return config, nil
}

// Authenticate builds the Calendar service from the saved token
func (c *Client) Authenticate(ctx context.Context) error {
	httpClient := c.httpClient
	if httpClient == nil {
		config, err := OAuthConfig(c.cfg.CredentialsFile)
		if err != nil {
			return err
		}
		token, err := LoadToken(c.cfg.TokenFile)
		if err != nil {
			return fmt.Errorf("no saved token, run `tindico auth google`: %w", err)
		}
		httpClient = config.Client(context.Background(), token)
	}

	opts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, c.clientOpts...)
	service, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return fmt.Errorf("could not get Calendar client: %w", err)
	}
	c.service = service
	return nil
}

func (c *Client) ready() error {
	if c.service == nil {
		return fmt.Errorf("not authenticated")
	}
	return nil
}

// CreateEvent imports a new event, keeping its iCal UID
func (c *Client) CreateEvent(ctx context.Context, event *calendar.Event) (*calendar.Event, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if event.UID == "" {
		return nil, fmt.Errorf("create event: missing UID")
	}

	body := toGoogle(event)
	body.ICalUID = event.UID

	created, err := c.service.Events.Import(c.cfg.CalendarID, body).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	c.logger.Debug().Str("id", created.Id).Str("uid", event.UID).Msg("created Google event")
	return fromGoogle(created, c.cfg.CalendarID), nil
}

// UpdateEvent patches the fields tindico manages and leaves the rest of the
// event (attendees, reminders, colour) untouched.
func (c *Client) UpdateEvent(ctx context.Context, event *calendar.Event) (*calendar.Event, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	patch := toGoogle(event)
	patch.ForceSendFields = []string{"Summary", "Description", "Location"}
	if patch.Source == nil {
		patch.NullFields = []string{"Source"}
	}

	updated, err := c.service.Events.Patch(c.cfg.CalendarID, event.ID, patch).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to update event: %w", notFound(err))
	}
	return fromGoogle(updated, c.cfg.CalendarID), nil
}

// SetURL patches only the event source, which carries the reference URL
func (c *Client) SetURL(ctx context.Context, id, url string) (*calendar.Event, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	patch := &gcal.Event{}
	if url != "" {
		patch.Source = &gcal.EventSource{Title: sourceTitle, Url: url}
	} else {
		patch.NullFields = []string{"Source"}
	}

	updated, err := c.service.Events.Patch(c.cfg.CalendarID, id, patch).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to set url: %w", notFound(err))
	}
	return fromGoogle(updated, c.cfg.CalendarID), nil
}

// GetEvent returns the event with the Google event id
func (c *Client) GetEvent(ctx context.Context, id string) (*calendar.Event, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	item, err := c.service.Events.Get(c.cfg.CalendarID, id).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get event %s: %w", id, notFound(err))
	}
	return fromGoogle(item, c.cfg.CalendarID), nil
}

// FindByUID returns the events imported with uid
func (c *Client) FindByUID(ctx context.Context, uid string) ([]*calendar.Event, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	var events []*calendar.Event
	err := c.service.Events.List(c.cfg.CalendarID).
		ICalUID(uid).
		ShowDeleted(false).
		Pages(ctx, func(page *gcal.Events) error {
			for _, item := range page.Items {
				if item.ICalUID == uid && item.Status != "cancelled" {
					events = append(events, fromGoogle(item, c.cfg.CalendarID))
				}
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %w", uid, err)
	}
	return events, nil
}

// EventsInRange returns events overlapping [start, end)
func (c *Client) EventsInRange(ctx context.Context, start, end time.Time) ([]*calendar.Event, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	var events []*calendar.Event
	err := c.service.Events.List(c.cfg.CalendarID).
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Pages(ctx, func(page *gcal.Events) error {
			for _, item := range page.Items {
				if item.Status != "cancelled" {
					events = append(events, fromGoogle(item, c.cfg.CalendarID))
				}
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	return events, nil
}

func notFound(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone) {
		return fmt.Errorf("%w: %v", calendar.ErrEventNotFound, err)
	}
	return err
}

func toGoogle(event *calendar.Event) *gcal.Event {
	body := &gcal.Event{
		Summary:     event.Title,
		Description: event.Description,
		Location:    event.Location,
		Start:       eventTime(event.Start, event.AllDay),
		End:         eventTime(event.End, event.AllDay),
	}
	if event.URL != "" {
		body.Source = &gcal.EventSource{Title: sourceTitle, Url: event.URL}
	}

	switch event.Status {
	case calendar.StatusConfirmed:
		body.Status = "confirmed"
	case calendar.StatusTentative:
		body.Status = "tentative"
	case calendar.StatusCancelled:
		body.Status = "cancelled"
	}
	return body
}

func eventTime(t time.Time, allDay bool) *gcal.EventDateTime {
	if allDay {
		return &gcal.EventDateTime{Date: t.Format(dateLayout)}
	}
	dt := &gcal.EventDateTime{DateTime: t.Format(time.RFC3339)}
	if name := t.Location().String(); name != "Local" && name != "UTC" {
		dt.TimeZone = name
	}
	return dt
}

func fromGoogle(item *gcal.Event, calendarID string) *calendar.Event {
	event := &calendar.Event{
		ID:          item.Id,
		CalendarID:  calendarID,
		UID:         item.ICalUID,
		Title:       item.Summary,
		Description: item.Description,
		Location:    item.Location,
		ETag:        item.Etag,
		Status:      calendar.StatusConfirmed,
	}
	if item.Source != nil {
		event.URL = item.Source.Url
	}

	// Parse dates
	if item.Start != nil {
		event.Start, event.AllDay = parseEventTime(item.Start)
	}
	if item.End != nil {
		event.End, _ = parseEventTime(item.End)
	}

	if t, err := time.Parse(time.RFC3339, item.Created); err == nil {
		event.Created = t
	}
	if t, err := time.Parse(time.RFC3339, item.Updated); err == nil {
		event.Modified = t
	}

	// Parse status
	switch item.Status {
	case "tentative":
		event.Status = calendar.StatusTentative
	case "cancelled":
		event.Status = calendar.StatusCancelled
	}
	return event
}

func parseEventTime(dt *gcal.EventDateTime) (time.Time, bool) {
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		if err != nil {
			return time.Time{}, false
		}
		if dt.TimeZone != "" {
			if loc, err := time.LoadLocation(dt.TimeZone); err == nil {
				t = t.In(loc)
			}
		}
		return t, false
	}
	if t, err := time.Parse(dateLayout, dt.Date); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// LoadToken reads a token saved by SaveToken
func LoadToken(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, fmt.Errorf("failed to parse token %s: %w", file, err)
	}
	return token, nil
}

// SaveToken writes token to path, readable only by the user
func SaveToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("unable to cache oauth token: %w", err)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// Ensure Client implements Provider
var _ providers.Provider = (*Client)(nil)
