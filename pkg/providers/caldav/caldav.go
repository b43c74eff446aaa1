package caldav

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/djwarf/tindico/pkg/calendar"
	"github.com/djwarf/tindico/pkg/providers"
)

// OAuthHTTPClient wraps http.Client with OAuth Bearer token
type OAuthHTTPClient struct {
	token string
	base  *http.Client
}

func (c *OAuthHTTPClient) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	return c.base.Do(req)
}

// NewOAuthHTTPClient creates an HTTP client with OAuth Bearer auth
func NewOAuthHTTPClient(accessToken string) webdav.HTTPClient {
	return &OAuthHTTPClient{token: accessToken, base: http.DefaultClient}
}

// TokenFunc returns a bearer token for the server, for example one held by
// GNOME Online Accounts.
type TokenFunc func(ctx context.Context) (string, error)

// Config describes the CalDAV collection receiving entries
type Config struct {
	ServerURL string // full URL or a CalDAVServers shorthand
	Calendar  string // collection path, or display name to look up; empty picks the first
	Username  string
	Password  string
	Token     TokenFunc // takes precedence over Username/Password
}

// Client implements the Provider interface for CalDAV servers
type Client struct {
	cfg          Config
	caldavClient *caldav.Client
	calendarPath string
	logger       zerolog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithLogger sets the client logger
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new CalDAV client
func NewClient(cfg Config, opts ...Option) *Client {
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
	return providers.BackendCalDAV
}

// CalendarPath returns the collection selected by Authenticate
func (c *Client) CalendarPath() string {
	return c.calendarPath
}

// Authenticate connects to the server and selects the target collection
func (c *Client) Authenticate(ctx context.Context) error {
	serverURL, err := providers.ResolveCalDAVServer(c.cfg.ServerURL)
	if err != nil {
		return err
	}

	var httpClient webdav.HTTPClient
	if c.cfg.Token != nil {
		token, err := c.cfg.Token(ctx)
		if err != nil {
			return fmt.Errorf("failed to get access token: %w", err)
		}
		httpClient = NewOAuthHTTPClient(token)
	} else {
		httpClient = webdav.HTTPClientWithBasicAuth(nil, c.cfg.Username, c.cfg.Password)
	}

	client, err := caldav.NewClient(httpClient, serverURL)
	if err != nil {
		return fmt.Errorf("failed to create CalDAV client: %w", err)
	}
	c.caldavClient = client

	if strings.HasPrefix(c.cfg.Calendar, "/") {
		c.calendarPath = c.cfg.Calendar
		return nil
	}

	path, err := c.findCalendar(ctx)
	if err != nil {
		return fmt.Errorf("failed to authenticate: %w", err)
	}
	c.calendarPath = path
	c.logger.Debug().Str("calendar", path).Msg("selected CalDAV calendar")
	return nil
}

func (c *Client) findCalendar(ctx context.Context) (string, error) {
	principal, err := c.caldavClient.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to find principal: %w", err)
	}
	homeSet, err := c.caldavClient.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return "", fmt.Errorf("failed to find calendar home: %w", err)
	}
	cals, err := c.caldavClient.FindCalendars(ctx, homeSet)
	if err != nil {
		return "", fmt.Errorf("failed to list calendars: %w", err)
	}
	if len(cals) == 0 {
		return "", fmt.Errorf("no calendars found under %s", homeSet)
	}
	if c.cfg.Calendar == "" {
		return cals[0].Path, nil
	}
	for _, cal := range cals {
		if strings.EqualFold(cal.Name, c.cfg.Calendar) {
			return cal.Path, nil
		}
	}
	return "", fmt.Errorf("calendar %q not found", c.cfg.Calendar)
}

func (c *Client) ready() error {
	if c.caldavClient == nil {
		return fmt.Errorf("not authenticated")
	}
	return nil
}

func (c *Client) objectPath(uid string) string {
	return strings.TrimSuffix(c.calendarPath, "/") + "/" + url.PathEscape(uid) + ".ics"
}

// CreateEvent creates a new event on the CalDAV server
func (c *Client) CreateEvent(ctx context.Context, event *calendar.Event) (*calendar.Event, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	created := event.Clone()
	// Generate UID if not set
	if created.UID == "" {
		created.UID = uuid.New().String()
	}

	obj, err := c.caldavClient.PutCalendarObject(ctx, c.objectPath(created.UID), eventToICal(created))
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	created.ID = obj.Path
	created.CalendarID = c.calendarPath
	created.ETag = obj.ETag
	return created, nil
}

// UpdateEvent rewrites the fields tindico manages on an existing object and
// keeps every other property (alarms, attendees, ...) as stored.
func (c *Client) UpdateEvent(ctx context.Context, event *calendar.Event) (*calendar.Event, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	current, err := c.caldavClient.GetCalendarObject(ctx, event.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load event %s: %w", event.ID, err)
	}
	vevent := findEvent(current.Data)
	if vevent == nil {
		return nil, fmt.Errorf("event %s: no VEVENT found", event.ID)
	}
	updated := event.Clone()
	if !applyEvent(vevent, event) {
		updated.ETag = current.ETag
		return updated, nil
	}

	obj, err := c.caldavClient.PutCalendarObject(ctx, event.ID, current.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}
	updated.ETag = obj.ETag
	return updated, nil
}

// SetURL rewrites only the URL property of the object at id
func (c *Client) SetURL(ctx context.Context, id, rawURL string) (*calendar.Event, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	current, err := c.caldavClient.GetCalendarObject(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load event %s: %w", id, err)
	}
	vevent := findEvent(current.Data)
	if vevent == nil {
		return nil, fmt.Errorf("event %s: no VEVENT found", id)
	}
	if !setURL(vevent, rawURL) {
		return parseICalEvent(current, c.calendarPath)
	}
	ensureStamp(vevent)

	obj, err := c.caldavClient.PutCalendarObject(ctx, id, current.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}
	current.ETag = obj.ETag
	return parseICalEvent(current, c.calendarPath)
}

// GetEvent returns the object at path id
func (c *Client) GetEvent(ctx context.Context, id string) (*calendar.Event, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	obj, err := c.caldavClient.GetCalendarObject(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get event %s: %w", id, err)
	}
	return parseICalEvent(obj, c.calendarPath)
}

// FindByUID returns the objects whose VEVENT carries uid
func (c *Client) FindByUID(ctx context.Context, uid string) ([]*calendar.Event, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     "VCALENDAR",
			AllProps: true,
			AllComps: true,
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{{
				Name: "VEVENT",
				Props: []caldav.PropFilter{{
					Name:      ical.PropUID,
					TextMatch: &caldav.TextMatch{Text: uid},
				}},
			}},
		},
	}

	events, err := c.query(ctx, query)
	if err != nil {
		return nil, err
	}

	// text-match is a substring match
	var matched []*calendar.Event
	for _, e := range events {
		if e.UID == uid {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

// EventsInRange returns events overlapping [start, end)
func (c *Client) EventsInRange(ctx context.Context, start, end time.Time) ([]*calendar.Event, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     "VCALENDAR",
			AllProps: true,
			AllComps: true,
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{{
				Name:  "VEVENT",
				Start: start,
				End:   end,
			}},
		},
	}

	events, err := c.query(ctx, query)
	if err != nil {
		return nil, err
	}

	window := &calendar.Event{Start: start, End: end}
	var inRange []*calendar.Event
	for _, e := range events {
		if e.Status != calendar.StatusCancelled && e.Overlaps(window) {
			inRange = append(inRange, e)
		}
	}
	return inRange, nil
}

func (c *Client) query(ctx context.Context, query *caldav.CalendarQuery) ([]*calendar.Event, error) {
	objects, err := c.caldavClient.QueryCalendar(ctx, c.calendarPath, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	var events []*calendar.Event
	for i := range objects {
		event, err := parseICalEvent(&objects[i], c.calendarPath)
		if err != nil {
			c.logger.Debug().Err(err).Str("path", objects[i].Path).Msg("skipping calendar object")
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

func findEvent(cal *ical.Calendar) *ical.Component {
	if cal == nil {
		return nil
	}
	for _, component := range cal.Children {
		if component.Name == ical.CompEvent {
			return component
		}
	}
	return nil
}

// parseICalEvent parses a CalDAV object into an Event
func parseICalEvent(obj *caldav.CalendarObject, calendarID string) (*calendar.Event, error) {
	if obj.Data == nil {
		return nil, fmt.Errorf("no data in calendar object")
	}

	component := findEvent(obj.Data)
	if component == nil {
		return nil, fmt.Errorf("no VEVENT found")
	}

	event := &calendar.Event{
		ID:         obj.Path,
		CalendarID: calendarID,
		ETag:       obj.ETag,
	}
	readComponent(event, component)
	return event, nil
}

// readComponent fills event from the properties of a VEVENT
func readComponent(event *calendar.Event, component *ical.Component) {
	event.Status = calendar.StatusConfirmed

	if prop := component.Props.Get(ical.PropUID); prop != nil {
		event.UID = prop.Value
	}
	if text, err := component.Props.Text(ical.PropSummary); err == nil {
		event.Title = text
	}
	if text, err := component.Props.Text(ical.PropDescription); err == nil {
		event.Description = text
	}
	if text, err := component.Props.Text(ical.PropLocation); err == nil {
		event.Location = text
	}
	if prop := component.Props.Get(ical.PropURL); prop != nil {
		event.URL = prop.Value
	}

	if prop := component.Props.Get(ical.PropDateTimeStart); prop != nil {
		if t, err := prop.DateTime(nil); err == nil {
			event.Start = t
		}
		// Check if all-day event
		if val := prop.Params.Get(ical.ParamValue); val == "DATE" {
			event.AllDay = true
		}
	}
	if prop := component.Props.Get(ical.PropDateTimeEnd); prop != nil {
		if t, err := prop.DateTime(nil); err == nil {
			event.End = t
		}
	} else if prop := component.Props.Get(ical.PropDuration); prop != nil {
		if d, err := prop.Duration(); err == nil {
			event.End = event.Start.Add(d)
		}
	}
	if event.End.IsZero() {
		event.End = event.Start
	}

	if prop := component.Props.Get(ical.PropCreated); prop != nil {
		if t, err := prop.DateTime(nil); err == nil {
			event.Created = t
		}
	}
	if prop := component.Props.Get(ical.PropLastModified); prop != nil {
		if t, err := prop.DateTime(nil); err == nil {
			event.Modified = t
		}
	}

	if prop := component.Props.Get(ical.PropStatus); prop != nil {
		switch prop.Value {
		case "TENTATIVE":
			event.Status = calendar.StatusTentative
		case "CANCELLED":
			event.Status = calendar.StatusCancelled
		}
	}
}

// eventToICal converts an Event to iCal format
func eventToICal(event *calendar.Event) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//tindico//EN")

	vevent := ical.NewComponent(ical.CompEvent)
	vevent.Props.SetText(ical.PropUID, event.UID)
	vevent.Props.SetDateTime(ical.PropCreated, time.Now().UTC())
	if event.Status != "" {
		vevent.Props.SetText(ical.PropStatus, statusValue(event.Status))
	}
	applyEvent(vevent, event)

	cal.Children = append(cal.Children, vevent)
	return cal
}

// applyEvent writes the managed fields of event onto vevent. Properties
// already holding the wanted value are left as encoded, so a TZID or a
// missing STATUS survives. It reports whether anything changed.
func applyEvent(vevent *ical.Component, event *calendar.Event) bool {
	current := &calendar.Event{}
	readComponent(current, vevent)

	changed := setText(vevent, ical.PropSummary, current.Title, event.Title)
	changed = setText(vevent, ical.PropDescription, current.Description, event.Description) || changed
	changed = setText(vevent, ical.PropLocation, current.Location, event.Location) || changed
	changed = setURL(vevent, event.URL) || changed

	if current.AllDay != event.AllDay || !current.Start.Equal(event.Start) || !current.End.Equal(event.End) ||
		vevent.Props.Get(ical.PropDateTimeStart) == nil {
		delete(vevent.Props, ical.PropDuration)
		if event.AllDay {
			vevent.Props.SetDate(ical.PropDateTimeStart, event.Start)
			vevent.Props.SetDate(ical.PropDateTimeEnd, event.End)
		} else {
			vevent.Props.SetDateTime(ical.PropDateTimeStart, event.Start.UTC())
			vevent.Props.SetDateTime(ical.PropDateTimeEnd, event.End.UTC())
		}
		changed = true
	}

	if event.Status != "" && event.Status != current.Status {
		vevent.Props.SetText(ical.PropStatus, statusValue(event.Status))
		changed = true
	}

	if changed {
		now := time.Now().UTC()
		vevent.Props.SetDateTime(ical.PropDateTimeStamp, now)
		vevent.Props.SetDateTime(ical.PropLastModified, now)
	}
	ensureStamp(vevent)
	return changed
}

func statusValue(status calendar.EventStatus) string {
	switch status {
	case calendar.StatusTentative:
		return "TENTATIVE"
	case calendar.StatusCancelled:
		return "CANCELLED"
	}
	return "CONFIRMED"
}

// setText sets or clears a text property when its value differs from have
func setText(vevent *ical.Component, name, have, want string) bool {
	if have == want && (want == "") == (vevent.Props.Get(name) == nil) {
		return false
	}
	if want == "" {
		delete(vevent.Props, name)
	} else {
		vevent.Props.SetText(name, want)
	}
	return true
}

// setURL sets or clears the URL property and reports whether it changed
func setURL(vevent *ical.Component, rawURL string) bool {
	have := ""
	if prop := vevent.Props.Get(ical.PropURL); prop != nil {
		have = prop.Value
	}
	if have == rawURL {
		return false
	}
	delete(vevent.Props, ical.PropURL)
	if rawURL != "" {
		if u, err := url.Parse(rawURL); err == nil {
			vevent.Props.SetURI(ical.PropURL, u)
		}
	}
	return true
}

// ensureStamp adds the DTSTAMP every VEVENT must carry
func ensureStamp(vevent *ical.Component) {
	if vevent.Props.Get(ical.PropDateTimeStamp) == nil {
		vevent.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	}
}

// Ensure Client implements Provider
var _ providers.Provider = (*Client)(nil)
