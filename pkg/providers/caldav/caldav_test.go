package caldav

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djwarf/tindico/pkg/calendar"
)

func testEvent() *calendar.Event {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return &calendar.Event{
		ID:          "/cal/indico-event-1234@tindico.ics",
		UID:         "indico-event-1234@tindico",
		Title:       "Physics Seminar",
		Description: "https://indico.example/event/1234/",
		Location:    "CERN (Main Auditorium)",
		URL:         "https://indico.example/event/1234/",
		Start:       start,
		End:         start.Add(90 * time.Minute),
		Status:      calendar.StatusConfirmed,
	}
}

func roundTrip(t *testing.T, cal *ical.Calendar) *ical.Calendar {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, ical.NewEncoder(&buf).Encode(cal))
	decoded, err := ical.NewDecoder(&buf).Decode()
	require.NoError(t, err)
	return decoded
}

func TestEventToICalRoundTrip(t *testing.T) {
	ev := testEvent()
	obj := &caldav.CalendarObject{
		Path: ev.ID,
		ETag: `"1"`,
		Data: roundTrip(t, eventToICal(ev)),
	}

	got, err := parseICalEvent(obj, "/cal/")
	require.NoError(t, err)

	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, "/cal/", got.CalendarID)
	assert.Equal(t, `"1"`, got.ETag)
	assert.Equal(t, ev.UID, got.UID)
	assert.Equal(t, ev.Title, got.Title)
	assert.Equal(t, ev.Description, got.Description)
	assert.Equal(t, ev.Location, got.Location)
	assert.Equal(t, ev.URL, got.URL)
	assert.True(t, got.Start.Equal(ev.Start))
	assert.True(t, got.End.Equal(ev.End))
	assert.Equal(t, calendar.StatusConfirmed, got.Status)
}

func TestApplyEventKeepsForeignProperties(t *testing.T) {
	cal := eventToICal(testEvent())
	vevent := findEvent(cal)
	require.NotNil(t, vevent)

	vevent.Props.SetText("X-USER-NOTE", "bring coffee")
	alarm := ical.NewComponent(ical.CompAlarm)
	alarm.Props.SetText(ical.PropAction, "DISPLAY")
	vevent.Children = append(vevent.Children, alarm)

	changed := testEvent()
	changed.Title = "Physics Seminar (moved)"
	changed.URL = ""
	changed.Location = ""
	applyEvent(vevent, changed)

	decoded := findEvent(roundTrip(t, cal))
	require.NotNil(t, decoded)

	summary, err := decoded.Props.Text(ical.PropSummary)
	require.NoError(t, err)
	assert.Equal(t, "Physics Seminar (moved)", summary)

	note, err := decoded.Props.Text("X-USER-NOTE")
	require.NoError(t, err)
	assert.Equal(t, "bring coffee", note)
	assert.Len(t, decoded.Children, 1)

	assert.Nil(t, decoded.Props.Get(ical.PropURL))
	assert.Nil(t, decoded.Props.Get(ical.PropLocation))
	assert.NotNil(t, decoded.Props.Get(ical.PropUID))
}

// manualObject is an entry created in another client: local times with a
// TZID, no STATUS and a property tindico does not know.
const manualObject = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//Example//Desktop Calendar//EN
BEGIN:VEVENT
UID:6f1c2d7e@caldav.example
DTSTAMP:20240201T080000Z
DTSTART;TZID=Europe/Zurich:20240301T110000
DTEND;TZID=Europe/Zurich:20240301T120000
SUMMARY:Team Sync
X-USER-NOTE:bring coffee
END:VEVENT
END:VCALENDAR
`

func decodeObject(t *testing.T, data string) *ical.Calendar {
	t.Helper()
	data = strings.ReplaceAll(strings.ReplaceAll(data, "\r\n", "\n"), "\n", "\r\n")
	cal, err := ical.NewDecoder(strings.NewReader(data)).Decode()
	require.NoError(t, err)
	return cal
}

func TestApplyEventUnchangedKeepsEncoding(t *testing.T) {
	cal := decodeObject(t, manualObject)
	vevent := findEvent(cal)
	require.NotNil(t, vevent)

	current := &calendar.Event{}
	readComponent(current, vevent)
	assert.False(t, applyEvent(vevent, current))
	assert.Nil(t, vevent.Props.Get(ical.PropStatus))
	assert.Equal(t, "20240201T080000Z", vevent.Props.Get(ical.PropDateTimeStamp).Value)

	// the same instants in another zone are no change either
	utc := current.Clone()
	utc.Start = current.Start.UTC()
	utc.End = current.End.UTC()
	utc.URL = "https://indico.example/event/7/"
	assert.True(t, applyEvent(vevent, utc))

	start := vevent.Props.Get(ical.PropDateTimeStart)
	assert.Equal(t, "Europe/Zurich", start.Params.Get(ical.PropTimezoneID))
	assert.Equal(t, "20240301T110000", start.Value)
	assert.Nil(t, vevent.Props.Get(ical.PropStatus))
	assert.Equal(t, "https://indico.example/event/7/", vevent.Props.Get(ical.PropURL).Value)
}

func TestApplyEventRewritesMovedTimes(t *testing.T) {
	cal := decodeObject(t, manualObject)
	vevent := findEvent(cal)
	require.NotNil(t, vevent)

	moved := &calendar.Event{}
	readComponent(moved, vevent)
	moved.Start = moved.Start.Add(time.Hour)
	moved.End = moved.End.Add(time.Hour)
	moved.Status = calendar.StatusTentative
	assert.True(t, applyEvent(vevent, moved))

	assert.Equal(t, "20240301T110000Z", vevent.Props.Get(ical.PropDateTimeStart).Value)
	assert.Equal(t, "TENTATIVE", vevent.Props.Get(ical.PropStatus).Value)
}

// davServer serves one calendar object and records what is PUT back
type davServer struct {
	mu   sync.Mutex
	body string
	puts int
}

func (d *davServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", ical.MIMEType)
		w.Header().Set("ETag", `"1"`)
		io.WriteString(w, d.body)
	case http.MethodPut:
		b, _ := io.ReadAll(r.Body)
		d.body = string(b)
		d.puts++
		w.Header().Set("ETag", `"2"`)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestSetURLWritesOnlyURL(t *testing.T) {
	dav := &davServer{body: strings.ReplaceAll(manualObject, "\n", "\r\n")}
	srv := httptest.NewServer(dav)
	defer srv.Close()

	ctx := context.Background()
	c := NewClient(Config{ServerURL: srv.URL, Calendar: "/cal/"})
	require.NoError(t, c.Authenticate(ctx))

	got, err := c.SetURL(ctx, "/cal/manual.ics", "https://indico.example/event/7/")
	require.NoError(t, err)
	assert.Equal(t, "https://indico.example/event/7/", got.URL)
	assert.Equal(t, "Team Sync", got.Title)
	assert.Equal(t, "2", got.ETag)
	assert.Equal(t, 1, dav.puts)

	vevent := findEvent(decodeObject(t, dav.body))
	require.NotNil(t, vevent)
	assert.Equal(t, "https://indico.example/event/7/", vevent.Props.Get(ical.PropURL).Value)
	assert.Equal(t, "Europe/Zurich", vevent.Props.Get(ical.PropDateTimeStart).Params.Get(ical.PropTimezoneID))
	assert.Equal(t, "20240301T110000", vevent.Props.Get(ical.PropDateTimeStart).Value)
	assert.Equal(t, "20240301T120000", vevent.Props.Get(ical.PropDateTimeEnd).Value)
	assert.Equal(t, "20240201T080000Z", vevent.Props.Get(ical.PropDateTimeStamp).Value)
	assert.Nil(t, vevent.Props.Get(ical.PropStatus))
	assert.Nil(t, vevent.Props.Get(ical.PropLastModified))
	note, err := vevent.Props.Text("X-USER-NOTE")
	require.NoError(t, err)
	assert.Equal(t, "bring coffee", note)

	// same URL again: nothing is written
	_, err = c.SetURL(ctx, "/cal/manual.ics", "https://indico.example/event/7/")
	require.NoError(t, err)
	assert.Equal(t, 1, dav.puts)
}

func TestParseICalEventDuration(t *testing.T) {
	cal := ical.NewCalendar()
	vevent := ical.NewComponent(ical.CompEvent)
	vevent.Props.SetText(ical.PropUID, "abc")
	vevent.Props.SetDateTime(ical.PropDateTimeStart, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	vevent.Props.SetText(ical.PropDuration, "PT1H")
	vevent.Props.SetText(ical.PropStatus, "CANCELLED")
	cal.Children = append(cal.Children, vevent)

	got, err := parseICalEvent(&caldav.CalendarObject{Path: "/cal/abc.ics", Data: cal}, "/cal/")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, got.Duration())
	assert.Equal(t, calendar.StatusCancelled, got.Status)
}

func TestParseICalEventErrors(t *testing.T) {
	_, err := parseICalEvent(&caldav.CalendarObject{Path: "/x.ics"}, "")
	assert.Error(t, err)

	_, err = parseICalEvent(&caldav.CalendarObject{Path: "/x.ics", Data: ical.NewCalendar()}, "")
	assert.Error(t, err)
}

func TestObjectPath(t *testing.T) {
	c := &Client{calendarPath: "/dav/calendars/user/indico/"}
	assert.Equal(t, "/dav/calendars/user/indico/indico-event-1@tindico.ics", c.objectPath("indico-event-1@tindico"))
	assert.Equal(t, "/dav/calendars/user/indico/a%2Fb.ics", c.objectPath("a/b"))
}

func TestOperationsRequireAuthenticate(t *testing.T) {
	c := NewClient(Config{ServerURL: "fastmail"})
	ctx := context.Background()

	_, err := c.FindByUID(ctx, "x")
	assert.Error(t, err)
	_, err = c.CreateEvent(ctx, testEvent())
	assert.Error(t, err)
	_, err = c.EventsInRange(ctx, time.Now(), time.Now().Add(time.Hour))
	assert.Error(t, err)
	_, err = c.SetURL(ctx, "/cal/x.ics", "https://indico.example/")
	assert.Error(t, err)
}

func TestAuthenticateRejectsUnknownServer(t *testing.T) {
	c := NewClient(Config{ServerURL: "nowhere"})
	assert.Error(t, c.Authenticate(context.Background()))
}

func TestAuthenticateTokenError(t *testing.T) {
	c := NewClient(Config{
		ServerURL: "https://dav.example/",
		Token: func(context.Context) (string, error) {
			return "", assert.AnError
		},
	})
	err := c.Authenticate(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
}

func TestAuthenticateExplicitPath(t *testing.T) {
	c := NewClient(Config{ServerURL: "https://dav.example/", Calendar: "/cal/indico/"})
	require.NoError(t, c.Authenticate(context.Background()))
	assert.Equal(t, "/cal/indico/", c.CalendarPath())
	assert.Equal(t, "caldav", c.Name())
}

func TestOAuthHTTPClientSetsBearer(t *testing.T) {
	var got string
	client := &OAuthHTTPClient{token: "tok", base: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		got = r.Header.Get("Authorization")
		return &http.Response{StatusCode: http.StatusNoContent, Body: http.NoBody, Request: r}, nil
	})}}

	req, err := http.NewRequest(http.MethodGet, "https://dav.example/", nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "Bearer tok", got)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
