package calendar

import (
	"errors"
	"time"
)

// ErrEventNotFound is returned when an entry id does not exist in the backend
var ErrEventNotFound = errors.New("calendar entry not found")

// Event represents a calendar entry as stored by a backend
type Event struct {
	ID          string    `json:"id"` // backend-assigned identity
	CalendarID  string    `json:"calendar_id"`
	UID         string    `json:"uid"` // iCal UID, the sync key for tindico entries
	Title       string    `json:"title"`
	Description string    `json:"description"` // notes
	Location    string    `json:"location"`
	URL         string    `json:"url"` // external reference
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"all_day"`

	// Metadata
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
	ETag     string    `json:"etag"`

	Status EventStatus `json:"status"`
}

// EventStatus represents the status of an event
type EventStatus string

const (
	StatusConfirmed EventStatus = "confirmed"
	StatusTentative EventStatus = "tentative"
	StatusCancelled EventStatus = "cancelled"
)

// Calendar represents a calendar (container for events)
type Calendar struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
	ReadOnly    bool   `json:"read_only"`
}

// Clone returns a copy that can be modified without affecting e
func (e *Event) Clone() *Event {
	c := *e
	return &c
}

// Duration returns the duration of the event
func (e *Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// Overlaps returns true if this event overlaps with another
func (e *Event) Overlaps(other *Event) bool {
	return e.Start.Before(other.End) && e.End.After(other.Start)
}

// IsOnDate returns true if the event occurs on the given date
func (e *Event) IsOnDate(date time.Time) bool {
	dateStart, dateEnd := DayBounds(date)
	return e.Start.Before(dateEnd) && e.End.After(dateStart)
}

// DayBounds returns the start of t's calendar day and the start of the next,
// both in t's location.
func DayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 0, 1)
}
