// Package reconcile keeps calendar entries aligned with remote Indico events.
//
// CreateOrUpdate finds its entry by the sync key stored as the entry UID.
// AttachReference targets entries created by hand, which have no key, and
// finds them by title and start time instead.
package reconcile

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/djwarf/tindico/pkg/calendar"
	"github.com/djwarf/tindico/pkg/indico"
)

// Store is the subset of a calendar backend the reconciler needs
type Store interface {
	CreateEvent(ctx context.Context, event *calendar.Event) (*calendar.Event, error)
	UpdateEvent(ctx context.Context, event *calendar.Event) (*calendar.Event, error)
	SetURL(ctx context.Context, id, url string) (*calendar.Event, error)
	GetEvent(ctx context.Context, id string) (*calendar.Event, error)
	FindByUID(ctx context.Context, uid string) ([]*calendar.Event, error)
	EventsInRange(ctx context.Context, start, end time.Time) ([]*calendar.Event, error)
}

// Action describes what an operation did to the calendar
type Action int

const (
	Created Action = iota + 1
	Updated
	Attached
	Unchanged
)

func (a Action) String() string {
	switch a {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Attached:
		return "attached"
	case Unchanged:
		return "unchanged"
	}
	return ""
}

// Result is the outcome of a successful operation
type Result struct {
	Action  Action
	EntryID string
	Key     SyncKey
}

// Reconciler maps remote events onto calendar entries
type Reconciler struct {
	store  Store
	logger zerolog.Logger
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithLogger sets the logger for write operations
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// New creates a Reconciler writing to store
func New(store Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:  store,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateOrUpdate creates the entry for ev, or overwrites the title, times,
// location and managed notes of the entry created by an earlier sync. An
// entry bound to ev by AttachReference, found by its URL on ev's day, is
// adopted instead of creating a second one.
func (r *Reconciler) CreateOrUpdate(ctx context.Context, ev indico.Event) (Result, error) {
	key := Derive(ev.ID)

	found, err := r.store.FindByUID(ctx, key.String())
	if err != nil {
		return Result{}, &StoreReadError{Op: "find by key", Err: err}
	}
	if len(found) == 0 {
		found, err = r.attachedTo(ctx, ev)
		if err != nil {
			return Result{}, err
		}
	}

	switch len(found) {
	case 0:
		entry := &calendar.Event{
			UID:         key.String(),
			Title:       ev.Title,
			Description: managedBlock(ev.URL, ev.PlainDescription()),
			Location:    ev.FullLocation(),
			URL:         ev.URL,
			Start:       ev.Start,
			End:         ev.End,
			Status:      calendar.StatusConfirmed,
		}
		created, err := r.store.CreateEvent(ctx, entry)
		if err != nil {
			return Result{}, &StoreWriteError{Op: "create", Err: err}
		}
		r.logger.Info().Str("key", key.String()).Str("entry", created.ID).Msg("created calendar entry")
		return Result{Action: Created, EntryID: created.ID, Key: key}, nil

	case 1:
		entry := found[0].Clone()
		if entry.UID == "" {
			entry.UID = key.String()
		}
		entry.Title = ev.Title
		entry.Start = ev.Start
		entry.End = ev.End
		entry.Location = ev.FullLocation()
		entry.Description = mergeNotes(entry.Description, managedBlock(ev.URL, ev.PlainDescription()))
		entry.URL = ev.URL
		if _, err := r.store.UpdateEvent(ctx, entry); err != nil {
			return Result{}, &StoreWriteError{Op: "update", Err: err}
		}
		r.logger.Info().Str("key", key.String()).Str("entry", entry.ID).Msg("updated calendar entry")
		return Result{Action: Updated, EntryID: entry.ID, Key: key}, nil
	}

	return Result{}, &StoreLookupAmbiguous{Key: key, Candidates: candidatesOf(found)}
}

// attachedTo returns the entries on ev's day that carry ev's URL and no
// sync key, which is what AttachReference leaves behind.
func (r *Reconciler) attachedTo(ctx context.Context, ev indico.Event) ([]*calendar.Event, error) {
	if ev.URL == "" {
		return nil, nil
	}
	entries, err := r.day(ctx, ev)
	if err != nil {
		return nil, err
	}
	var out []*calendar.Event
	for _, e := range entries {
		if _, bound := boundTo(e); !bound && e.URL == ev.URL {
			out = append(out, e)
		}
	}
	return out, nil
}

// AttachReference writes ev's URL into the one entry sharing its title and
// start minute on the same day. No other field is touched. Entries already
// synced from a different event are never candidates.
func (r *Reconciler) AttachReference(ctx context.Context, ev indico.Event) (Result, error) {
	entries, err := r.day(ctx, ev)
	if err != nil {
		return Result{}, err
	}

	var matches []*calendar.Event
	for _, e := range entries {
		if id, bound := boundTo(e); bound && id != ev.ID {
			continue
		}
		if matchesEvent(e, ev) {
			matches = append(matches, e)
		}
	}

	switch len(matches) {
	case 0:
		return Result{}, &NoMatchingEntry{Title: ev.Title, Start: ev.Start.Format("2006-01-02 15:04 MST")}
	case 1:
		return r.attach(ctx, matches[0], ev)
	}
	return Result{}, &AmbiguousMatch{Title: ev.Title, Candidates: candidatesOf(matches)}
}

func (r *Reconciler) day(ctx context.Context, ev indico.Event) ([]*calendar.Event, error) {
	dayStart, dayEnd := calendar.DayBounds(ev.Start)
	entries, err := r.store.EventsInRange(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, &StoreReadError{Op: "list day", Err: err}
	}
	return entries, nil
}

// AttachReferenceTo attaches ev's URL to a specific entry, typically one the
// user picked from an AmbiguousMatch.
func (r *Reconciler) AttachReferenceTo(ctx context.Context, ev indico.Event, entryID string) (Result, error) {
	entry, err := r.store.GetEvent(ctx, entryID)
	if err != nil {
		return Result{}, &StoreReadError{Op: "get entry", Err: err}
	}
	return r.attach(ctx, entry, ev)
}

func (r *Reconciler) attach(ctx context.Context, entry *calendar.Event, ev indico.Event) (Result, error) {
	key := Derive(ev.ID)
	if entry.URL == ev.URL {
		return Result{Action: Unchanged, EntryID: entry.ID, Key: key}, nil
	}

	if _, err := r.store.SetURL(ctx, entry.ID, ev.URL); err != nil {
		return Result{}, &StoreWriteError{Op: "attach", Err: err}
	}
	r.logger.Info().Str("key", key.String()).Str("entry", entry.ID).Msg("attached reference")
	return Result{Action: Attached, EntryID: entry.ID, Key: key}, nil
}

// boundTo returns the remote id whose sync key e carries. Entries created
// by hand report false.
func boundTo(e *calendar.Event) (string, bool) {
	return RemoteID(SyncKey(e.UID))
}

// matchesEvent reports whether e has ev's title, compared without case or
// surrounding space, and starts in the same minute.
func matchesEvent(e *calendar.Event, ev indico.Event) bool {
	if !strings.EqualFold(strings.TrimSpace(e.Title), strings.TrimSpace(ev.Title)) {
		return false
	}
	return e.Start.Truncate(time.Minute).Equal(ev.Start.Truncate(time.Minute))
}
