package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/djwarf/tindico/pkg/ics"
	"github.com/djwarf/tindico/pkg/indico"
	"github.com/djwarf/tindico/pkg/reconcile"
)

// Catalog is the read side of the Indico client used by the browser
type Catalog interface {
	FavoriteEvents(ctx context.Context, limit int) ([]indico.Event, error)
	Browse(ctx context.Context, cat indico.Category, window indico.Window) (indico.Listing, error)
	FetchCategory(ctx context.Context, id string) (indico.Category, error)
	Timetable(ctx context.Context, eventID string) ([]indico.Contribution, error)
}

// Syncer writes events into the calendar
type Syncer interface {
	CreateOrUpdate(ctx context.Context, ev indico.Event) (reconcile.Result, error)
	AttachReference(ctx context.Context, ev indico.Event) (reconcile.Result, error)
	AttachReferenceTo(ctx context.Context, ev indico.Event, entryID string) (reconcile.Result, error)
}

type favoritesMsg struct {
	seq    uint64
	events []indico.Event
	err    error
}

type listingMsg struct {
	seq     uint64
	id      string
	listing indico.Listing
	err     error
}

type parentMsg struct {
	seq uint64
	cat indico.Category
	err error
}

type timetableMsg struct {
	eventID       string
	contributions []indico.Contribution
	err           error
}

type syncOp int

const (
	opSync syncOp = iota
	opAttach
)

func (o syncOp) String() string {
	if o == opAttach {
		return "attach"
	}
	return "sync"
}

type syncMsg struct {
	op     syncOp
	event  indico.Event
	result reconcile.Result
	err    error
}

type exportMsg struct {
	event indico.Event
	path  string
	err   error
}

type openedMsg struct {
	label string
	err   error
}

func fetchFavorites(ctx context.Context, c Catalog, seq uint64, limit int) tea.Cmd {
	return func() tea.Msg {
		events, err := c.FavoriteEvents(ctx, limit)
		return favoritesMsg{seq: seq, events: events, err: err}
	}
}

func fetchListing(ctx context.Context, c Catalog, seq uint64, cat indico.Category, window indico.Window) tea.Cmd {
	return func() tea.Msg {
		listing, err := c.Browse(ctx, cat, window)
		return listingMsg{seq: seq, id: cat.ID, listing: listing, err: err}
	}
}

func fetchParent(ctx context.Context, c Catalog, seq uint64, id string) tea.Cmd {
	return func() tea.Msg {
		cat, err := c.FetchCategory(ctx, id)
		return parentMsg{seq: seq, cat: cat, err: err}
	}
}

func fetchTimetable(ctx context.Context, c Catalog, eventID string) tea.Cmd {
	return func() tea.Msg {
		contribs, err := c.Timetable(ctx, eventID)
		return timetableMsg{eventID: eventID, contributions: contribs, err: err}
	}
}

// runGuarded runs fn for ev on a context navigation never cancels, and
// releases the event's key in guard once fn returns.
func runGuarded(guard *reconcile.Guard, ev indico.Event, op syncOp, fn func(ctx context.Context) (reconcile.Result, error)) tea.Cmd {
	key := reconcile.Derive(ev.ID)
	return func() tea.Msg {
		defer guard.End(key)
		res, err := fn(context.Background())
		return syncMsg{op: op, event: ev, result: res, err: err}
	}
}

func exportEvent(dir string, ev indico.Event) tea.Cmd {
	return func() tea.Msg {
		path, err := ics.WriteFile(dir, ev)
		return exportMsg{event: ev, path: path, err: err}
	}
}

func openURL(open func(string) error, url, label string) tea.Cmd {
	return func() tea.Msg {
		return openedMsg{label: label, err: open(url)}
	}
}
