// Package tui is the terminal browser: a table of favourite or category
// events, a detail panel with the highlighted event's timetable, and the
// calendar actions.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/djwarf/tindico/pkg/indico"
	"github.com/djwarf/tindico/pkg/nav"
	"github.com/djwarf/tindico/pkg/reconcile"
)

const finishingStatus = "Finishing calendar write..."

// Options wires the browser to its collaborators
type Options struct {
	Catalog        Catalog
	Syncer         Syncer
	ExportDir      string
	FavoritesLimit int
	OpenURL        func(url string) error
	Now            func() time.Time
	Logger         zerolog.Logger
}

// Model is the bubbletea model of the browser
type Model struct {
	opts Options
	keys keyMap

	help      help.Model
	spinner   spinner.Model
	filter    textinput.Model
	filtering bool
	picker    *picker

	nav  nav.State
	rows []row

	favorites  []indico.Event
	listings   map[string]indico.Listing
	timetables map[string][]indico.Contribution
	ttErrs     map[string]error

	// navigation fetch: only the result carrying seq is applied
	seq        uint64
	cancel     context.CancelFunc
	fetching   bool
	focusEvent string
	initCmd    tea.Cmd

	// timetable fetch for the highlighted event
	ttEvent  string
	ttCancel context.CancelFunc

	guard  *reconcile.Guard
	writes int
	// quit requested, waiting for writes to finish
	quitting bool

	detailCursor int
	status       string
	statusErr    bool
	width        int
	height       int
}

// New creates the browser model. The favourites are fetched by Init.
func New(opts Options) Model {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.FavoritesLimit <= 0 {
		opts.FavoritesLimit = indico.DefaultFavoritesLimit
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	f := textinput.New()
	f.Placeholder = "Regex filter (title/category)"
	f.Prompt = "/"
	f.CharLimit = 200

	m := Model{
		opts:       opts,
		keys:       defaultKeyMap(),
		help:       help.New(),
		spinner:    s,
		filter:     f,
		nav:        nav.New(),
		listings:   make(map[string]indico.Listing),
		timetables: make(map[string][]indico.Contribution),
		ttErrs:     make(map[string]error),
		guard:      &reconcile.Guard{},
		status:     "Loading events...",
	}
	ctx, seq := m.startFetch()
	m.initCmd = fetchFavorites(ctx, opts.Catalog, seq, opts.FavoritesLimit)
	return m
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.initCmd)
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.filter.Width = max(10, msg.Width-4)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case favoritesMsg:
		if msg.seq != m.seq {
			return m, nil
		}
		m.fetching = false
		if msg.err != nil {
			m.setError("Cannot load favourites", msg.err)
			return m, nil
		}
		m.favorites = msg.events
		m.refreshRows()
		m.setStatus(fmt.Sprintf("Loaded %d events", len(msg.events)))
		cmd := m.timetableCmd()
		return m, cmd

	case listingMsg:
		return m.applyListing(msg)

	case parentMsg:
		if msg.seq != m.seq {
			return m, nil
		}
		m.fetching = false
		if msg.err != nil {
			m.setError("Cannot access parent category", msg.err)
			return m, nil
		}
		cmd := m.enterParentOf(msg.cat)
		return m, cmd

	case timetableMsg:
		if msg.eventID == m.ttEvent {
			m.ttCancel = nil
			m.ttEvent = ""
		}
		switch {
		case errors.Is(msg.err, context.Canceled):
		case msg.err != nil:
			m.ttErrs[msg.eventID] = msg.err
			m.opts.Logger.Warn().Err(msg.err).Str("event", msg.eventID).Msg("timetable fetch failed")
		default:
			m.timetables[msg.eventID] = msg.contributions
		}
		cmd := m.timetableCmd()
		return m, cmd

	case syncMsg:
		m.writes--
		m.applySync(msg)
		if m.quitting {
			m.picker = nil
			if m.writes == 0 {
				return m, tea.Quit
			}
			m.setStatus(finishingStatus)
		}
		return m, nil

	case exportMsg:
		if msg.err != nil {
			m.setError("Export failed", msg.err)
			return m, nil
		}
		m.setStatus("Exported " + msg.path)
		return m, nil

	case openedMsg:
		if msg.err != nil {
			m.setError("Cannot open browser", msg.err)
			return m, nil
		}
		m.setStatus("Opened " + msg.label)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.quitting {
		return m, nil
	}
	if key.Matches(msg, m.keys.ForceQuit) {
		cmd := m.quit()
		return m, cmd
	}
	if m.filtering {
		return m.handleFilterKey(msg)
	}
	if m.picker != nil {
		return m.handlePickerKey(msg)
	}

	detail := m.nav.View() == nav.EventDetail

	switch {
	case key.Matches(msg, m.keys.Quit):
		cmd := m.quit()
		return m, cmd

	case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.Down):
		dir := 1
		if key.Matches(msg, m.keys.Up) {
			dir = -1
		}
		if detail {
			m.moveDetail(dir)
			return m, nil
		}
		if c := m.nav.Cursor(); c >= 0 && c < len(m.rows) {
			m.nav = m.nav.WithCursor(step(m.rows, c, dir))
		}
		cmd := m.timetableCmd()
		return m, cmd

	case key.Matches(msg, m.keys.Open):
		if detail {
			cmd := m.openMaterial()
			return m, cmd
		}
		r, ok := m.highlighted()
		if !ok {
			return m, nil
		}
		if r.kind == rowCategory {
			cmd := m.enterCategory(r.category, "")
			return m, cmd
		}
		m.nav = m.nav.SelectEvent(r.event)
		m.detailCursor = 0
		cmd := m.timetableCmd()
		return m, cmd

	case key.Matches(msg, m.keys.Focus):
		if detail {
			m.nav = m.nav.Back()
			return m, nil
		}
		if r, ok := m.highlighted(); ok && r.kind == rowEvent {
			m.nav = m.nav.SelectEvent(r.event)
			m.detailCursor = 0
		}
		cmd := m.timetableCmd()
		return m, cmd

	case key.Matches(msg, m.keys.Parent):
		if detail {
			m.nav = m.nav.Back()
			return m, nil
		}
		cmd := m.parent()
		return m, cmd

	case key.Matches(msg, m.keys.Back):
		if detail {
			m.nav = m.nav.Back()
			return m, nil
		}
		if m.nav.Depth() == 0 {
			return m, nil
		}
		m.cancelFetch()
		m.nav = m.nav.Back()
		m.refreshRows()
		m.setStatus(m.listingStatus())
		cmd := m.timetableCmd()
		return m, cmd

	case key.Matches(msg, m.keys.Home):
		if m.nav.View() == nav.Favorites && m.nav.Filter() == "" {
			return m, nil
		}
		m.cancelFetch()
		m.nav = m.nav.Home()
		m.refreshRows()
		m.setStatus(m.listingStatus())
		cmd := m.timetableCmd()
		return m, cmd

	case key.Matches(msg, m.keys.Filter):
		m.filtering = true
		m.filter.SetValue(m.nav.Filter())
		m.filter.CursorEnd()
		cmd := m.filter.Focus()
		return m, cmd

	case key.Matches(msg, m.keys.Browser):
		ev, ok := m.currentEvent()
		if !ok {
			m.setStatus("No event selected")
			return m, nil
		}
		return m, openURL(m.opts.OpenURL, ev.URL, ev.Title)

	case key.Matches(msg, m.keys.Sync):
		cmd := m.startWrite(opSync)
		return m, cmd

	case key.Matches(msg, m.keys.Attach):
		cmd := m.startWrite(opAttach)
		return m, cmd

	case key.Matches(msg, m.keys.Export):
		ev, ok := m.currentEvent()
		if !ok {
			m.setStatus("No event selected")
			return m, nil
		}
		return m, exportEvent(m.opts.ExportDir, ev)
	}

	return m, nil
}

func (m Model) handleFilterKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.filtering = false
		m.filter.Blur()
		return m, nil
	case tea.KeyEnter:
		state, err := m.nav.WithFilter(strings.TrimSpace(m.filter.Value()))
		if err != nil {
			m.setError("Invalid regex", err)
			return m, nil
		}
		m.filtering = false
		m.filter.Blur()
		m.nav = state.WithCursor(0)
		m.refreshRows()
		m.setStatus(m.listingStatus())
		cmd := m.timetableCmd()
		return m, cmd
	}

	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	return m, cmd
}

func (m Model) handlePickerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := m.picker
	res := p.update(msg, m.keys)
	if !res.closed {
		return m, nil
	}
	m.picker = nil
	if res.chosen == nil {
		m.setStatus("Cancelled")
		return m, nil
	}

	switch p.kind {
	case pickMaterial:
		return m, openURL(m.opts.OpenURL, res.chosen.value, res.chosen.label)
	case pickCandidate:
		ev, entryID := p.event, res.chosen.value
		if !m.guard.Begin(reconcile.Derive(ev.ID)) {
			m.setStatus(fmt.Sprintf("Already writing '%s'", ev.Title))
			return m, nil
		}
		m.writes++
		m.setStatus(fmt.Sprintf("Attaching URL to '%s'...", ev.Title))
		return m, runGuarded(m.guard, ev, opAttach, func(ctx context.Context) (reconcile.Result, error) {
			return m.opts.Syncer.AttachReferenceTo(ctx, ev, entryID)
		})
	}
	return m, nil
}

// startFetch cancels the navigation fetch in flight and opens a new one
func (m *Model) startFetch() (context.Context, uint64) {
	if m.cancel != nil {
		m.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.seq++
	m.fetching = true
	return ctx, m.seq
}

// cancelFetch abandons the navigation fetch in flight, if any
func (m *Model) cancelFetch() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.seq++
	m.fetching = false
	m.focusEvent = ""
}

// quit stops fetching and exits once no calendar write is pending
func (m *Model) quit() tea.Cmd {
	m.stop()
	if m.writes == 0 {
		return tea.Quit
	}
	m.quitting = true
	m.filtering = false
	m.picker = nil
	m.setStatus(finishingStatus)
	return nil
}

func (m *Model) stop() {
	m.cancelFetch()
	if m.ttCancel != nil {
		m.ttCancel()
		m.ttCancel = nil
	}
}

func (m *Model) enterCategory(cat indico.Category, focusEvent string) tea.Cmd {
	listing, cached := m.listings[cat.ID]
	if cached {
		cat = listing.Category
	}
	m.nav = m.nav.Enter(cat, cached && len(cat.Children) > 0, m.opts.Now())

	if cached {
		m.cancelFetch()
		m.refreshRows()
		m.focus(focusEvent)
		m.setStatus(m.listingStatus())
		return m.timetableCmd()
	}

	m.rows = nil
	ctx, seq := m.startFetch()
	m.focusEvent = focusEvent
	m.setStatus(fmt.Sprintf("Loading category '%s'...", cat.Title))
	return fetchListing(ctx, m.opts.Catalog, seq, cat, m.nav.Window())
}

func (m Model) applyListing(msg listingMsg) (tea.Model, tea.Cmd) {
	if msg.seq != m.seq {
		return m, nil
	}
	m.fetching = false

	if msg.err != nil {
		// stay where we were
		m.nav = m.nav.Back()
		m.focusEvent = ""
		m.refreshRows()
		m.setError("Cannot access category", msg.err)
		cmd := m.timetableCmd()
		return m, cmd
	}

	m.listings[msg.id] = msg.listing
	if cat, ok := m.nav.Category(); ok && cat.ID == msg.id {
		m.nav = m.nav.WithCategory(msg.listing.Category).WithChildren(len(msg.listing.Category.Children) > 0)
	}
	m.refreshRows()
	m.focus(m.focusEvent)
	m.focusEvent = ""
	m.setStatus(m.listingStatus())
	cmd := m.timetableCmd()
	return m, cmd
}

// parent navigates from the favourites to the highlighted event's category,
// or from a category to its parent.
func (m *Model) parent() tea.Cmd {
	if m.nav.View() == nav.Favorites {
		r, ok := m.highlighted()
		if !ok || r.kind != rowEvent || r.event.CategoryID == "" {
			m.setStatus("No category for this event")
			return nil
		}
		ev := r.event
		return m.enterCategory(indico.Category{ID: ev.CategoryID, Title: ev.Category, Path: ev.CategoryPath}, ev.ID)
	}

	cat, ok := m.nav.Category()
	if !ok {
		return nil
	}
	if listing, cached := m.listings[cat.ID]; cached {
		return m.enterParentOf(listing.Category)
	}
	ctx, seq := m.startFetch()
	m.setStatus("Loading parent category...")
	return fetchParent(ctx, m.opts.Catalog, seq, cat.ID)
}

func (m *Model) enterParentOf(cat indico.Category) tea.Cmd {
	if !cat.HasParent() {
		m.setStatus("Already at top-level category")
		return nil
	}
	parent := indico.Category{ID: cat.ParentID, Title: cat.ParentTitle}
	if n := len(cat.Path); n > 1 {
		parent.Path = append([]string(nil), cat.Path[:n-1]...)
	}
	return m.enterCategory(parent, "")
}

// refreshRows rebuilds the table for the current list view
func (m *Model) refreshRows() {
	switch m.nav.ListView() {
	case nav.Favorites:
		m.rows = buildRows(nil, m.nav.FilterEvents(m.favorites))
	default:
		cat, _ := m.nav.Category()
		listing, ok := m.listings[cat.ID]
		if !ok {
			m.rows = nil
			return
		}
		m.rows = buildRows(m.nav.FilterCategories(listing.Category.Children), m.nav.FilterEvents(listing.Events))
	}
	if c := clampCursor(m.rows, m.nav.Cursor()); c >= 0 {
		m.nav = m.nav.WithCursor(c)
	}
}

func (m *Model) focus(eventID string) {
	if eventID == "" {
		return
	}
	if i := indexOfEvent(m.rows, eventID); i >= 0 {
		m.nav = m.nav.WithCursor(i)
	}
}

func (m Model) highlighted() (row, bool) {
	c := m.nav.Cursor()
	if c < 0 || c >= len(m.rows) || !m.rows[c].selectable() {
		return row{}, false
	}
	return m.rows[c], true
}

// currentEvent is the event in the detail view, or the highlighted one
func (m Model) currentEvent() (indico.Event, bool) {
	if ev, ok := m.nav.Event(); ok {
		return ev, true
	}
	r, ok := m.highlighted()
	if !ok || r.kind != rowEvent {
		return indico.Event{}, false
	}
	return r.event, true
}

// timetableCmd fetches the current event's timetable unless it is cached
// or already on its way. A fetch for another event is cancelled.
func (m *Model) timetableCmd() tea.Cmd {
	ev, ok := m.currentEvent()
	if !ok {
		return nil
	}
	if _, done := m.timetables[ev.ID]; done {
		return nil
	}
	if _, failed := m.ttErrs[ev.ID]; failed {
		return nil
	}
	if m.ttCancel != nil {
		if m.ttEvent == ev.ID {
			return nil
		}
		m.ttCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.ttCancel = cancel
	m.ttEvent = ev.ID
	return fetchTimetable(ctx, m.opts.Catalog, ev.ID)
}

func (m *Model) moveDetail(dir int) {
	ev, _ := m.nav.Event()
	n := len(m.timetables[ev.ID])
	m.detailCursor = max(0, min(m.detailCursor+dir, n-1))
}

func (m *Model) openMaterial() tea.Cmd {
	ev, ok := m.nav.Event()
	if !ok {
		return nil
	}

	var c indico.Contribution
	contribs := m.timetables[ev.ID]
	switch {
	case m.detailCursor < len(contribs):
		c = contribs[m.detailCursor]
	case len(contribs) == 0 && len(ev.Materials) > 0:
		c = indico.Contribution{Title: ev.Title, Materials: ev.Materials}
	default:
		m.setStatus("No contribution selected")
		return nil
	}

	switch len(c.Materials) {
	case 0:
		m.setStatus("No materials")
		return nil
	case 1:
		return openURL(m.opts.OpenURL, c.Materials[0].URL, c.Materials[0].Title)
	}
	m.picker = newMaterialPicker(c)
	return nil
}

func (m *Model) startWrite(op syncOp) tea.Cmd {
	ev, ok := m.currentEvent()
	if !ok {
		m.setStatus("No event selected")
		return nil
	}
	if !m.guard.Begin(reconcile.Derive(ev.ID)) {
		m.setStatus(fmt.Sprintf("Already writing '%s'", ev.Title))
		return nil
	}
	m.writes++

	syncer := m.opts.Syncer
	if op == opAttach {
		m.setStatus(fmt.Sprintf("Attaching URL to '%s'...", ev.Title))
		return runGuarded(m.guard, ev, op, func(ctx context.Context) (reconcile.Result, error) {
			return syncer.AttachReference(ctx, ev)
		})
	}
	m.setStatus(fmt.Sprintf("Writing '%s' to the calendar...", ev.Title))
	return runGuarded(m.guard, ev, op, func(ctx context.Context) (reconcile.Result, error) {
		return syncer.CreateOrUpdate(ctx, ev)
	})
}

func (m *Model) applySync(msg syncMsg) {
	log := m.opts.Logger.With().Str("op", msg.op.String()).Str("event", msg.event.ID).Logger()

	var ambiguous *reconcile.AmbiguousMatch
	var noMatch *reconcile.NoMatchingEntry
	switch {
	case errors.As(msg.err, &ambiguous):
		p := &picker{kind: pickCandidate, title: "Attach URL to which entry?", event: msg.event}
		for _, c := range ambiguous.Candidates {
			p.items = append(p.items, pickerItem{label: c.Start + "  " + c.Title, value: c.ID})
		}
		m.picker = p
		m.setStatus(fmt.Sprintf("%d calendar entries match '%s'", len(ambiguous.Candidates), msg.event.Title))
		return

	case errors.As(msg.err, &noMatch):
		m.setStatus("No calendar entry found for '" + msg.event.Title + "'")
		return

	case msg.err != nil:
		log.Error().Err(msg.err).Msg("calendar write failed")
		m.setError("Calendar error", msg.err)
		return
	}

	log.Info().Str("action", msg.result.Action.String()).Str("entry", msg.result.EntryID).Msg("calendar updated")

	switch msg.result.Action {
	case reconcile.Created:
		m.setStatus(fmt.Sprintf("Added '%s' to the calendar", msg.event.Title))
	case reconcile.Updated:
		m.setStatus(fmt.Sprintf("Updated '%s' in the calendar", msg.event.Title))
	case reconcile.Attached:
		m.setStatus(fmt.Sprintf("Attached URL to '%s'", msg.event.Title))
	case reconcile.Unchanged:
		m.setStatus(fmt.Sprintf("'%s' already carries the URL", msg.event.Title))
	}
}

func (m Model) listingStatus() string {
	pattern := m.nav.Filter()
	if m.nav.ListView() == nav.Favorites {
		if pattern != "" {
			return fmt.Sprintf("%d/%d events matching /%s/", countEvents(m.rows), len(m.favorites), pattern)
		}
		return fmt.Sprintf("Loaded %d events", len(m.favorites))
	}

	cat, _ := m.nav.Category()
	total := len(m.listings[cat.ID].Events)
	if pattern != "" {
		return fmt.Sprintf("%d/%d events matching /%s/ in '%s'", countEvents(m.rows), total, pattern, cat.Title)
	}
	return fmt.Sprintf("%d events in '%s'", total, cat.Title)
}

func countEvents(rows []row) int {
	n := 0
	for _, r := range rows {
		if r.kind == rowEvent {
			n++
		}
	}
	return n
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.statusErr = false
}

func (m *Model) setError(prefix string, err error) {
	m.status = prefix + ": " + err.Error()
	m.statusErr = true
}

func (m Model) busy() bool {
	return m.fetching || m.ttCancel != nil || m.writes > 0
}
