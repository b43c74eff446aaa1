// Package nav models what the browser is showing: the current view, the
// breadcrumb of entered categories, the listing window and the text filter.
// A State is a value; every transition returns a new State and leaves the
// receiver untouched.
package nav

import (
	"fmt"
	"regexp"
	"time"

	"github.com/djwarf/tindico/pkg/indico"
)

// View is one of the browser's screens
type View int

const (
	Favorites View = iota
	CategoryBrowse
	EventList
	EventDetail
)

func (v View) String() string {
	switch v {
	case Favorites:
		return "favorites"
	case CategoryBrowse:
		return "category"
	case EventList:
		return "events"
	case EventDetail:
		return "detail"
	}
	return fmt.Sprintf("View(%d)", int(v))
}

// Crumb is one entered category together with how it was being viewed
type Crumb struct {
	Category indico.Category
	View     View
	Cursor   int
}

// State is the immutable navigation state
type State struct {
	view   View
	crumbs []Crumb // never mutated in place; transitions copy
	window indico.Window

	favCursor int

	// set while the detail view is open
	event    indico.Event
	listView View

	filter *regexp.Regexp
}

// New returns the initial state showing the favourites
func New() State {
	return State{view: Favorites}
}

// View returns the current view
func (s State) View() View {
	return s.view
}

// Window returns the listing window of the current category
func (s State) Window() indico.Window {
	return s.window
}

// Crumbs returns a copy of the breadcrumb stack, root first
func (s State) Crumbs() []Crumb {
	return append([]Crumb(nil), s.crumbs...)
}

// Depth returns the number of entered categories
func (s State) Depth() int {
	return len(s.crumbs)
}

// Category returns the innermost entered category
func (s State) Category() (indico.Category, bool) {
	if len(s.crumbs) == 0 {
		return indico.Category{}, false
	}
	return s.crumbs[len(s.crumbs)-1].Category, true
}

// Event returns the event shown in the detail view
func (s State) Event() (indico.Event, bool) {
	if s.view != EventDetail {
		return indico.Event{}, false
	}
	return s.event, true
}

// ListView returns the list view underneath the detail view, or the current
// view when no detail is open.
func (s State) ListView() View {
	if s.view == EventDetail {
		return s.listView
	}
	return s.view
}

// Cursor returns the selection index of the current list
func (s State) Cursor() int {
	if len(s.crumbs) == 0 || s.ListView() == Favorites {
		return s.favCursor
	}
	return s.crumbs[len(s.crumbs)-1].Cursor
}

// WithCursor returns a state with the list selection moved to i
func (s State) WithCursor(i int) State {
	if i < 0 {
		i = 0
	}
	if len(s.crumbs) == 0 || s.ListView() == Favorites {
		s.favCursor = i
		return s
	}
	s.crumbs = s.copyCrumbs()
	s.crumbs[len(s.crumbs)-1].Cursor = i
	return s
}

// Enter pushes cat onto the breadcrumb. The view becomes CategoryBrowse
// when the category has subcategories and EventList otherwise, the window is
// recentred on now and the filter is cleared.
func (s State) Enter(cat indico.Category, hasChildren bool, now time.Time) State {
	view := EventList
	if hasChildren {
		view = CategoryBrowse
	}
	s.crumbs = append(s.copyCrumbs(), Crumb{Category: cat, View: view})
	s.view = view
	s.window = indico.WindowAround(now)
	s.event = indico.Event{}
	s.filter = nil
	return s
}

// WithChildren corrects the innermost crumb's view once the category's
// children are known.
func (s State) WithChildren(hasChildren bool) State {
	if len(s.crumbs) == 0 {
		return s
	}
	view := EventList
	if hasChildren {
		view = CategoryBrowse
	}
	s.crumbs = s.copyCrumbs()
	s.crumbs[len(s.crumbs)-1].View = view
	if s.view == EventDetail {
		s.listView = view
	} else {
		s.view = view
	}
	return s
}

// WithCategory replaces the innermost crumb's category, for example once
// its full info has been fetched.
func (s State) WithCategory(cat indico.Category) State {
	if len(s.crumbs) == 0 {
		return s
	}
	s.crumbs = s.copyCrumbs()
	s.crumbs[len(s.crumbs)-1].Category = cat
	return s
}

// SelectEvent opens the detail view for ev
func (s State) SelectEvent(ev indico.Event) State {
	if s.view != EventDetail {
		s.listView = s.view
	}
	s.view = EventDetail
	s.event = ev
	return s
}

// Back closes the detail view or leaves the innermost category. With an
// empty breadcrumb it returns to the favourites; on the favourites it does
// nothing.
func (s State) Back() State {
	if s.view == EventDetail {
		s.view = s.listView
		s.event = indico.Event{}
		return s
	}
	if len(s.crumbs) == 0 {
		s.view = Favorites
		return s
	}

	s.crumbs = s.copyCrumbs()[:len(s.crumbs)-1]
	s.filter = nil
	if len(s.crumbs) == 0 {
		s.view = Favorites
		s.window = indico.Window{}
		return s
	}
	s.view = s.crumbs[len(s.crumbs)-1].View
	return s
}

// Home returns to the favourites, clearing the breadcrumb. The favourites
// cursor is kept.
func (s State) Home() State {
	s.view = Favorites
	s.crumbs = nil
	s.window = indico.Window{}
	s.event = indico.Event{}
	s.filter = nil
	return s
}

// WithFilter sets a case-insensitive regular expression filter. An empty
// pattern clears it. An invalid pattern returns the error and s unchanged.
func (s State) WithFilter(pattern string) (State, error) {
	if pattern == "" {
		s.filter = nil
		return s, nil
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return s, fmt.Errorf("invalid filter %q: %w", pattern, err)
	}
	s.filter = re
	return s, nil
}

// Filter returns the active pattern, or "" when none is set
func (s State) Filter() string {
	if s.filter == nil {
		return ""
	}
	return s.filter.String()[len("(?i)"):]
}

// FilterEvents returns the events whose title or category matches the
// filter. The input is never modified.
func (s State) FilterEvents(events []indico.Event) []indico.Event {
	if s.filter == nil {
		return append([]indico.Event(nil), events...)
	}
	out := make([]indico.Event, 0, len(events))
	for _, ev := range events {
		if s.filter.MatchString(ev.Title) || s.filter.MatchString(ev.Category) {
			out = append(out, ev)
		}
	}
	return out
}

// FilterCategories returns the categories whose title matches the filter.
// The input is never modified.
func (s State) FilterCategories(cats []indico.Category) []indico.Category {
	if s.filter == nil {
		return append([]indico.Category(nil), cats...)
	}
	out := make([]indico.Category, 0, len(cats))
	for _, c := range cats {
		if s.filter.MatchString(c.Title) {
			out = append(out, c)
		}
	}
	return out
}

func (s State) copyCrumbs() []Crumb {
	out := make([]Crumb, len(s.crumbs), len(s.crumbs)+1)
	copy(out, s.crumbs)
	return out
}
