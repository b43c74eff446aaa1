package nav

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/djwarf/tindico/pkg/indico"
)

var (
	now     = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	physics = indico.Category{ID: "5", Title: "Physics"}
	seminar = indico.Category{ID: "72", Title: "Seminars", ParentID: "5"}
)

func TestNew(t *testing.T) {
	s := New()
	assert.Equal(t, Favorites, s.View())
	assert.Zero(t, s.Depth())
	assert.True(t, s.Window().IsZero())
	_, ok := s.Category()
	assert.False(t, ok)
}

func TestEnter(t *testing.T) {
	s := New().Enter(physics, true, now)
	assert.Equal(t, CategoryBrowse, s.View())
	assert.Equal(t, 1, s.Depth())
	assert.Equal(t, indico.WindowAround(now), s.Window())

	s = s.Enter(seminar, false, now)
	assert.Equal(t, EventList, s.View())
	cat, ok := s.Category()
	require.True(t, ok)
	assert.Equal(t, "72", cat.ID)

	crumbs := s.Crumbs()
	require.Len(t, crumbs, 2)
	assert.Equal(t, "Physics", crumbs[0].Category.Title)
	assert.Equal(t, CategoryBrowse, crumbs[0].View)
}

func TestTransitionsDoNotMutateReceiver(t *testing.T) {
	base := New().Enter(physics, true, now).WithCursor(3)

	a := base.Enter(seminar, false, now)
	b := base.Enter(indico.Category{ID: "9", Title: "Theory"}, false, now)
	_ = a.WithCursor(7)

	assert.Equal(t, 1, base.Depth())
	assert.Equal(t, 3, base.Cursor())
	catA, _ := a.Category()
	catB, _ := b.Category()
	assert.Equal(t, "72", catA.ID)
	assert.Equal(t, "9", catB.ID)
	assert.Zero(t, a.Cursor())

	popped := a.Back()
	assert.Equal(t, 2, a.Depth())
	assert.Equal(t, 1, popped.Depth())
}

func TestBack(t *testing.T) {
	s := New().WithCursor(2).
		Enter(physics, true, now).WithCursor(4).
		Enter(seminar, false, now).WithCursor(1)

	s = s.Back()
	assert.Equal(t, CategoryBrowse, s.View())
	assert.Equal(t, 4, s.Cursor())

	s = s.Back()
	assert.Equal(t, Favorites, s.View())
	assert.Equal(t, 2, s.Cursor())
	assert.True(t, s.Window().IsZero())

	again := s.Back()
	assert.Equal(t, s, again)
}

func TestSelectEventAndBack(t *testing.T) {
	ev := indico.Event{ID: "1234", Title: "Physics Seminar"}
	list := New().Enter(seminar, false, now).WithCursor(5)

	detail := list.SelectEvent(ev)
	assert.Equal(t, EventDetail, detail.View())
	assert.Equal(t, EventList, detail.ListView())
	got, ok := detail.Event()
	require.True(t, ok)
	assert.Equal(t, "1234", got.ID)

	back := detail.Back()
	assert.Equal(t, EventList, back.View())
	assert.Equal(t, 5, back.Cursor())
	assert.Equal(t, 1, back.Depth())
	_, ok = back.Event()
	assert.False(t, ok)
}

func TestSelectEventFromFavorites(t *testing.T) {
	s := New().WithCursor(3).SelectEvent(indico.Event{ID: "1"})
	assert.Equal(t, Favorites, s.ListView())
	assert.Equal(t, 3, s.Cursor())

	s = s.SelectEvent(indico.Event{ID: "2"})
	assert.Equal(t, Favorites, s.ListView(), "replacing the detail keeps the list view")

	s = s.Back()
	assert.Equal(t, Favorites, s.View())
}

func TestWithChildren(t *testing.T) {
	s := New().Enter(seminar, false, now)
	assert.Equal(t, EventList, s.View())

	s = s.WithChildren(true)
	assert.Equal(t, CategoryBrowse, s.View())
	assert.Equal(t, CategoryBrowse, s.Crumbs()[0].View)

	s = s.SelectEvent(indico.Event{ID: "1"}).WithChildren(false)
	assert.Equal(t, EventDetail, s.View())
	assert.Equal(t, EventList, s.Back().View())

	assert.Equal(t, New(), New().WithChildren(true))
}

func TestWithCategory(t *testing.T) {
	full := seminar
	full.Path = []string{"Physics", "Seminars"}

	s := New().Enter(indico.Category{ID: "72"}, false, now).WithCategory(full)
	cat, _ := s.Category()
	assert.Equal(t, "Seminars", cat.Title)
	assert.Equal(t, full.Path, cat.Path)
}

func TestHome(t *testing.T) {
	s := New().WithCursor(6).Enter(physics, true, now).Enter(seminar, false, now)
	s, err := s.WithFilter("talk")
	require.NoError(t, err)

	s = s.Home()
	assert.Equal(t, Favorites, s.View())
	assert.Zero(t, s.Depth())
	assert.Equal(t, 6, s.Cursor())
	assert.Empty(t, s.Filter())
}

func TestWithFilter(t *testing.T) {
	s, err := New().WithFilter("sem.*")
	require.NoError(t, err)
	assert.Equal(t, "sem.*", s.Filter())

	bad, err := s.WithFilter("([")
	assert.Error(t, err)
	assert.Equal(t, "sem.*", bad.Filter())

	cleared, err := s.WithFilter("")
	require.NoError(t, err)
	assert.Empty(t, cleared.Filter())
}

func TestEnterClearsFilter(t *testing.T) {
	s, err := New().WithFilter("x")
	require.NoError(t, err)
	assert.Empty(t, s.Enter(physics, true, now).Filter())
}

func TestFilterEvents(t *testing.T) {
	events := []indico.Event{
		{ID: "1", Title: "Physics Seminar", Category: "Seminars"},
		{ID: "2", Title: "Coffee", Category: "Social"},
		{ID: "3", Title: "Weekly meeting", Category: "PHYSICS group"},
	}
	original := append([]indico.Event(nil), events...)

	s, err := New().WithFilter("physics")
	require.NoError(t, err)

	got := s.FilterEvents(events)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "3", got[1].ID)
	assert.Equal(t, original, events)

	all := New().FilterEvents(events)
	assert.Equal(t, events, all)
	all[0].Title = "changed"
	assert.Equal(t, "Physics Seminar", events[0].Title)
}

func TestFilterCategories(t *testing.T) {
	cats := []indico.Category{physics, seminar, {ID: "9", Title: "Theory"}}

	s, err := New().WithFilter("^s")
	require.NoError(t, err)

	got := s.FilterCategories(cats)
	require.Len(t, got, 1)
	assert.Equal(t, "72", got[0].ID)
	assert.Len(t, cats, 3)
}

func TestViewString(t *testing.T) {
	assert.Equal(t, "favorites", Favorites.String())
	assert.Equal(t, "detail", EventDetail.String())
	assert.Equal(t, "View(9)", View(9).String())
}
