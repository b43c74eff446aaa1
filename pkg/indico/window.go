package indico

import "time"

// WindowDays is the number of days on each side of the pivot date
const WindowDays = 30

const dateLayout = "2006-01-02"

// Window is an inclusive date range used for category listings
type Window struct {
	From time.Time
	To   time.Time
}

// WindowAround returns the symmetric range of WindowDays around pivot,
// truncated to whole days in the pivot's location.
func WindowAround(pivot time.Time) Window {
	day := time.Date(pivot.Year(), pivot.Month(), pivot.Day(), 0, 0, 0, 0, pivot.Location())
	return Window{
		From: day.AddDate(0, 0, -WindowDays),
		To:   day.AddDate(0, 0, WindowDays),
	}
}

// IsZero reports whether the window was never set
func (w Window) IsZero() bool {
	return w.From.IsZero() && w.To.IsZero()
}

// Contains reports whether t falls on a day inside the window
func (w Window) Contains(t time.Time) bool {
	d := t.In(w.From.Location()).Format(dateLayout)
	return d >= w.From.Format(dateLayout) && d <= w.To.Format(dateLayout)
}

func (w Window) String() string {
	return w.From.Format(dateLayout) + " .. " + w.To.Format(dateLayout)
}
