package tui

import (
	"strings"
	"unicode/utf8"

	"github.com/djwarf/tindico/pkg/indico"
)

type rowKind int

const (
	rowEvent rowKind = iota
	rowCategory
	rowSeparator
)

// row is one line of the main table
type row struct {
	kind       rowKind
	event      indico.Event
	category   indico.Category
	firstOfDay bool
}

func (r row) selectable() bool {
	return r.kind != rowSeparator
}

// column widths: day, date, time, title, category
var columnWidths = []int{3, 6, 5, 42, 20}

// widthsFor shrinks or grows the title column to fill width
func widthsFor(width int) []int {
	widths := append([]int(nil), columnWidths...)
	if width <= 0 {
		return widths
	}
	fixed := len(widths) - 1 // gaps
	for i, w := range widths {
		if i != 3 {
			fixed += w
		}
	}
	widths[3] = max(10, width-fixed-2)
	return widths
}

// buildRows lays out subcategories first, then events grouped by day with a
// separator between days.
func buildRows(subcats []indico.Category, events []indico.Event) []row {
	rows := make([]row, 0, len(subcats)+2*len(events))
	for _, c := range subcats {
		rows = append(rows, row{kind: rowCategory, category: c})
	}
	if len(subcats) > 0 && len(events) > 0 {
		rows = append(rows, row{kind: rowSeparator})
	}

	prev := ""
	for _, ev := range events {
		day := ev.Start.Format("2006-01-02")
		first := day != prev
		if first && prev != "" {
			rows = append(rows, row{kind: rowSeparator})
		}
		prev = day
		rows = append(rows, row{kind: rowEvent, event: ev, firstOfDay: first})
	}
	return rows
}

// step returns the next selectable index from i in direction dir, or i when
// there is none.
func step(rows []row, i, dir int) int {
	for j := i + dir; j >= 0 && j < len(rows); j += dir {
		if rows[j].selectable() {
			return j
		}
	}
	return i
}

// clampCursor moves i onto a selectable row, searching forward then
// backward. It returns -1 when no row is selectable.
func clampCursor(rows []row, i int) int {
	if len(rows) == 0 {
		return -1
	}
	i = max(0, min(i, len(rows)-1))
	if rows[i].selectable() {
		return i
	}
	if j := step(rows, i, 1); j != i {
		return j
	}
	if j := step(rows, i, -1); j != i {
		return j
	}
	return -1
}

// indexOfEvent returns the row showing event id, or -1
func indexOfEvent(rows []row, id string) int {
	for i, r := range rows {
		if r.kind == rowEvent && r.event.ID == id {
			return i
		}
	}
	return -1
}

func (r row) columns() []string {
	switch r.kind {
	case rowCategory:
		return []string{"", "", "  →", r.category.Title, "subcategory"}
	case rowSeparator:
		return nil
	}

	ev := r.event
	day, date := "", ""
	if r.firstOfDay {
		day = ev.Start.Format("Mon")
		date = ev.Start.Format("Jan 02")
	}
	return []string{day, date, ev.Start.Format("15:04"), ev.Title, ev.Category}
}

// fit truncates s to n runes, marking the cut with an ellipsis, and pads
// it to width n.
func fit(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) > n {
		runes := []rune(s)
		s = string(runes[:n-1]) + "…"
	}
	return s + strings.Repeat(" ", n-utf8.RuneCountInString(s))
}
