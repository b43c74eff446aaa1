package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/djwarf/tindico/pkg/indico"
	"github.com/djwarf/tindico/pkg/nav"
)

const (
	// header, divider, status line and help footer
	fixedLines    = 4
	minTopLines   = 3
	minDetailRows = 1
	maxDetailRows = 10
)

// detailHeight gives the detail panel about a quarter of the free lines,
// always leaving minTopLines for the table.
func detailHeight(total int) int {
	available := total - fixedLines
	maxForBottom := max(available-minTopLines, minDetailRows)
	ideal := available / 4
	return max(minDetailRows, min(ideal, maxDetailRows, maxForBottom))
}

// View implements tea.Model
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	if m.picker != nil {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.picker.view(m.width))
	}

	detailH := detailHeight(m.height)
	tableH := max(1, m.height-fixedLines-detailH)

	sections := []string{
		m.headerView(),
		m.tableView(tableH),
		dividerStyle.Render(strings.Repeat("─", m.width)),
		m.detailView(detailH),
		m.statusView(),
		m.help.View(m.keys),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) headerView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("tindico"))
	b.WriteString(" ")

	crumbs := m.nav.Crumbs()
	if len(crumbs) == 0 {
		b.WriteString(crumbStyle.Render("Favorites"))
	} else {
		cat := crumbs[len(crumbs)-1].Category
		path := cat.Path
		if len(path) == 0 {
			for _, c := range crumbs {
				path = append(path, c.Category.Title)
			}
		}
		b.WriteString(crumbStyle.Render(strings.Join(path, " › ")))
		if w := m.nav.Window(); !w.IsZero() {
			b.WriteString(dimStyle.Render("  " + w.String()))
		}
	}

	if f := m.nav.Filter(); f != "" {
		b.WriteString(dimItalicStyle.Render("  /" + f + "/"))
	}
	return truncateLine(b.String(), m.width)
}

func (m Model) tableView(height int) string {
	lines := make([]string, 0, height)

	if len(m.rows) == 0 {
		msg := "No events"
		if m.fetching {
			msg = "Loading..."
		} else if m.nav.Filter() != "" {
			msg = "Nothing matches /" + m.nav.Filter() + "/"
		}
		lines = append(lines, dimStyle.Render(msg))
		return padLines(lines, height)
	}

	widths := widthsFor(m.width)
	cursor := m.nav.Cursor()
	start := max(0, min(cursor-height/2, len(m.rows)-height))
	end := min(len(m.rows), start+height)

	for i := start; i < end; i++ {
		lines = append(lines, m.renderRow(m.rows[i], widths, i == cursor))
	}
	return padLines(lines, height)
}

func (m Model) renderRow(r row, widths []int, selected bool) string {
	if r.kind == rowSeparator {
		return dimStyle.Render(strings.Repeat("─", max(0, m.width)))
	}

	cols := r.columns()
	cells := make([]string, len(cols))
	for i, c := range cols {
		cells[i] = fit(c, widths[i])
	}
	line := strings.Join(cells, " ")

	switch {
	case selected:
		return selectedStyle.Render(line)
	case r.kind == rowCategory:
		return categoryRowStyle.Render(line)
	}
	return line
}

func (m Model) detailView(height int) string {
	ev, ok := m.currentEvent()
	if !ok {
		return padLines([]string{dimStyle.Render("No event selected")}, height)
	}

	focused := m.nav.View() == nav.EventDetail
	contribs, loaded := m.timetables[ev.ID]

	var lines []string
	var cursorLine int
	switch {
	case m.ttErrs[ev.ID] != nil:
		lines = append(lines, errorStyle.Render("Timetable error: "+m.ttErrs[ev.ID].Error()))
	case !loaded:
		lines = append(lines, m.spinner.View()+dimStyle.Render(" Loading timetable..."))
	case len(contribs) == 0:
		lines = append(lines, m.eventSummary(ev)...)
		lines = append(lines, dimStyle.Render("No contributions"))
	default:
		lines, cursorLine = contributionLines(contribs, focused, m.detailCursor, m.width)
	}

	start := 0
	if focused && cursorLine >= height {
		start = cursorLine - height + 1
	}
	if start > 0 {
		lines = lines[start:]
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	return padLines(lines, height)
}

func (m Model) eventSummary(ev indico.Event) []string {
	var lines []string
	when := ev.Start.Format("Mon Jan 2 15:04")
	if !ev.End.IsZero() {
		when += " - " + ev.End.Format("15:04")
	}
	lines = append(lines, eventStyle.Render(truncateLine(ev.Title, m.width)))
	if loc := ev.FullLocation(); loc != "" {
		when += " · " + loc
	}
	lines = append(lines, dimStyle.Render(truncateLine(when, m.width)))
	return lines
}

// contributionLines renders the timetable with a label line wherever the day
// changes. It returns the line index of the selected contribution.
func contributionLines(contribs []indico.Contribution, focused bool, selected, width int) ([]string, int) {
	lines := make([]string, 0, len(contribs)+4)
	cursorLine := 0
	prev := ""
	for i, c := range contribs {
		day := c.Start.Format("2006-01-02")
		if prev != "" && day != prev {
			lines = append(lines, dimStyle.Render("── "+c.Start.Format("Monday Jan 2")+" ──"))
		}
		prev = day

		var b strings.Builder
		b.WriteString(lipgloss.NewStyle().Bold(true).Render(c.Start.Format("15:04")))
		b.WriteString("  ")
		b.WriteString(eventStyle.Render(c.Title))
		if len(c.Speakers) > 0 {
			b.WriteString(dimItalicStyle.Render(" [" + strings.Join(c.Speakers, ", ") + "]"))
		}
		if len(c.Materials) > 0 {
			b.WriteString(lipgloss.NewStyle().Bold(true).Render(" ●"))
		}
		line := truncateLine(b.String(), width)
		if focused && i == selected {
			cursorLine = len(lines)
			line = selectedStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return lines, cursorLine
}

func (m Model) statusView() string {
	if m.filtering {
		return m.filter.View()
	}

	var prefix string
	if m.busy() {
		prefix = m.spinner.View() + " "
	}
	style := statusStyle
	if m.statusErr {
		style = errorStyle
	}
	line := style.Render(m.status)
	if m.writes > 0 {
		line += dimStyle.Render(fmt.Sprintf("  (%d writing)", m.writes))
	}
	return truncateLine(prefix+line, m.width)
}

func padLines(lines []string, height int) string {
	for len(lines) < height {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// truncateLine cuts a possibly styled line to width cells
func truncateLine(s string, width int) string {
	if width <= 0 || lipgloss.Width(s) <= width {
		return s
	}
	return lipgloss.NewStyle().MaxWidth(width).Render(s)
}
