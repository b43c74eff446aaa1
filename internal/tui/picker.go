package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/djwarf/tindico/pkg/indico"
)

type pickerKind int

const (
	pickMaterial pickerKind = iota
	pickCandidate
)

type pickerItem struct {
	label string
	value string
}

// picker is a modal list. Choosing an item yields its value.
type picker struct {
	kind   pickerKind
	title  string
	items  []pickerItem
	cursor int
	event  indico.Event // the event a candidate pick attaches to
}

func newMaterialPicker(c indico.Contribution) *picker {
	p := &picker{kind: pickMaterial, title: c.Title}
	for _, m := range c.Materials {
		p.items = append(p.items, pickerItem{label: m.Title, value: m.URL})
	}
	return p
}

// pickerResult is returned by update once the picker closes
type pickerResult struct {
	closed bool
	chosen *pickerItem
}

func (p *picker) update(msg tea.KeyMsg, keys keyMap) pickerResult {
	switch {
	case key.Matches(msg, keys.Up):
		if p.cursor > 0 {
			p.cursor--
		}
	case key.Matches(msg, keys.Down):
		if p.cursor < len(p.items)-1 {
			p.cursor++
		}
	case key.Matches(msg, keys.Open):
		if len(p.items) == 0 {
			return pickerResult{closed: true}
		}
		item := p.items[p.cursor]
		return pickerResult{closed: true, chosen: &item}
	case key.Matches(msg, keys.Home), key.Matches(msg, keys.Parent), key.Matches(msg, keys.Back):
		return pickerResult{closed: true}
	}
	return pickerResult{}
}

func (p *picker) view(width int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(p.title))
	b.WriteString("\n")
	inner := max(20, min(70, width-6))
	for i, item := range p.items {
		line := fit(item.label, inner)
		if i == p.cursor {
			line = selectedStyle.Render(line)
		}
		b.WriteString("\n")
		b.WriteString(line)
	}
	b.WriteString("\n\n")
	b.WriteString(dimStyle.Render("enter select · esc cancel"))
	return modalStyle.Render(b.String())
}
