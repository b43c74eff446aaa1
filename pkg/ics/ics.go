// Package ics renders Indico events as iCalendar files. The UID of every
// VEVENT is the sync key, so importing a file into any calendar application
// updates the entry created by a direct sync instead of duplicating it.
package ics

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/djwarf/tindico/pkg/indico"
	"github.com/djwarf/tindico/pkg/reconcile"
)

// ProductID identifies tindico as the generator of exported calendars
const ProductID = "-//tindico//EN"

// Build converts ev to a calendar holding a single VEVENT
func Build(ev indico.Event) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, ProductID)

	vevent := ical.NewComponent(ical.CompEvent)
	vevent.Props.SetText(ical.PropUID, reconcile.Derive(ev.ID).String())
	vevent.Props.SetText(ical.PropSummary, ev.Title)
	vevent.Props.SetDateTime(ical.PropDateTimeStart, zoned(ev.Start))
	vevent.Props.SetDateTime(ical.PropDateTimeEnd, zoned(ev.End))
	vevent.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())

	if ev.URL != "" {
		if u, err := url.Parse(ev.URL); err == nil {
			vevent.Props.SetURI(ical.PropURL, u)
		}
	}
	if loc := ev.FullLocation(); loc != "" {
		vevent.Props.SetText(ical.PropLocation, loc)
	}
	if desc := Description(ev); desc != "" {
		vevent.Props.SetText(ical.PropDescription, desc)
	}
	if ev.Category != "" {
		vevent.Props.SetText(ical.PropCategories, ev.Category)
	}

	cal.Children = append(cal.Children, vevent)
	return cal
}

// Description is the event URL followed by the plain-text description and
// the material links.
func Description(ev indico.Event) string {
	var parts []string
	if ev.URL != "" {
		parts = append(parts, ev.URL)
	}
	if plain := ev.PlainDescription(); plain != "" {
		parts = append(parts, plain)
	}
	if len(ev.Materials) > 0 {
		lines := make([]string, 0, len(ev.Materials))
		for _, m := range ev.Materials {
			lines = append(lines, m.Title+": "+m.URL)
		}
		parts = append(parts, strings.Join(lines, "\n"))
	}
	return strings.Join(parts, "\n\n")
}

// zoned keeps named zones as TZID and falls back to UTC for the local zone,
// which has no portable name.
func zoned(t time.Time) time.Time {
	if t.Location() == time.Local || t.Location().String() == "" {
		return t.UTC()
	}
	return t
}

// Encode writes the iCalendar form of ev to w
func Encode(w io.Writer, ev indico.Event) error {
	if err := ical.NewEncoder(w).Encode(Build(ev)); err != nil {
		return fmt.Errorf("failed to encode event %s: %w", ev.ID, err)
	}
	return nil
}

// FileName returns the stable file name used for ev
func FileName(ev indico.Event) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, ev.ID)
	return "indico-" + safe + ".ics"
}

// WriteFile writes ev to dir, replacing any earlier export of the same event,
// and returns the file path.
func WriteFile(dir string, ev indico.Event) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".indico-*.ics")
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to create export file: %w", err)
	}
	if err := Encode(tmp, ev); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}

	path := filepath.Join(dir, FileName(ev))
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}
	return path, nil
}
