package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/djwarf/tindico/internal/logging"
	"github.com/djwarf/tindico/pkg/calendar"
	"github.com/djwarf/tindico/pkg/reconcile"
)

// waybarOutput is the JSON structure for waybar custom modules
type waybarOutput struct {
	Text    string `json:"text"`
	Tooltip string `json:"tooltip"`
	Class   string `json:"class"`
}

type rangeLister interface {
	EventsInRange(ctx context.Context, start, end time.Time) ([]*calendar.Event, error)
}

func newWaybarCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "waybar",
		Short: "Print today's calendar entries as waybar JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			now := time.Now()

			cfg, err := loadConfig(false)
			if err != nil {
				return enc.Encode(unavailable(now))
			}
			logger := newLogger(cfg)
			ctx := logging.WithField(logging.WithLogger(cmd.Context(), logger), "cmd", "waybar")

			be, err := openBackend(ctx, cfg)
			if err != nil {
				logger.Warn().Err(err).Msg("waybar: calendar unavailable")
				return enc.Encode(unavailable(now))
			}
			defer be.Close()

			return enc.Encode(waybarSummary(ctx, be, now))
		},
	}
}

func unavailable(now time.Time) waybarOutput {
	return waybarOutput{
		Text:    now.Format("02/01"),
		Tooltip: "Calendar unavailable",
		Class:   "error",
	}
}

// waybarSummary lists today's entries. Entries synced from Indico are
// marked and switch the class to has-indico-events.
func waybarSummary(ctx context.Context, cal rangeLister, now time.Time) waybarOutput {
	today, tomorrow := calendar.DayBounds(now)
	found, err := cal.EventsInRange(ctx, today, tomorrow)
	if err != nil {
		return unavailable(now)
	}
	var events []*calendar.Event
	for _, e := range found {
		if e.IsOnDate(now) {
			events = append(events, e)
		}
	}

	var tooltip strings.Builder
	tooltip.WriteString(now.Format("Monday, 2 January 2006"))

	synced := 0
	if len(events) > 0 {
		tooltip.WriteString("\n")
		for _, event := range events {
			eventTime := event.Start.In(now.Location()).Format("15:04")
			if event.AllDay {
				eventTime = "All day"
			}
			marker := "•"
			if _, ok := reconcile.RemoteID(reconcile.SyncKey(event.UID)); ok {
				marker = "◆"
				synced++
			}
			fmt.Fprintf(&tooltip, "\n%s %s - %s", marker, eventTime, event.Title)
		}
	} else {
		tooltip.WriteString("\n\nNo events today")
	}

	class := "no-events"
	switch {
	case synced > 0:
		class = "has-indico-events"
	case len(events) > 0:
		class = "has-events"
	}

	text := now.Format("02/01")
	if len(events) > 0 {
		text = fmt.Sprintf("%s (%d)", text, len(events))
	}

	return waybarOutput{
		Text:    text,
		Tooltip: tooltip.String(),
		Class:   class,
	}
}
