package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"laborcal/internal/projector"
)

// ProductID identifies exported calendars.
const ProductID = "-//laborcal//agenda//ES"

// Export serializes projected events as an iCalendar document. Event times
// are read on loc's wall clock; all-day events are written as DATE values.
func Export(name string, events []projector.Event, loc *time.Location, stamp time.Time) (string, error) {
	if loc == nil {
		loc = time.Local
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(ProductID)
	if name != "" {
		cal.SetXWRCalName(name)
	}
	cal.SetXWRTimezone(loc.String())

	for _, e := range events {
		start, err := e.StartTime(loc)
		if err != nil {
			return "", fmt.Errorf("export %s: start: %w", e.ID, err)
		}
		end, err := e.EndTime(loc)
		if err != nil {
			return "", fmt.Errorf("export %s: end: %w", e.ID, err)
		}

		ev := cal.AddEvent(e.ID + "@laborcal")
		ev.SetDtStampTime(stamp)
		ev.SetSummary(e.Title)
		if e.AllDay {
			ev.SetAllDayStartAt(start)
			ev.SetAllDayEndAt(end)
		} else {
			ev.SetStartAt(start)
			ev.SetEndAt(end)
		}
		if e.BackgroundColor != "" {
			ev.SetProperty(ical.ComponentProperty("COLOR"), e.BackgroundColor)
		}
		if d, ok := e.Meta["description"].(string); ok && d != "" {
			ev.SetDescription(d)
		}
	}

	return cal.Serialize(), nil
}
