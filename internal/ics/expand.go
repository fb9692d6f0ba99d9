package ics

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"laborcal/internal/calendar"
	appLog "laborcal/internal/log"
	"laborcal/internal/model"
)

const maxOccurrencesPerEvent = 5000

// ToExceptions turns parsed feed events into exceptions touching horizon.
// Recurring events are expanded with their RRULE/EXDATE set; RECURRENCE-ID
// overrides replace the matching occurrence. Cancelled events and
// zero-length events are dropped. Output is sorted by start date, then id.
func ToExceptions(events []ParsedEvent, horizon calendar.Range, loc *time.Location) []model.Exception {
	if loc == nil {
		loc = time.Local
	}
	from := horizon.Start.Midnight(loc)
	to := horizon.End.AddDays(1).Midnight(loc)

	base := make(map[string][]ParsedEvent)
	overrides := make(map[string][]ParsedEvent)
	var order []string
	for _, ev := range events {
		key := ev.Source.ID + "\x00" + ev.UID
		if ev.IsOverride() {
			overrides[key] = append(overrides[key], ev)
			continue
		}
		if _, seen := base[key]; !seen {
			order = append(order, key)
		}
		base[key] = append(base[key], ev)
	}

	out := make([]model.Exception, 0)
	emit := func(ev ParsedEvent, start, end time.Time, recurring bool) {
		if ev.Cancelled() || !overlaps(start, end, from, to) {
			return
		}
		if e, ok := toException(ev, start, end, recurring, loc); ok {
			out = append(out, e)
		}
	}

	for _, key := range order {
		ov := overrides[key]
		for _, ev := range base[key] {
			if ev.RawRRule == "" {
				emit(ev, ev.Start, ev.End, false)
				continue
			}
			for _, start := range occurrences(ev, from, to) {
				end := start.Add(ev.End.Sub(ev.Start))
				if o, ok := findOverride(ov, start); ok {
					emit(o, o.Start, o.End, true)
					continue
				}
				emit(ev, start, end, true)
			}
		}
		delete(overrides, key)
	}

	// Overrides whose base event is not in the feed stand on their own.
	for _, ov := range overrides {
		for _, o := range ov {
			emit(o, o.Start, o.End, true)
		}
	}

	slices.SortStableFunc(out, func(a, b model.Exception) int {
		if c := a.StartDate.Compare(b.StartDate); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func occurrences(ev ParsedEvent, from, to time.Time) []time.Time {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("ics: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	// Widen by the duration so occurrences already running at from count.
	dur := ev.End.Sub(ev.Start)
	times := set.Between(from.Add(-dur).In(ev.Start.Location()), to.In(ev.Start.Location()), true)
	if len(times) > maxOccurrencesPerEvent {
		appLog.Error("ics: occurrences truncated", errors.New("max occurrences reached"),
			"uid", ev.UID,
			"cap", maxOccurrencesPerEvent,
		)
		times = times[:maxOccurrencesPerEvent]
	}
	return times
}

func findOverride(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, o := range overrides {
		if o.Recurrence != nil && o.Recurrence.Equal(start) {
			return o, true
		}
	}
	return ParsedEvent{}, false
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	if !aEnd.After(aStart) {
		// Zero-length events still count when their instant is inside.
		return !aStart.Before(bStart) && aStart.Before(bEnd)
	}
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

func toException(ev ParsedEvent, start, end time.Time, recurring bool, loc *time.Location) (model.Exception, bool) {
	e := model.Exception{
		ID:          ev.Source.ID + ":" + ev.UID,
		OwnerID:     ev.Source.OwnerID,
		Title:       ev.Summary,
		Description: ev.Description,
		Color:       ev.Source.Color,
		Status:      strings.ToLower(ev.Status),
		AllDay:      ev.AllDay,
	}
	if e.Title == "" {
		e.Title = ev.Source.Name
	}

	if ev.AllDay {
		// Date values carry no zone; read them on their own calendar.
		first := calendar.DateOf(start)
		last := calendar.DateOf(end).AddDays(-1)
		e.StartDate = first
		if last.After(first) {
			e.EndDate = &last
		}
		if recurring {
			e.ID += "@" + first.UTCMidnight().Format("20060102")
		}
		return e, true
	}

	s, f := start.In(loc), end.In(loc)
	if !f.After(s) {
		appLog.Debug("ics: zero-length event skipped", "uid", ev.UID)
		return model.Exception{}, false
	}
	first, last := calendar.DateOf(s), calendar.DateOf(f)
	st, et := calendar.Clock(s.Hour(), s.Minute()), calendar.Clock(f.Hour(), f.Minute())
	if et == 0 && last.After(first) {
		last = last.AddDays(-1)
		et = calendar.EndOfDay
	}
	e.StartDate = first
	e.StartTime = &st
	e.EndTime = &et
	if last.After(first) {
		e.EndDate = &last
	}
	if recurring {
		stamp := start
		if ev.Recurrence != nil {
			stamp = *ev.Recurrence
		}
		e.ID += "@" + stamp.UTC().Format("20060102T150405Z")
	}
	return e, true
}

// Sync fetches, parses and converts every source. Sources that fail are
// reported and skipped.
func Sync(ctx context.Context, f *Fetcher, sources []Source, horizon calendar.Range, loc *time.Location) ([]model.Exception, []error) {
	results, errs := f.FetchAll(ctx, sources)

	var events []ParsedEvent
	for _, res := range results {
		parsed, err := ParseICS(res.Source, res.Body)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		events = append(events, parsed...)
	}

	out := ToExceptions(events, horizon, loc)
	appLog.Info("ics sync completed",
		"sources", len(sources),
		"events", len(events),
		"exceptions", len(out),
		"errors", len(errs),
	)
	return out, errs
}
