// Package overlay lays one-off exceptions (novedades) over the expanded
// recurring instances.
package overlay

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"laborcal/internal/calendar"
	appLog "laborcal/internal/log"
	"laborcal/internal/model"
)

// Policy decides what an exception does to the recurring instances it
// collides with.
type Policy string

const (
	// PolicyAnnotate renders exceptions as an extra layer and leaves every
	// recurring instance in place.
	PolicyAnnotate Policy = "annotate"
	// PolicyReplace drops recurring instances of the affected worker that
	// intersect an exception.
	PolicyReplace Policy = "replace"
)

// ParsePolicy accepts "annotate" and "replace"; empty means annotate.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyAnnotate:
		return PolicyAnnotate, nil
	case PolicyReplace:
		return PolicyReplace, nil
	default:
		return "", fmt.Errorf("overlay: unknown policy %q", s)
	}
}

// Placed is an exception resolved to a concrete display interval.
// For all-day exceptions End is exclusive: midnight after the last day.
type Placed struct {
	Exception model.Exception
	Start     time.Time
	End       time.Time
	AllDay    bool
}

// Place resolves the interval of e on loc's wall clock. It reports false
// when the exception has no start date or its interval is empty.
//
// Timed exceptions run from startDate+startTime to (endDate or
// startDate)+endTime; a missing start time means midnight and a missing end
// time means the end of the last day.
func Place(e model.Exception, loc *time.Location) (Placed, bool) {
	if e.StartDate.IsZero() {
		return Placed{}, false
	}
	last := e.LastDate()

	if e.AllDay {
		return Placed{
			Exception: e,
			Start:     e.StartDate.Midnight(loc),
			End:       last.AddDays(1).Midnight(loc),
			AllDay:    true,
		}, true
	}

	from := calendar.TimeOfDay(0)
	if e.StartTime != nil {
		from = *e.StartTime
	}
	to := calendar.EndOfDay
	if e.EndTime != nil {
		to = *e.EndTime
	}

	p := Placed{
		Exception: e,
		Start:     e.StartDate.At(from, loc),
		End:       last.At(to, loc),
	}
	if !p.End.After(p.Start) {
		return Placed{}, false
	}
	return p, true
}

// Overlay places every exception visible to owners. Global exceptions
// (no owner) are always visible; an empty owners filter shows everything.
// Input order is kept.
func Overlay(exceptions []model.Exception, owners []string, loc *time.Location) []Placed {
	out := make([]Placed, 0, len(exceptions))
	for _, e := range exceptions {
		if len(owners) > 0 && !e.Global() && !slices.Contains(owners, e.OwnerID) {
			continue
		}
		p, ok := Place(e, loc)
		if !ok {
			appLog.Warn("overlay: skipping exception with empty interval",
				"exception_id", e.ID,
				"owner_id", e.OwnerID,
				"start_date", e.StartDate.String(),
			)
			continue
		}
		out = append(out, p)
	}
	return out
}

// Merge applies policy to instances. It is the single place where the
// annotate/replace decision is taken; the expansion itself never looks at
// exceptions.
func Merge(instances []model.ScheduleInstance, placed []Placed, policy Policy) []model.ScheduleInstance {
	if policy != PolicyReplace || len(placed) == 0 {
		return instances
	}

	kept := make([]model.ScheduleInstance, 0, len(instances))
	for _, inst := range instances {
		if suppressed(inst, placed) {
			continue
		}
		kept = append(kept, inst)
	}
	appLog.Debug("overlay: replace policy applied",
		"instances", len(instances),
		"suppressed", len(instances)-len(kept),
	)
	return kept
}

func suppressed(inst model.ScheduleInstance, placed []Placed) bool {
	for _, p := range placed {
		if !p.Exception.Global() && !slices.Contains(inst.OwnerIDs, p.Exception.OwnerID) {
			continue
		}
		if inst.Start.Before(p.End) && p.Start.Before(inst.End) {
			return true
		}
	}
	return false
}
