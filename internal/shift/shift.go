// Package shift answers when, if at all, a technician may be booked on a
// given date, based on the same weekly templates the expander uses.
package shift

import (
	"fmt"
	"strings"

	"laborcal/internal/calendar"
	"laborcal/internal/model"
	"laborcal/internal/recurrence"
)

// Status is the outcome of a shift lookup.
type Status string

const (
	StatusScheduled    Status = "scheduled"
	StatusNotScheduled Status = "not_scheduled"
	StatusOutsideRange Status = "outside_range"
)

// Reason codes carried by a rejected Verdict.
type Reason string

const (
	ReasonNotScheduled Reason = "not_scheduled"
	ReasonOutsideRange Reason = "outside_range"
	ReasonOutsideShift Reason = "outside_shift"
)

const (
	MsgNotScheduled = "technician not scheduled this day"
	MsgOutsideRange = "date outside schedule's active range"
	MsgOutsideShift = "appointment must fit inside a single shift slot"
)

// Bounds is a schedule's active range. A nil End means open-ended.
type Bounds struct {
	Start calendar.Date  `json:"start"`
	End   *calendar.Date `json:"end,omitempty"`
}

func (b Bounds) String() string {
	if b.End == nil {
		return b.Start.String() + " onwards"
	}
	return b.Start.String() + " to " + b.End.String()
}

// Lookup describes the technician's shift on one date.
type Lookup struct {
	Status     Status
	ScheduleID string
	// Slots is the ordered slot list for the date when Status is
	// StatusScheduled; disjoint slots (morning/afternoon) stay separate.
	Slots []model.Slot
	// Bounds is set for StatusOutsideRange: the range of the technician's
	// schedule closest to the date.
	Bounds *Bounds
}

// Window finds the shift of technicianID on date.
//
// The first schedule, in input order, that is owned by the technician,
// covers the date and has usable slots on its weekday wins. A covering
// schedule without slots that day means not scheduled. When no schedule
// covers the date the closest one's range is reported.
func Window(technicianID string, date calendar.Date, schedules []model.RecurringSchedule) Lookup {
	covered := false
	nearest := -1
	nearestGap := 0

	for i, s := range schedules {
		if !s.OwnedBy(technicianID) || s.Validate() != nil {
			continue
		}
		if s.Covers(date) {
			if slots := recurrence.SlotsOn(s, date); len(slots) > 0 {
				return Lookup{Status: StatusScheduled, ScheduleID: s.ID, Slots: recurrence.Plain(slots)}
			}
			covered = true
			continue
		}
		if gap := distance(s, date); nearest < 0 || gap < nearestGap {
			nearest, nearestGap = i, gap
		}
	}

	if covered || nearest < 0 {
		return Lookup{Status: StatusNotScheduled}
	}
	s := schedules[nearest]
	return Lookup{
		Status:     StatusOutsideRange,
		ScheduleID: s.ID,
		Bounds:     &Bounds{Start: s.StartDate, End: s.EndDate},
	}
}

// distance is the number of days between date and s's active range.
func distance(s model.RecurringSchedule, date calendar.Date) int {
	if date.Before(s.StartDate) {
		return date.DaysUntil(s.StartDate)
	}
	if s.EndDate != nil && date.After(*s.EndDate) {
		return s.EndDate.DaysUntil(date)
	}
	return 0
}

// Contains returns the single slot that holds [start, end]. Spanning the
// gap between two slots is never contained, even if their union would be.
func Contains(slots []model.Slot, start, end calendar.TimeOfDay) (model.Slot, bool) {
	for _, s := range slots {
		if s.Holds(start, end) {
			return s, true
		}
	}
	return model.Slot{}, false
}

// Verdict is the user-facing result of a containment check.
type Verdict struct {
	OK      bool
	Reason  Reason
	Message string
	Lookup  Lookup
	// Slot is the containing slot when OK.
	Slot *model.Slot
}

// Validate checks that [start, end] on date fits inside one slot of the
// technician's shift.
func Validate(technicianID string, date calendar.Date, start, end calendar.TimeOfDay, schedules []model.RecurringSchedule) Verdict {
	lookup := Window(technicianID, date, schedules)

	switch lookup.Status {
	case StatusNotScheduled:
		return Verdict{Reason: ReasonNotScheduled, Message: MsgNotScheduled, Lookup: lookup}
	case StatusOutsideRange:
		return Verdict{
			Reason:  ReasonOutsideRange,
			Message: fmt.Sprintf("%s (%s)", MsgOutsideRange, lookup.Bounds),
			Lookup:  lookup,
		}
	}

	slot, ok := Contains(lookup.Slots, start, end)
	if !ok {
		return Verdict{
			Reason:  ReasonOutsideShift,
			Message: fmt.Sprintf("%s: %s", MsgOutsideShift, describe(lookup.Slots)),
			Lookup:  lookup,
		}
	}
	return Verdict{OK: true, Lookup: lookup, Slot: &slot}
}

func describe(slots []model.Slot) string {
	parts := make([]string, len(slots))
	for i, s := range slots {
		parts[i] = s.String()
	}
	return strings.Join(parts, ", ")
}
