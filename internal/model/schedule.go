package model

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"laborcal/internal/calendar"
)

// ErrInvalidSchedule is wrapped by RecurringSchedule.Validate failures.
var ErrInvalidSchedule = errors.New("model: invalid schedule")

// ErrDuplicateWeekday is returned when two day keys of a record name the
// same weekday, e.g. "miercoles" and "miércoles".
var ErrDuplicateWeekday = errors.New("model: weekday listed twice")

// Slot is one contiguous [Start, End) interval within a weekday.
type Slot struct {
	Start calendar.TimeOfDay `json:"start" yaml:"start"`
	End   calendar.TimeOfDay `json:"end" yaml:"end"`
	Label string             `json:"label,omitempty" yaml:"label,omitempty"`
}

// Valid reports Start < End.
func (s Slot) Valid() bool { return s.Start < s.End }

// Holds reports whether [start, end] lies entirely inside the slot.
func (s Slot) Holds(start, end calendar.TimeOfDay) bool {
	return s.Start <= start && end <= s.End
}

func (s Slot) String() string { return s.Start.String() + "-" + s.End.String() }

// WeeklyPattern maps each weekday to an ordered list of slots. A nil or
// empty list means no shift that day.
type WeeklyPattern [calendar.DaysPerWeek][]Slot

// Slots returns the slot list for day; invalid days have none.
func (p *WeeklyPattern) Slots(day calendar.Weekday) []Slot {
	if p == nil || !day.Valid() {
		return nil
	}
	return p[day]
}

// Set replaces the slot list for day.
func (p *WeeklyPattern) Set(day calendar.Weekday, slots []Slot) {
	if !day.Valid() {
		return
	}
	p[day] = slots
}

// ActiveDays lists the weekdays with at least one slot, Monday first.
func (p *WeeklyPattern) ActiveDays() []calendar.Weekday {
	var days []calendar.Weekday
	for _, d := range calendar.AllWeekdays() {
		if len(p.Slots(d)) > 0 {
			days = append(days, d)
		}
	}
	return days
}

// RecurringSchedule is a weekly template active between StartDate and
// EndDate (inclusive). A nil EndDate means open-ended.
type RecurringSchedule struct {
	ID        string
	OwnerIDs  []string
	Title     string
	Color     string
	StartDate calendar.Date
	EndDate   *calendar.Date
	Pattern   WeeklyPattern
}

func (s RecurringSchedule) OwnedBy(ownerID string) bool {
	return slices.Contains(s.OwnerIDs, ownerID)
}

// OwnedByAny reports whether any of ids owns s. An empty filter matches.
func (s RecurringSchedule) OwnedByAny(ids []string) bool {
	if len(ids) == 0 {
		return true
	}
	for _, id := range ids {
		if s.OwnedBy(id) {
			return true
		}
	}
	return false
}

// Covers reports whether date lies in the schedule's active range.
func (s RecurringSchedule) Covers(date calendar.Date) bool {
	if date.Before(s.StartDate) {
		return false
	}
	return s.EndDate == nil || !date.After(*s.EndDate)
}

// Bounds returns the active range, with an open end rendered as the zero Date.
func (s RecurringSchedule) Bounds() (calendar.Date, calendar.Date) {
	if s.EndDate == nil {
		return s.StartDate, calendar.Date{}
	}
	return s.StartDate, *s.EndDate
}

// Validate checks the structural invariants that make a schedule
// expandable. Per-slot problems are not errors; the expander reports them.
func (s RecurringSchedule) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidSchedule)
	}
	if s.StartDate.IsZero() {
		return fmt.Errorf("%w %s: missing start date", ErrInvalidSchedule, s.ID)
	}
	if s.EndDate != nil && s.EndDate.Before(s.StartDate) {
		return fmt.Errorf("%w %s: end date %s before start date %s", ErrInvalidSchedule, s.ID, s.EndDate, s.StartDate)
	}
	return nil
}

// ScheduleInstance is one dated occurrence of a slot. It is derived and
// never persisted.
type ScheduleInstance struct {
	InstanceKey string
	ScheduleID  string
	OwnerIDs    []string
	Title       string
	Date        calendar.Date
	SlotIndex   int
	Start       time.Time
	End         time.Time
	Color       string
	Label       string
}

// OwnedByAny mirrors RecurringSchedule.OwnedByAny for instances.
func (i ScheduleInstance) OwnedByAny(ids []string) bool {
	if len(ids) == 0 {
		return true
	}
	for _, id := range ids {
		if slices.Contains(i.OwnerIDs, id) {
			return true
		}
	}
	return false
}
