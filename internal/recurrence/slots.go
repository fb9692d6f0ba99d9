package recurrence

import (
	"fmt"

	"laborcal/internal/calendar"
	"laborcal/internal/model"
)

// WarningKind classifies data-quality warnings.
type WarningKind string

const (
	// WarningMalformedSlot: a slot whose start is not before its end. The
	// slot is skipped.
	WarningMalformedSlot WarningKind = "malformed_slot"
	// WarningOverlappingSlots: two slots of the same weekday overlap. Both
	// are still expanded.
	WarningOverlappingSlots WarningKind = "overlapping_slots"
	// WarningInvalidSchedule: the schedule as a whole cannot be expanded.
	WarningInvalidSchedule WarningKind = "invalid_schedule"
	// WarningWindowClamped: the requested window exceeded the cap.
	WarningWindowClamped WarningKind = "window_clamped"
)

// Warning is a data-quality problem surfaced to the caller instead of
// being returned as an error.
type Warning struct {
	Kind       WarningKind      `json:"kind"`
	ScheduleID string           `json:"schedule_id,omitempty"`
	Weekday    calendar.Weekday `json:"-"`
	// SlotIndex is set only for warnings about a specific slot.
	SlotIndex  *int             `json:"slot_index,omitempty"`
	Message    string           `json:"message"`
}

func (w Warning) String() string {
	if w.ScheduleID == "" {
		return string(w.Kind) + ": " + w.Message
	}
	return fmt.Sprintf("%s: schedule %s: %s", w.Kind, w.ScheduleID, w.Message)
}

func slotRef(i int) *int { return &i }

// IndexedSlot is a slot together with its position in the weekday's list.
// The position feeds the instance key, so skipping a malformed slot does
// not renumber its neighbours.
type IndexedSlot struct {
	Index int
	model.Slot
}

// Inspect reports the pattern problems of s: malformed slots and
// overlapping pairs of valid slots on the same weekday.
func Inspect(s model.RecurringSchedule) []Warning {
	var out []Warning
	for _, day := range calendar.AllWeekdays() {
		slots := s.Pattern.Slots(day)
		for i, slot := range slots {
			if !slot.Valid() {
				out = append(out, Warning{
					Kind:       WarningMalformedSlot,
					ScheduleID: s.ID,
					Weekday:    day,
					SlotIndex:  slotRef(i),
					Message:    fmt.Sprintf("%s slot %d (%s) has start >= end; skipped", day, i, slot),
				})
				continue
			}
			for j := i + 1; j < len(slots); j++ {
				other := slots[j]
				if other.Valid() && slot.Start < other.End && other.Start < slot.End {
					out = append(out, Warning{
						Kind:       WarningOverlappingSlots,
						ScheduleID: s.ID,
						Weekday:    day,
						SlotIndex:  slotRef(j),
						Message:    fmt.Sprintf("%s slots %d (%s) and %d (%s) overlap", day, i, slot, j, other),
					})
				}
			}
		}
	}
	return out
}

// usableDays lists the weekdays with at least one valid slot.
func usableDays(s model.RecurringSchedule) []calendar.Weekday {
	var days []calendar.Weekday
	for _, day := range calendar.AllWeekdays() {
		for _, slot := range s.Pattern.Slots(day) {
			if slot.Valid() {
				days = append(days, day)
				break
			}
		}
	}
	return days
}

// SlotsOn returns the valid slots s offers on date, in pattern order. It is
// empty when date is outside the schedule's range or its weekday has no
// usable slot. This is the lookup the expander applies per date, exposed
// for callers that need one day without expanding a window.
func SlotsOn(s model.RecurringSchedule, date calendar.Date) []IndexedSlot {
	if !s.Covers(date) {
		return nil
	}
	var out []IndexedSlot
	for i, slot := range s.Pattern.Slots(date.Weekday()) {
		if slot.Valid() {
			out = append(out, IndexedSlot{Index: i, Slot: slot})
		}
	}
	return out
}

// Plain strips the indexes.
func Plain(slots []IndexedSlot) []model.Slot {
	if len(slots) == 0 {
		return nil
	}
	out := make([]model.Slot, len(slots))
	for i, s := range slots {
		out[i] = s.Slot
	}
	return out
}
