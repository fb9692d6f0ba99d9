package conflict

import (
	"fmt"
	"time"

	"laborcal/internal/calendar"
	"laborcal/internal/model"
	"laborcal/internal/shift"
)

const (
	// DefaultBufferMinutes is the minimum idle gap between two appointments
	// of the same technician.
	DefaultBufferMinutes = 60
	// DefaultLeadTime is the minimum notice between now and an
	// appointment's start.
	DefaultLeadTime = time.Hour
)

// Reason identifies which rule rejected a candidate.
type Reason string

const (
	ReasonInvalidInterval Reason = "invalid_interval"
	ReasonLeadTime        Reason = "lead_time"
	ReasonNotScheduled    Reason = Reason(shift.ReasonNotScheduled)
	ReasonOutsideRange    Reason = Reason(shift.ReasonOutsideRange)
	ReasonOutsideShift    Reason = Reason(shift.ReasonOutsideShift)
	ReasonBufferConflict  Reason = "buffer_conflict"
)

// Candidate is a proposed appointment.
type Candidate struct {
	TechnicianID string             `json:"technicianId"`
	Date         calendar.Date      `json:"date"`
	Start        calendar.TimeOfDay `json:"startTime"`
	End          calendar.TimeOfDay `json:"endTime"`
}

// Options carries the rule parameters.
type Options struct {
	// BufferMinutes widens every existing appointment on both sides.
	// Zero means plain non-overlap.
	BufferMinutes int
	// LeadTime is the minimum notice; zero means DefaultLeadTime.
	LeadTime time.Duration
	// Now is the reference instant for the lead-time rule.
	Now time.Time
	// ExcludeID skips the appointment being edited.
	ExcludeID string
	// Schedules enables the shift-containment rule. Nil skips it.
	Schedules []model.RecurringSchedule
	// Location places dates and times on the wall clock; nil means
	// time.Local.
	Location *time.Location
}

// Result is the outcome of Check. A rejection is a normal value, not an
// error.
type Result struct {
	OK      bool   `json:"ok"`
	Reason  Reason `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
	// Conflicting is the existing appointment that violated the buffer.
	Conflicting *model.Appointment `json:"conflictingAppointment,omitempty"`
	// Bounds is the schedule range when the date is outside it.
	Bounds *shift.Bounds `json:"bounds,omitempty"`
	// Slots lists the technician's slots that day when the candidate does
	// not fit one of them.
	Slots []model.Slot `json:"slots,omitempty"`
}

func accept() Result { return Result{OK: true} }

func reject(reason Reason, msg string) Result {
	return Result{Reason: reason, Message: msg}
}

// Check applies, in order and failing fast: interval sanity, lead time,
// shift containment and the buffer rule.
func Check(c Candidate, existing []model.Appointment, opts Options) Result {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	lead := opts.LeadTime
	if lead <= 0 {
		lead = DefaultLeadTime
	}

	if !c.Start.Before(c.End) {
		return reject(ReasonInvalidInterval, "end time must be after start time")
	}

	start, end := c.Date.At(c.Start, loc), c.Date.At(c.End, loc)

	if start.Before(opts.Now.Add(lead)) {
		return reject(ReasonLeadTime, fmt.Sprintf("must be scheduled at least %s in advance", humanize(lead)))
	}

	if opts.Schedules != nil {
		v := shift.Validate(c.TechnicianID, c.Date, c.Start, c.End, opts.Schedules)
		if !v.OK {
			r := reject(Reason(v.Reason), v.Message)
			r.Bounds = v.Lookup.Bounds
			r.Slots = v.Lookup.Slots
			return r
		}
	}

	buffer := time.Duration(opts.BufferMinutes) * time.Minute
	for i := range existing {
		a := existing[i]
		if a.TechnicianID != c.TechnicianID || !a.Blocking() {
			continue
		}
		if opts.ExcludeID != "" && a.ID == opts.ExcludeID {
			continue
		}
		exStart, exEnd := a.Interval(loc)
		if start.Before(exEnd.Add(buffer)) && end.After(exStart.Add(-buffer)) {
			r := reject(ReasonBufferConflict, fmt.Sprintf(
				"conflicts with appointment %s (%s %s-%s); keep at least %d minutes between appointments",
				a.ID, a.Date, a.StartTime, a.EndTime, opts.BufferMinutes,
			))
			r.Conflicting = &a
			return r
		}
	}

	return accept()
}

func humanize(d time.Duration) string {
	if d%time.Hour == 0 {
		if d == time.Hour {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	}
	return fmt.Sprintf("%d minutes", int(d/time.Minute))
}
