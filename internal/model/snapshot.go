package model

// Snapshot is the read-only view of everything the planner needs: the
// weekly templates, the one-off exceptions and the booked appointments.
type Snapshot struct {
	Schedules    []RecurringSchedule
	Exceptions   []Exception
	Appointments []Appointment
}

// Clone copies the slices so callers may append without racing the owner.
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Schedules:    append([]RecurringSchedule(nil), s.Schedules...),
		Exceptions:   append([]Exception(nil), s.Exceptions...),
		Appointments: append([]Appointment(nil), s.Appointments...),
	}
}

// WithExceptions returns a copy of s with extra appended to its exceptions.
func (s Snapshot) WithExceptions(extra []Exception) Snapshot {
	out := s.Clone()
	out.Exceptions = append(out.Exceptions, extra...)
	return out
}
