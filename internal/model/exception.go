package model

import "laborcal/internal/calendar"

// Exception is a one-off record ("novedad"): an absence, a holiday or a
// special event laid over the recurring schedule.
type Exception struct {
	ID          string              `json:"id" yaml:"id"`
	OwnerID     string              `json:"ownerId,omitempty" yaml:"ownerId,omitempty"`
	Title       string              `json:"title" yaml:"title"`
	StartDate   calendar.Date       `json:"startDate" yaml:"startDate"`
	EndDate     *calendar.Date      `json:"endDate,omitempty" yaml:"endDate,omitempty"`
	StartTime   *calendar.TimeOfDay `json:"startTime,omitempty" yaml:"startTime,omitempty"`
	EndTime     *calendar.TimeOfDay `json:"endTime,omitempty" yaml:"endTime,omitempty"`
	AllDay      bool                `json:"allDay" yaml:"allDay"`
	Color       string              `json:"color,omitempty" yaml:"color,omitempty"`
	Description string              `json:"description,omitempty" yaml:"description,omitempty"`
	Status      string              `json:"status,omitempty" yaml:"status,omitempty"`
}

// Global reports whether the exception applies to every worker.
func (e Exception) Global() bool { return e.OwnerID == "" }

// LastDate is EndDate, or StartDate when the exception is a single day.
func (e Exception) LastDate() calendar.Date {
	if e.EndDate == nil || e.EndDate.Before(e.StartDate) {
		return e.StartDate
	}
	return *e.EndDate
}
