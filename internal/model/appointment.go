package model

import (
	"time"

	"laborcal/internal/calendar"
)

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "Pendiente"
	AppointmentConfirmed AppointmentStatus = "Confirmada"
	AppointmentCancelled AppointmentStatus = "Cancelada"
	AppointmentCompleted AppointmentStatus = "Completada"
)

// Appointment is a booked visit for one technician. The core only reads
// appointments; it never mutates them.
type Appointment struct {
	ID           string             `json:"id" yaml:"id"`
	TechnicianID string             `json:"technicianId" yaml:"technicianId"`
	ClientID     string             `json:"clientId,omitempty" yaml:"clientId,omitempty"`
	ServiceID    string             `json:"serviceId,omitempty" yaml:"serviceId,omitempty"`
	Date         calendar.Date      `json:"date" yaml:"date"`
	StartTime    calendar.TimeOfDay `json:"startTime" yaml:"startTime"`
	EndTime      calendar.TimeOfDay `json:"endTime" yaml:"endTime"`
	AddressID    string             `json:"addressId,omitempty" yaml:"addressId,omitempty"`
	Status       AppointmentStatus  `json:"status,omitempty" yaml:"status,omitempty"`
}

// Interval returns the appointment's start and end on loc's wall clock.
func (a Appointment) Interval(loc *time.Location) (time.Time, time.Time) {
	return a.Date.At(a.StartTime, loc), a.Date.At(a.EndTime, loc)
}

// Blocking reports whether the appointment still occupies the technician.
// Cancelled appointments free their time.
func (a Appointment) Blocking() bool {
	return a.Status != AppointmentCancelled
}
