// Package agenda composes the core pieces into the read path used by the
// transports: expand, overlay, merge, project; plus the booking checks.
package agenda

import (
	"context"
	"errors"
	"fmt"
	"time"

	"laborcal/internal/calendar"
	"laborcal/internal/config"
	"laborcal/internal/conflict"
	appLog "laborcal/internal/log"
	"laborcal/internal/model"
	"laborcal/internal/overlay"
	"laborcal/internal/projector"
	"laborcal/internal/recurrence"
	"laborcal/internal/shift"
)

// ErrWindowTooLarge is returned when a caller asks for more days than the
// planner allows.
var ErrWindowTooLarge = errors.New("agenda: window too large")

// Planner holds the settings shared by every request.
type Planner struct {
	Location      *time.Location
	Policy        overlay.Policy
	MaxWindowDays int
	BufferMinutes int
	LeadTime      time.Duration
	Palette       projector.Palette
	Workers       int
}

// New builds a Planner from cfg.
func New(cfg *config.Config) (*Planner, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	policy, err := overlay.ParsePolicy(cfg.OverlayPolicy)
	if err != nil {
		return nil, err
	}
	return &Planner{
		Location:      loc,
		Policy:        policy,
		MaxWindowDays: cfg.MaxWindowDays,
		BufferMinutes: cfg.BufferMinutes,
		LeadTime:      cfg.LeadTime(),
		Palette: projector.Palette{
			Schedule:  cfg.Colors.Schedule,
			Exception: cfg.Colors.Exception,
		},
		Workers: cfg.Workers,
	}, nil
}

// View is one rendered calendar window.
type View struct {
	Window     calendar.Range           `json:"window"`
	Events     []projector.Event        `json:"events"`
	Instances  []model.ScheduleInstance `json:"-"`
	Exceptions []overlay.Placed         `json:"-"`
	Warnings   []recurrence.Warning     `json:"warnings,omitempty"`
	Truncated  bool                     `json:"truncated,omitempty"`
}

func (p *Planner) location() *time.Location {
	if p.Location == nil {
		return time.Local
	}
	return p.Location
}

func (p *Planner) maxDays() int {
	if p.MaxWindowDays <= 0 {
		return recurrence.DefaultMaxDays
	}
	return p.MaxWindowDays
}

// CheckWindow rejects inverted windows and windows longer than the cap.
func (p *Planner) CheckWindow(window calendar.Range) error {
	if window.End.Before(window.Start) {
		return fmt.Errorf("%w: %s", recurrence.ErrInvalidWindow, window)
	}
	if n := window.Days(); n > p.maxDays() {
		return fmt.Errorf("%w: %d days requested, at most %d", ErrWindowTooLarge, n, p.maxDays())
	}
	return nil
}

// Calendar renders window for owners (all workers when empty).
func (p *Planner) Calendar(ctx context.Context, snap model.Snapshot, window calendar.Range, owners []string) (View, error) {
	if err := p.CheckWindow(window); err != nil {
		return View{}, err
	}

	cfg := recurrence.ExpandConfig{
		Location: p.location(),
		Owners:   owners,
		MaxDays:  p.maxDays(),
	}

	var (
		res recurrence.ExpandResult
		err error
	)
	if p.Workers > 1 {
		res, err = recurrence.ExpandParallel(ctx, snap.Schedules, window, cfg, p.Workers)
	} else {
		res, err = recurrence.Expand(snap.Schedules, window, cfg)
	}
	if err != nil {
		return View{}, err
	}

	placed := inWindow(overlay.Overlay(snap.Exceptions, owners, p.location()), window, p.location())
	instances := overlay.Merge(res.Instances, placed, p.Policy)

	appLog.Debug("agenda: calendar rendered",
		"window", window.String(),
		"owners", len(owners),
		"instances", len(instances),
		"exceptions", len(placed),
		"warnings", len(res.Warnings),
	)

	return View{
		Window:     window,
		Events:     projector.Project(instances, placed, p.Palette),
		Instances:  instances,
		Exceptions: placed,
		Warnings:   res.Warnings,
		Truncated:  res.Truncated,
	}, nil
}

// inWindow keeps exceptions whose interval touches the window's days.
func inWindow(placed []overlay.Placed, window calendar.Range, loc *time.Location) []overlay.Placed {
	from := window.Start.Midnight(loc)
	to := window.End.AddDays(1).Midnight(loc)
	out := placed[:0]
	for _, pl := range placed {
		if pl.Start.Before(to) && pl.End.After(from) {
			out = append(out, pl)
		}
	}
	return out
}

// Check validates a booking candidate against the snapshot. A technician
// without any schedule cannot be booked.
func (p *Planner) Check(snap model.Snapshot, c conflict.Candidate, now time.Time, excludeID string) conflict.Result {
	schedules := snap.Schedules
	if schedules == nil {
		schedules = []model.RecurringSchedule{}
	}
	return conflict.Check(c, snap.Appointments, conflict.Options{
		BufferMinutes: p.BufferMinutes,
		LeadTime:      p.LeadTime,
		Now:           now,
		ExcludeID:     excludeID,
		Schedules:     schedules,
		Location:      p.location(),
	})
}

// Shift looks up the technician's working window on date.
func (p *Planner) Shift(snap model.Snapshot, technicianID string, date calendar.Date) shift.Lookup {
	return shift.Window(technicianID, date, snap.Schedules)
}
