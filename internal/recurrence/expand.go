package recurrence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"
	"golang.org/x/sync/errgroup"

	"laborcal/internal/calendar"
	appLog "laborcal/internal/log"
	"laborcal/internal/model"
)

const (
	// DefaultMaxDays caps a single expansion window. Open-ended schedules
	// would otherwise iterate without bound.
	DefaultMaxDays = 400
)

// ErrInvalidWindow indicates the window end is before its start.
var ErrInvalidWindow = errors.New("recurrence: window end is before window start")

// instanceNamespace seeds the name-based instance keys. Changing it changes
// every key handed to renderers.
var instanceNamespace = uuid.MustParse("6f1c2a4e-8d3b-5a7e-9c41-2b7d0e5f3a18")

var ruleWeekdays = [calendar.DaysPerWeek]rrule.Weekday{
	rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU,
}

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// Location is the wall clock on which instance start/end are placed.
	// If nil, time.Local is used.
	Location *time.Location

	// Owners, when non-empty, restricts expansion to schedules owned by at
	// least one of these workers.
	Owners []string

	// MaxDays is the defensive window cap. Callers must still bound the
	// window themselves. If zero, DefaultMaxDays is used.
	MaxDays int
}

// ExpandResult wraps the list of instances and the data-quality warnings
// found while producing them.
type ExpandResult struct {
	Instances []model.ScheduleInstance
	Warnings  []Warning
	// Truncated is set when the window was clamped to MaxDays.
	Truncated bool
}

func (c ExpandConfig) normalized() ExpandConfig {
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.MaxDays <= 0 {
		c.MaxDays = DefaultMaxDays
	}
	return c
}

// InstanceKey derives the stable identity of the occurrence of slot
// slotIndex of scheduleID on date.
func InstanceKey(scheduleID string, date calendar.Date, slotIndex int) string {
	name := scheduleID + "|" + date.String() + "|" + strconv.Itoa(slotIndex)
	return uuid.NewSHA1(instanceNamespace, []byte(name)).String()
}

// Expand turns schedules into dated instances inside window (inclusive).
//
// Output order is schedule order, then date, then slot position, so two
// calls with the same input produce the same slice. A malformed slot is
// skipped and reported in the result; it never aborts the expansion.
func Expand(schedules []model.RecurringSchedule, window calendar.Range, cfg ExpandConfig) (ExpandResult, error) {
	cfg = cfg.normalized()
	window, result, err := prepareWindow(window, cfg)
	if err != nil {
		return result, err
	}

	for _, s := range schedules {
		if !s.OwnedByAny(cfg.Owners) {
			continue
		}
		instances, warnings := expandSchedule(s, window, cfg.Location)
		result.Instances = append(result.Instances, instances...)
		result.Warnings = append(result.Warnings, warnings...)
	}

	logResult(result, window, len(schedules))
	return result, nil
}

// ExpandParallel is Expand with one task per schedule, at most workers at
// a time. Results are stored by schedule position, which reproduces the
// sequential order exactly.
func ExpandParallel(ctx context.Context, schedules []model.RecurringSchedule, window calendar.Range, cfg ExpandConfig, workers int) (ExpandResult, error) {
	cfg = cfg.normalized()
	window, result, err := prepareWindow(window, cfg)
	if err != nil {
		return result, err
	}
	if workers <= 0 {
		workers = 1
	}

	type part struct {
		instances []model.ScheduleInstance
		warnings  []Warning
	}
	parts := make([]part, len(schedules))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range schedules {
		if !schedules[i].OwnedByAny(cfg.Owners) {
			continue
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			instances, warnings := expandSchedule(schedules[i], window, cfg.Location)
			parts[i] = part{instances: instances, warnings: warnings}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ExpandResult{}, fmt.Errorf("expand: %w", err)
	}

	for _, p := range parts {
		result.Instances = append(result.Instances, p.instances...)
		result.Warnings = append(result.Warnings, p.warnings...)
	}

	logResult(result, window, len(schedules))
	return result, nil
}

func prepareWindow(window calendar.Range, cfg ExpandConfig) (calendar.Range, ExpandResult, error) {
	var result ExpandResult
	if window.End.Before(window.Start) {
		return window, result, fmt.Errorf("%w: %s", ErrInvalidWindow, window)
	}
	clamped, cut := window.Clamp(cfg.MaxDays)
	if cut {
		result.Truncated = true
		result.Warnings = append(result.Warnings, Warning{
			Kind:    WarningWindowClamped,
			Message: fmt.Sprintf("window %s exceeds %d days; clamped to %s", window, cfg.MaxDays, clamped),
		})
		appLog.Warn("expand: window clamped", "requested", window.String(), "max_days", cfg.MaxDays)
	}
	return clamped, result, nil
}

func logResult(result ExpandResult, window calendar.Range, schedules int) {
	appLog.Debug("expand completed",
		"window", window.String(),
		"schedules", schedules,
		"instances", len(result.Instances),
		"warnings", len(result.Warnings),
	)
}

// expandSchedule expands one schedule inside an already validated window.
func expandSchedule(s model.RecurringSchedule, window calendar.Range, loc *time.Location) ([]model.ScheduleInstance, []Warning) {
	if err := s.Validate(); err != nil {
		appLog.Warn("expand: skipping invalid schedule", "schedule_id", s.ID, "reason", err.Error())
		return nil, []Warning{{ScheduleID: s.ID, Kind: WarningInvalidSchedule, Message: err.Error()}}
	}

	warnings := Inspect(s)

	effective, ok := activeRange(s, window)
	if !ok {
		return nil, warnings
	}

	var days []rrule.Weekday
	for _, d := range usableDays(s) {
		days = append(days, ruleWeekdays[d])
	}
	if len(days) == 0 {
		return nil, warnings
	}

	dates, err := occurrenceDates(effective, days)
	if err != nil {
		appLog.Error("expand: failed to build weekly rule", err, "schedule_id", s.ID)
		return nil, append(warnings, Warning{ScheduleID: s.ID, Kind: WarningInvalidSchedule, Message: err.Error()})
	}

	instances := make([]model.ScheduleInstance, 0, len(dates)*2)
	for _, date := range dates {
		for _, slot := range SlotsOn(s, date) {
			instances = append(instances, model.ScheduleInstance{
				InstanceKey: InstanceKey(s.ID, date, slot.Index),
				ScheduleID:  s.ID,
				OwnerIDs:    s.OwnerIDs,
				Title:       s.Title,
				Date:        date,
				SlotIndex:   slot.Index,
				Start:       date.At(slot.Start, loc),
				End:         date.At(slot.End, loc),
				Color:       s.Color,
				Label:       slot.Label,
			})
		}
	}
	return instances, warnings
}

// activeRange intersects the schedule's own range with the window.
func activeRange(s model.RecurringSchedule, window calendar.Range) (calendar.Range, bool) {
	end := window.End
	if s.EndDate != nil {
		end = *s.EndDate
	}
	return window.Intersect(calendar.Range{Start: s.StartDate, End: end})
}

// occurrenceDates evaluates FREQ=WEEKLY;BYDAY=days between the range ends.
// Dates are handled as UTC midnights so no zone offset can shift a day.
func occurrenceDates(r calendar.Range, days []rrule.Weekday) ([]calendar.Date, error) {
	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   r.Start.UTCMidnight(),
		Until:     r.End.UTCMidnight(),
		Byweekday: days,
	})
	if err != nil {
		return nil, err
	}

	times := rule.All()
	dates := make([]calendar.Date, 0, len(times))
	for _, t := range times {
		dates = append(dates, calendar.DateOf(t.UTC()))
	}
	return dates, nil
}
