// Package projector maps instances and exceptions onto the generic event
// shape consumed by calendar renderers.
package projector

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"laborcal/internal/model"
	"laborcal/internal/overlay"
)

// isoLocal is an ISO-8601 local date-time without offset: renderers place
// it on their own wall clock, the same way schedule times are authored.
const isoLocal = "2006-01-02T15:04:05"

// ExceptionIDPrefix keeps exception ids disjoint from instance keys.
const ExceptionIDPrefix = "novedad-"

// Palette holds fallback colours for records that carry none.
type Palette struct {
	Schedule  string `yaml:"schedule" json:"schedule"`
	Exception string `yaml:"exception" json:"exception"`
}

// DefaultPalette returns the built-in fallback colours.
func DefaultPalette() Palette {
	return Palette{Schedule: "#3788d8", Exception: "#f59e0b"}
}

// Event is the display contract.
type Event struct {
	ID              string         `json:"id"`
	Title           string         `json:"title"`
	Start           string         `json:"start"`
	End             string         `json:"end"`
	AllDay          bool           `json:"allDay,omitempty"`
	BackgroundColor string         `json:"backgroundColor"`
	BorderColor     string         `json:"borderColor"`
	Meta            map[string]any `json:"meta"`
}

// StartTime parses Start back into loc.
func (e Event) StartTime(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(isoLocal, e.Start, loc)
}

// EndTime parses End back into loc.
func (e Event) EndTime(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(isoLocal, e.End, loc)
}

// FromInstance projects a recurring instance. Its id is the instance key.
func FromInstance(inst model.ScheduleInstance, p Palette) Event {
	title := inst.Title
	if inst.Label != "" {
		if title == "" {
			title = inst.Label
		} else {
			title = title + " (" + inst.Label + ")"
		}
	}
	bg := colorOr(inst.Color, p.Schedule)
	return Event{
		ID:              inst.InstanceKey,
		Title:           title,
		Start:           inst.Start.Format(isoLocal),
		End:             inst.End.Format(isoLocal),
		BackgroundColor: bg,
		BorderColor:     Darken(bg),
		Meta: map[string]any{
			"kind":       "shift",
			"scheduleId": inst.ScheduleID,
			"ownerIds":   inst.OwnerIDs,
			"date":       inst.Date.String(),
			"slotIndex":  inst.SlotIndex,
			"label":      inst.Label,
		},
	}
}

// FromException projects a placed exception.
func FromException(pl overlay.Placed, p Palette) Event {
	e := pl.Exception
	bg := colorOr(e.Color, p.Exception)
	return Event{
		ID:              ExceptionIDPrefix + e.ID,
		Title:           e.Title,
		Start:           pl.Start.Format(isoLocal),
		End:             pl.End.Format(isoLocal),
		AllDay:          pl.AllDay,
		BackgroundColor: bg,
		BorderColor:     Darken(bg),
		Meta: map[string]any{
			"kind":        "novedad",
			"exceptionId": e.ID,
			"ownerId":     e.OwnerID,
			"description": e.Description,
			"status":      e.Status,
		},
	}
}

// Project renders instances first, then exceptions, each in input order.
func Project(instances []model.ScheduleInstance, placed []overlay.Placed, p Palette) []Event {
	out := make([]Event, 0, len(instances)+len(placed))
	for _, inst := range instances {
		out = append(out, FromInstance(inst, p))
	}
	for _, pl := range placed {
		out = append(out, FromException(pl, p))
	}
	return out
}

func colorOr(c, fallback string) string {
	if strings.TrimSpace(c) == "" {
		return fallback
	}
	return c
}

// Darken returns a #rrggbb colour 20% darker. Anything that is not a
// six-digit hex colour is returned unchanged.
func Darken(c string) string {
	if len(c) != 7 || c[0] != '#' {
		return c
	}
	v, err := strconv.ParseUint(c[1:], 16, 32)
	if err != nil {
		return c
	}
	r := ((v >> 16) & 0xff) * 4 / 5
	g := ((v >> 8) & 0xff) * 4 / 5
	b := (v & 0xff) * 4 / 5
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}
