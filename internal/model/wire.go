package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"laborcal/internal/calendar"
)

// OwnerRef holds the owner field of a schedule record. Depending on how the
// schedule was created it is a single worker id or a list of ids; both
// forms decode into the same slice.
type OwnerRef []string

func (o *OwnerRef) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*o = normalizeOwners([]string{one})
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("owner must be an id or a list of ids: %w", err)
	}
	*o = normalizeOwners(many)
	return nil
}

func (o *OwnerRef) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*o = normalizeOwners([]string{node.Value})
		return nil
	case yaml.SequenceNode:
		var many []string
		if err := node.Decode(&many); err != nil {
			return err
		}
		*o = normalizeOwners(many)
		return nil
	default:
		return fmt.Errorf("owner must be an id or a list of ids (line %d)", node.Line)
	}
}

func normalizeOwners(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// SlotRecord is a slot as delivered by the schedules endpoint.
type SlotRecord struct {
	HoraInicio string `json:"horaInicio" yaml:"horaInicio"`
	HoraFin    string `json:"horaFin" yaml:"horaFin"`
	Subtitulo  string `json:"subtitulo,omitempty" yaml:"subtitulo,omitempty"`
}

// ScheduleRecord is a recurring schedule as delivered by the schedules
// endpoint: dias is keyed by lowercase weekday names.
type ScheduleRecord struct {
	ID        string                  `json:"id" yaml:"id"`
	Owner     OwnerRef                `json:"ownerId" yaml:"ownerId"`
	Title     string                  `json:"title" yaml:"title"`
	Color     string                  `json:"color,omitempty" yaml:"color,omitempty"`
	StartDate string                  `json:"startDate" yaml:"startDate"`
	EndDate   string                  `json:"endDate,omitempty" yaml:"endDate,omitempty"`
	Dias      map[string][]SlotRecord `json:"dias" yaml:"dias"`
}

// ToSchedule converts the record into the typed model. Unknown or repeated
// day names and unparseable dates or times are errors; slots whose start is not
// before their end are kept so the expander can report them.
func (r ScheduleRecord) ToSchedule() (RecurringSchedule, error) {
	s := RecurringSchedule{
		ID:       strings.TrimSpace(r.ID),
		OwnerIDs: []string(r.Owner),
		Title:    r.Title,
		Color:    r.Color,
	}

	start, err := calendar.ParseDate(r.StartDate)
	if err != nil {
		return RecurringSchedule{}, fmt.Errorf("schedule %s: start date: %w", r.ID, err)
	}
	s.StartDate = start

	if strings.TrimSpace(r.EndDate) != "" {
		end, err := calendar.ParseDate(r.EndDate)
		if err != nil {
			return RecurringSchedule{}, fmt.Errorf("schedule %s: end date: %w", r.ID, err)
		}
		s.EndDate = &end
	}

	seen := make(map[calendar.Weekday]string, len(r.Dias))
	for name, records := range r.Dias {
		day, err := calendar.ParseWeekday(name)
		if err != nil {
			return RecurringSchedule{}, fmt.Errorf("schedule %s: %w", r.ID, err)
		}
		if prev, ok := seen[day]; ok {
			return RecurringSchedule{}, fmt.Errorf("schedule %s: %w: %q and %q", r.ID, ErrDuplicateWeekday, prev, name)
		}
		seen[day] = name
		slots := make([]Slot, 0, len(records))
		for i, rec := range records {
			from, err := calendar.ParseTimeOfDay(rec.HoraInicio)
			if err != nil {
				return RecurringSchedule{}, fmt.Errorf("schedule %s %s[%d] horaInicio: %w", r.ID, day, i, err)
			}
			to, err := calendar.ParseTimeOfDay(rec.HoraFin)
			if err != nil {
				return RecurringSchedule{}, fmt.Errorf("schedule %s %s[%d] horaFin: %w", r.ID, day, i, err)
			}
			slots = append(slots, Slot{Start: from, End: to, Label: rec.Subtitulo})
		}
		if len(slots) > 0 {
			s.Pattern.Set(day, slots)
		}
	}

	if err := s.Validate(); err != nil {
		return RecurringSchedule{}, err
	}
	return s, nil
}

// RecordOf converts a typed schedule back into its wire form.
func RecordOf(s RecurringSchedule) ScheduleRecord {
	r := ScheduleRecord{
		ID:        s.ID,
		Owner:     OwnerRef(s.OwnerIDs),
		Title:     s.Title,
		Color:     s.Color,
		StartDate: s.StartDate.String(),
		Dias:      make(map[string][]SlotRecord),
	}
	if s.EndDate != nil {
		r.EndDate = s.EndDate.String()
	}
	for _, day := range s.Pattern.ActiveDays() {
		for _, slot := range s.Pattern.Slots(day) {
			r.Dias[day.String()] = append(r.Dias[day.String()], SlotRecord{
				HoraInicio: slot.Start.String(),
				HoraFin:    slot.End.String(),
				Subtitulo:  slot.Label,
			})
		}
	}
	return r
}
