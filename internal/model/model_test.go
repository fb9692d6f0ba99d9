package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"laborcal/internal/calendar"
)

const scheduleJSON = `{
  "id": "h-1",
  "ownerId": "tec-7",
  "title": "Turno oficina",
  "color": "#2563eb",
  "startDate": "2024-01-01",
  "endDate": "2024-03-31",
  "dias": {
    "lunes":  [{"horaInicio": "08:00", "horaFin": "12:00", "subtitulo": "Mañana"},
               {"horaInicio": "13:00", "horaFin": "17:00"}],
    "martes": [],
    "miercoles": [{"horaInicio": "09:00", "horaFin": "17:00"}]
  }
}`

func TestScheduleRecordToSchedule(t *testing.T) {
	var rec ScheduleRecord
	require.NoError(t, json.Unmarshal([]byte(scheduleJSON), &rec))

	s, err := rec.ToSchedule()
	require.NoError(t, err)
	assert.Equal(t, []string{"tec-7"}, s.OwnerIDs)
	assert.Equal(t, calendar.MustDate("2024-01-01"), s.StartDate)
	require.NotNil(t, s.EndDate)
	assert.Equal(t, calendar.MustDate("2024-03-31"), *s.EndDate)

	monday := s.Pattern.Slots(calendar.Monday)
	require.Len(t, monday, 2)
	assert.Equal(t, "Mañana", monday[0].Label)
	assert.Equal(t, calendar.Clock(13, 0), monday[1].Start)
	assert.Empty(t, s.Pattern.Slots(calendar.Tuesday))
	assert.Equal(t, []calendar.Weekday{calendar.Monday, calendar.Wednesday}, s.Pattern.ActiveDays())
}

func TestOwnerRefAcceptsListForm(t *testing.T) {
	var rec ScheduleRecord
	require.NoError(t, json.Unmarshal([]byte(`{"id":"h","ownerId":["a","b","a",""],"startDate":"2024-01-01"}`), &rec))
	assert.Equal(t, OwnerRef{"a", "b"}, rec.Owner)

	var fromYAML ScheduleRecord
	require.NoError(t, yaml.Unmarshal([]byte("id: h\nownerId: tec-1\nstartDate: \"2024-01-01\"\n"), &fromYAML))
	assert.Equal(t, OwnerRef{"tec-1"}, fromYAML.Owner)

	require.NoError(t, yaml.Unmarshal([]byte("id: h\nownerId: [x, y]\nstartDate: \"2024-01-01\"\n"), &fromYAML))
	assert.Equal(t, OwnerRef{"x", "y"}, fromYAML.Owner)
}

func TestScheduleRecordRejectsBadInput(t *testing.T) {
	base := ScheduleRecord{ID: "h", StartDate: "2024-01-01"}

	bad := base
	bad.Dias = map[string][]SlotRecord{"funday": {{HoraInicio: "08:00", HoraFin: "09:00"}}}
	_, err := bad.ToSchedule()
	assert.ErrorIs(t, err, calendar.ErrUnknownWeekday)

	bad = base
	bad.Dias = map[string][]SlotRecord{"lunes": {{HoraInicio: "8am", HoraFin: "09:00"}}}
	_, err = bad.ToSchedule()
	assert.ErrorIs(t, err, calendar.ErrInvalidTime)

	bad = base
	bad.Dias = map[string][]SlotRecord{
		"miercoles": {{HoraInicio: "08:00", HoraFin: "12:00"}},
		"miércoles": {{HoraInicio: "14:00", HoraFin: "18:00"}},
	}
	_, err = bad.ToSchedule()
	assert.ErrorIs(t, err, ErrDuplicateWeekday, "accent variants name the same day")

	bad = base
	bad.Dias = map[string][]SlotRecord{"Lunes": nil, "lunes": {{HoraInicio: "08:00", HoraFin: "09:00"}}}
	_, err = bad.ToSchedule()
	assert.ErrorIs(t, err, ErrDuplicateWeekday)

	bad = base
	bad.EndDate = "2023-12-31"
	_, err = bad.ToSchedule()
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	// An inverted slot is data quality, not a decode error.
	ok := base
	ok.Dias = map[string][]SlotRecord{"lunes": {{HoraInicio: "12:00", HoraFin: "08:00"}}}
	s, err := ok.ToSchedule()
	require.NoError(t, err)
	assert.False(t, s.Pattern.Slots(calendar.Monday)[0].Valid())
}

func TestRecordOfRoundTrip(t *testing.T) {
	var rec ScheduleRecord
	require.NoError(t, json.Unmarshal([]byte(scheduleJSON), &rec))
	s, err := rec.ToSchedule()
	require.NoError(t, err)

	back, err := RecordOf(s).ToSchedule()
	require.NoError(t, err)
	assert.Equal(t, s, back)
}

func TestScheduleCovers(t *testing.T) {
	end := calendar.MustDate("2024-03-31")
	s := RecurringSchedule{ID: "h", StartDate: calendar.MustDate("2024-01-01"), EndDate: &end}
	assert.True(t, s.Covers(calendar.MustDate("2024-01-01")))
	assert.True(t, s.Covers(end))
	assert.False(t, s.Covers(end.AddDays(1)))

	s.EndDate = nil
	assert.True(t, s.Covers(calendar.MustDate("2030-01-01")))
}

func TestAppointmentInterval(t *testing.T) {
	a := Appointment{Date: calendar.MustDate("2024-02-05"), StartTime: calendar.Clock(9, 0), EndTime: calendar.Clock(10, 0)}
	start, end := a.Interval(nil)
	assert.Equal(t, 9, start.Hour())
	assert.Equal(t, 10, end.Hour())
	assert.True(t, a.Blocking())
	a.Status = AppointmentCancelled
	assert.False(t, a.Blocking())
}
