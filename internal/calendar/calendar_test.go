package calendar

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseDateIsNeverShifted(t *testing.T) {
	d, err := ParseDate("2024-02-05")
	require.NoError(t, err)
	assert.Equal(t, 2024, d.Year())
	assert.Equal(t, time.February, d.Month())
	assert.Equal(t, 5, d.Day())
	assert.Equal(t, Monday, d.Weekday())

	// A timestamp that would fall on the previous day in UTC keeps its own date.
	d, err = ParseDate("2024-02-05T00:30:00-05:00")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-05", d.String())

	_, err = ParseDate("05/02/2024")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestDateAtUsesWallClock(t *testing.T) {
	bogota := time.FixedZone("COT", -5*60*60)
	at := MustDate("2024-03-10").At(MustTime("09:30"), bogota)
	assert.Equal(t, 9, at.Hour())
	assert.Equal(t, 30, at.Minute())
	assert.Equal(t, 10, at.Day())
	assert.Equal(t, bogota, at.Location())

	// 24:00 rolls to the next midnight.
	end := MustDate("2024-03-10").At(EndOfDay, bogota)
	assert.Equal(t, 11, end.Day())
	assert.Equal(t, 0, end.Hour())
}

func TestDateArithmetic(t *testing.T) {
	a := MustDate("2024-02-27")
	b := a.AddDays(3)
	assert.Equal(t, "2024-03-01", b.String())
	assert.Equal(t, 3, a.DaysUntil(b))
	assert.Equal(t, -3, b.DaysUntil(a))
	assert.True(t, a.Before(b))
	assert.Equal(t, b, MaxDate(a, b))
	assert.Equal(t, a, MinDate(a, b))
	assert.Equal(t, a, DateOf(time.Date(2024, 2, 27, 23, 59, 0, 0, time.FixedZone("X", 14*3600))))
}

func TestParseTimeOfDay(t *testing.T) {
	cases := map[string]TimeOfDay{
		"00:00":    0,
		"09:05":    Clock(9, 5),
		"17:00:00": Clock(17, 0),
		"24:00":    EndOfDay,
	}
	for in, want := range cases {
		got, err := ParseTimeOfDay(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "9", "25:00", "24:01", "10:60", "10:5", "10:00:30", "ab:cd"} {
		_, err := ParseTimeOfDay(bad)
		assert.ErrorIs(t, err, ErrInvalidTime, bad)
	}
	assert.Equal(t, "07:45", Clock(7, 45).String())
}

func TestWeekdayNames(t *testing.T) {
	for i, w := range AllWeekdays() {
		parsed, err := ParseWeekday(w.String())
		require.NoError(t, err)
		assert.Equal(t, Weekday(i), parsed)
		assert.Equal(t, w, WeekdayOf(w.Std()))
	}

	w, err := ParseWeekday("Miércoles")
	require.NoError(t, err)
	assert.Equal(t, Wednesday, w)

	_, err = ParseWeekday("monday")
	assert.ErrorIs(t, err, ErrUnknownWeekday)
	assert.Equal(t, Sunday, WeekdayOf(time.Sunday))
}

func TestRange(t *testing.T) {
	r, err := NewRange(MustDate("2024-02-05"), MustDate("2024-02-09"))
	require.NoError(t, err)
	assert.Equal(t, 5, r.Days())
	assert.True(t, r.Contains(MustDate("2024-02-09")))
	assert.False(t, r.Contains(MustDate("2024-02-10")))

	clamped, cut := r.Clamp(2)
	assert.True(t, cut)
	assert.Equal(t, "2024-02-05..2024-02-06", clamped.String())

	_, ok := r.Intersect(Range{Start: MustDate("2024-02-10"), End: MustDate("2024-02-12")})
	assert.False(t, ok)

	_, err = NewRange(MustDate("2024-02-09"), MustDate("2024-02-05"))
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestTextEncoding(t *testing.T) {
	type rec struct {
		Date  Date      `json:"date" yaml:"date"`
		Start TimeOfDay `json:"start" yaml:"start"`
	}

	var fromJSON rec
	require.NoError(t, json.Unmarshal([]byte(`{"date":"2024-01-31","start":"08:15"}`), &fromJSON))
	assert.Equal(t, MustDate("2024-01-31"), fromJSON.Date)
	assert.Equal(t, Clock(8, 15), fromJSON.Start)

	var fromYAML rec
	require.NoError(t, yaml.Unmarshal([]byte("date: \"2024-01-31\"\nstart: \"08:15\"\n"), &fromYAML))
	assert.Equal(t, fromJSON, fromYAML)

	out, err := json.Marshal(fromJSON)
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2024-01-31","start":"08:15"}`, string(out))
}
