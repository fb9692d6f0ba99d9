package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownWeekday is returned for names outside lunes..domingo.
var ErrUnknownWeekday = errors.New("calendar: unknown weekday")

// Weekday enumerates the seven days, Monday first. It indexes WeeklyPattern
// directly, so the numeric values are part of the contract.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

// DaysPerWeek is the number of Weekday values.
const DaysPerWeek = 7

var weekdayNames = [DaysPerWeek]string{
	"lunes", "martes", "miercoles", "jueves", "viernes", "sabado", "domingo",
}

// AllWeekdays lists every day, Monday first.
func AllWeekdays() []Weekday {
	return []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}
}

// WeekdayOf converts a time.Weekday (Sunday == 0) to a Weekday.
func WeekdayOf(d time.Weekday) Weekday {
	return Weekday((int(d) + 6) % 7)
}

// ParseWeekday resolves a lowercase Spanish day name. Accented spellings
// ("miércoles", "sábado") are accepted.
func ParseWeekday(name string) (Weekday, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.NewReplacer("é", "e", "á", "a").Replace(n)
	for i, w := range weekdayNames {
		if w == n {
			return Weekday(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownWeekday, name)
}

func (w Weekday) Valid() bool { return w >= Monday && w <= Sunday }

// Std converts back to time.Weekday.
func (w Weekday) Std() time.Weekday {
	return time.Weekday((int(w) + 1) % 7)
}

func (w Weekday) String() string {
	if !w.Valid() {
		return fmt.Sprintf("Weekday(%d)", int(w))
	}
	return weekdayNames[w]
}
