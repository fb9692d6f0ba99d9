package calendar

import (
	"errors"
	"fmt"
)

// ErrInvalidRange indicates End is before Start.
var ErrInvalidRange = errors.New("calendar: range end is before start")

// Range is an inclusive span of calendar dates.
type Range struct {
	Start Date `json:"start" yaml:"start"`
	End   Date `json:"end" yaml:"end"`
}

// NewRange validates start <= end.
func NewRange(start, end Date) (Range, error) {
	if end.Before(start) {
		return Range{}, fmt.Errorf("%w: %s..%s", ErrInvalidRange, start, end)
	}
	return Range{Start: start, End: end}, nil
}

// Days is the number of dates in the range, both ends included.
func (r Range) Days() int {
	if r.End.Before(r.Start) {
		return 0
	}
	return r.Start.DaysUntil(r.End) + 1
}

func (r Range) Contains(d Date) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// Intersect returns the overlap of r and o and whether it is non-empty.
func (r Range) Intersect(o Range) (Range, bool) {
	out := Range{Start: MaxDate(r.Start, o.Start), End: MinDate(r.End, o.End)}
	if out.Start.After(out.End) {
		return Range{}, false
	}
	return out, true
}

// Clamp shortens r to at most maxDays dates. It reports whether it did.
func (r Range) Clamp(maxDays int) (Range, bool) {
	if maxDays <= 0 || r.Days() <= maxDays {
		return r, false
	}
	return Range{Start: r.Start, End: r.Start.AddDays(maxDays - 1)}, true
}

func (r Range) String() string {
	return r.Start.String() + ".." + r.End.String()
}
