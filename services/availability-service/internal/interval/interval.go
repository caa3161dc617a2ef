// Package interval implements half-open time ranges [Start, End) and the merge and
// subtract operations that busy-time reconciliation is built on.
package interval

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

var ErrInvalidInterval = errors.New("invalid interval")

type Interval struct {
	Start time.Time
	End   time.Time
}

// New returns [start, end). It fails unless start is strictly before end.
func New(start, end time.Time) (Interval, error) {
	if !start.Before(end) {
		return Interval{}, fmt.Errorf("%w: start %s is not before end %s",
			ErrInvalidInterval, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return Interval{Start: start, End: end}, nil
}

// Empty returns the zero-length interval anchored at at.
func Empty(at time.Time) Interval {
	return Interval{Start: at, End: at}
}

func (i Interval) IsEmpty() bool {
	return !i.Start.Before(i.End)
}

func (i Interval) Duration() time.Duration {
	if i.IsEmpty() {
		return 0
	}
	return i.End.Sub(i.Start)
}

// Contains reports whether o lies entirely inside i.
func (i Interval) Contains(o Interval) bool {
	return !o.Start.Before(i.Start) && !o.End.After(i.End)
}

func (i Interval) Equal(o Interval) bool {
	return i.Start.Equal(o.Start) && i.End.Equal(o.End)
}

func (i Interval) String() string {
	return "[" + i.Start.Format(time.RFC3339) + ", " + i.End.Format(time.RFC3339) + ")"
}

// Overlaps uses half-open semantics: [a.Start,a.End) overlaps [b.Start,b.End) iff
// a.Start < b.End && b.Start < a.End. Touching endpoints do not overlap.
func Overlaps(a, b Interval) bool {
	if a.IsEmpty() || b.IsEmpty() {
		return false
	}
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Intersect returns the common part of a and b, or an empty interval when disjoint.
func Intersect(a, b Interval) Interval {
	start := a.Start
	if b.Start.After(start) {
		start = b.Start
	}
	end := a.End
	if b.End.Before(end) {
		end = b.End
	}
	if !start.Before(end) {
		return Empty(start)
	}
	return Interval{Start: start, End: end}
}

// Merge sorts xs by start and coalesces overlapping or adjacent intervals into maximal
// runs. Empty intervals are dropped. The input slice is not modified.
func Merge(xs []Interval) []Interval {
	sorted := make([]Interval, 0, len(xs))
	for _, x := range xs {
		if !x.IsEmpty() {
			sorted = append(sorted, x)
		}
	}
	if len(sorted) == 0 {
		return nil
	}
	slices.SortFunc(sorted, func(a, b Interval) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return a.End.Compare(b.End)
	})

	out := []Interval{sorted[0]}
	for _, x := range sorted[1:] {
		last := &out[len(out)-1]
		if x.Start.After(last.End) {
			out = append(out, x)
			continue
		}
		if x.End.After(last.End) {
			last.End = x.End
		}
	}
	return out
}

// Subtract removes holes from base and returns the remaining pieces in start order.
// holes need not be sorted; they are merged first.
func Subtract(base Interval, holes []Interval) []Interval {
	if base.IsEmpty() {
		return nil
	}
	var out []Interval
	cursor := base.Start
	for _, h := range Merge(holes) {
		if !h.End.After(cursor) {
			continue
		}
		if !h.Start.Before(base.End) {
			break
		}
		if h.Start.After(cursor) {
			out = append(out, Interval{Start: cursor, End: h.Start})
		}
		cursor = h.End
		if !cursor.Before(base.End) {
			return out
		}
	}
	return append(out, Interval{Start: cursor, End: base.End})
}

// Free reports whether slot does not intersect any of busy.
func Free(slot Interval, busy []Interval) bool {
	rest := Subtract(slot, busy)
	return len(rest) == 1 && rest[0].Equal(slot)
}
