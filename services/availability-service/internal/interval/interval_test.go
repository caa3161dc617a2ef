package interval

import (
	"errors"
	"testing"
	"time"
)

var day = time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func iv(sh, sm, eh, em int) Interval {
	return Interval{Start: at(sh, sm), End: at(eh, em)}
}

func TestNew(t *testing.T) {
	if _, err := New(at(10, 0), at(9, 0)); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval, got %v", err)
	}
	if _, err := New(at(9, 0), at(9, 0)); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval for zero length, got %v", err)
	}
	i, err := New(at(9, 0), at(10, 0))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if i.Duration() != time.Hour {
		t.Fatalf("expected 1h, got %s", i.Duration())
	}
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		a, b Interval
		want bool
	}{
		{iv(9, 0, 10, 0), iv(9, 30, 11, 0), true},
		{iv(9, 0, 10, 0), iv(10, 0, 11, 0), false}, // touching
		{iv(9, 0, 12, 0), iv(10, 0, 11, 0), true},  // containment
		{iv(9, 0, 10, 0), iv(11, 0, 12, 0), false},
		{iv(9, 0, 10, 0), Empty(at(9, 30)), false},
	}
	for i, tc := range tests {
		if got := Overlaps(tc.a, tc.b); got != tc.want {
			t.Fatalf("case %d: Overlaps(a,b)=%v want %v", i, got, tc.want)
		}
		if Overlaps(tc.a, tc.b) != Overlaps(tc.b, tc.a) {
			t.Fatalf("case %d: Overlaps is not symmetric", i)
		}
	}
}

func TestMerge(t *testing.T) {
	in := []Interval{
		iv(13, 0, 14, 0),
		iv(9, 0, 10, 0),
		iv(9, 30, 11, 0),
		iv(11, 0, 11, 30), // adjacent to previous run
		iv(15, 0, 16, 0),
		iv(15, 15, 15, 45),
	}
	got := Merge(in)
	want := []Interval{iv(9, 0, 11, 30), iv(13, 0, 14, 0), iv(15, 0, 16, 0)}
	assertIntervals(t, got, want)

	// Idempotent, sorted and pairwise non-overlapping.
	again := Merge(got)
	assertIntervals(t, again, got)
	for i := 1; i < len(again); i++ {
		if !again[i-1].End.Before(again[i].Start) {
			t.Fatalf("merged output not strictly separated at %d: %v", i, again)
		}
	}

	if !in[0].Equal(iv(13, 0, 14, 0)) {
		t.Fatal("Merge must not modify its input")
	}
	if Merge(nil) != nil {
		t.Fatal("expected nil for empty input")
	}
}

func TestSubtract(t *testing.T) {
	slot := iv(9, 0, 12, 0)

	// No overlap returns the slot unchanged.
	got := Subtract(slot, []Interval{iv(12, 0, 13, 0), iv(7, 0, 9, 0)})
	assertIntervals(t, got, []Interval{slot})
	if !Free(slot, []Interval{iv(12, 0, 13, 0)}) {
		t.Fatal("expected slot free when busy only touches it")
	}

	got = Subtract(slot, []Interval{iv(10, 0, 10, 30), iv(8, 0, 9, 15), iv(11, 30, 13, 0)})
	assertIntervals(t, got, []Interval{iv(9, 15, 10, 0), iv(10, 30, 11, 30)})

	var total time.Duration
	for _, p := range got {
		total += p.Duration()
	}
	if total >= slot.Duration() {
		t.Fatalf("expected less than %s remaining, got %s", slot.Duration(), total)
	}
	if Free(slot, []Interval{iv(10, 0, 10, 30)}) {
		t.Fatal("partial overlap must not be free")
	}

	if got := Subtract(slot, []Interval{iv(8, 0, 13, 0)}); len(got) != 0 {
		t.Fatalf("expected fully covered slot to vanish, got %v", got)
	}
}

func TestIntersect(t *testing.T) {
	got := Intersect(iv(9, 0, 12, 0), iv(11, 0, 13, 0))
	if !got.Equal(iv(11, 0, 12, 0)) {
		t.Fatalf("unexpected intersection %s", got)
	}
	if !Intersect(iv(9, 0, 10, 0), iv(10, 0, 11, 0)).IsEmpty() {
		t.Fatal("touching intervals must intersect to empty")
	}
	if !iv(9, 0, 12, 0).Contains(iv(9, 0, 12, 0)) || iv(9, 0, 12, 0).Contains(iv(8, 0, 10, 0)) {
		t.Fatal("Contains mismatch")
	}
}

func assertIntervals(t *testing.T, got, want []Interval) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d intervals %v, got %d %v", len(want), want, len(got), got)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("interval %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}
