package slots

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/interval"
	"github.com/md-rashed-zaman/apptavail/services/availability-service/internal/model"
)

func workweek() model.Schedule {
	return model.Schedule{
		Name:         "Consultation",
		Active:       true,
		Weekdays:     []int{1, 2, 3, 4, 5},
		StartTime:    9 * 60,
		EndTime:      17 * 60,
		SlotDuration: 60,
	}
}

func utc(day, h, m int) time.Time {
	return time.Date(2024, 1, day, h, m, 0, 0, time.UTC)
}

func TestGenerate_Workweek(t *testing.T) {
	rng := interval.Interval{Start: utc(1, 0, 0), End: utc(8, 0, 0)}
	got := Collect(Generate(workweek(), rng), 0)
	if len(got) != 40 {
		t.Fatalf("expected 40 slots, got %d", len(got))
	}
	for i, s := range got {
		if wd := s.Start.Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Fatalf("slot %d falls on %s", i, wd)
		}
		if s.End.Sub(s.Start) != time.Hour {
			t.Fatalf("slot %d has length %s", i, s.End.Sub(s.Start))
		}
		if i > 0 && !got[i-1].Start.Before(s.Start) {
			t.Fatalf("slots not chronological at %d", i)
		}
		if s.Booking.ScheduleName != "Consultation" {
			t.Fatalf("slot %d missing booking info", i)
		}
	}
	if !got[0].Start.Equal(utc(1, 9, 0)) || !got[39].End.Equal(utc(5, 17, 0)) {
		t.Fatalf("unexpected bounds %s .. %s", got[0].Start, got[39].End)
	}

	// Restartable: a second pass yields the same grid.
	if again := Collect(Generate(workweek(), rng), 0); len(again) != 40 {
		t.Fatalf("expected 40 slots on second pass, got %d", len(again))
	}
}

func TestGenerate_DropsPartialTrailingSlot(t *testing.T) {
	s := workweek()
	s.EndTime = 11*60 + 30
	s.SlotDuration = 45
	got := Collect(Generate(s, interval.Interval{Start: utc(1, 0, 0), End: utc(2, 0, 0)}), 0)
	// 09:00, 09:45, 10:30; 11:15-12:00 would overrun 11:30.
	if len(got) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(got))
	}
	if !got[2].End.Equal(utc(1, 11, 15)) {
		t.Fatalf("unexpected last slot end %s", got[2].End)
	}
}

func TestGenerate_ClipsToRange(t *testing.T) {
	rng := interval.Interval{Start: utc(2, 12, 30), End: utc(3, 11, 0)}
	got := Collect(Generate(workweek(), rng), 0)
	// Jan 2: 13:00..16:00 (4 slots), Jan 3: 09:00, 10:00 (2 slots).
	if len(got) != 6 {
		t.Fatalf("expected 6 slots, got %d", len(got))
	}
	if !got[0].Start.Equal(utc(2, 13, 0)) || !got[5].Start.Equal(utc(3, 10, 0)) {
		t.Fatalf("unexpected clipping %s .. %s", got[0].Start, got[5].Start)
	}
}

func TestGenerate_ScheduleTimezone(t *testing.T) {
	s := workweek()
	s.Timezone = "America/New_York"
	ny, _ := time.LoadLocation("America/New_York")
	rng := interval.Interval{Start: time.Date(2024, 1, 1, 0, 0, 0, 0, ny), End: time.Date(2024, 1, 2, 0, 0, 0, 0, ny)}
	got := Collect(Generate(s, rng), 1)
	if len(got) != 1 {
		t.Fatalf("expected limit to cap output, got %d", len(got))
	}
	if !got[0].Start.Equal(utc(1, 14, 0)) {
		t.Fatalf("expected 09:00 New York = 14:00 UTC, got %s", got[0].Start.UTC())
	}
}

func TestGenerate_EmptyInputs(t *testing.T) {
	rng := interval.Interval{Start: utc(1, 0, 0), End: utc(8, 0, 0)}
	noDays := workweek()
	noDays.Weekdays = nil
	if got := Collect(Generate(noDays, rng), 0); len(got) != 0 {
		t.Fatalf("expected no slots without weekdays, got %d", len(got))
	}
	if got := Collect(Generate(workweek(), interval.Empty(utc(1, 0, 0))), 0); len(got) != 0 {
		t.Fatalf("expected no slots for empty range, got %d", len(got))
	}
}

func dstSchedule() model.Schedule {
	return model.Schedule{
		Name:         "Night desk",
		Active:       true,
		Weekdays:     []int{7},
		StartTime:    0,
		EndTime:      4 * 60,
		SlotDuration: 60,
		Timezone:     "America/New_York",
	}
}

func checkGrid(t *testing.T, got []model.Slot) {
	t.Helper()
	for i, s := range got {
		if s.End.Sub(s.Start) != time.Hour {
			t.Fatalf("slot %d %s - %s has length %s", i, s.Start, s.End, s.End.Sub(s.Start))
		}
		if i > 0 && s.Start.Before(got[i-1].End) {
			t.Fatalf("slot %d starting %s overlaps the previous one ending %s", i, s.Start, got[i-1].End)
		}
	}
}

func TestGenerate_SpringForwardSkipsMissingHour(t *testing.T) {
	ny, _ := time.LoadLocation("America/New_York")
	rng := interval.Interval{
		Start: time.Date(2024, 3, 10, 0, 0, 0, 0, ny),
		End:   time.Date(2024, 3, 11, 0, 0, 0, 0, ny),
	}
	got := Collect(Generate(dstSchedule(), rng), 0)
	checkGrid(t, got)
	// 02:00 does not exist on 2024-03-10 in New York.
	if len(got) != 3 {
		t.Fatalf("expected 00:00, 01:00 and 03:00 slots, got %d: %v", len(got), got)
	}
	if h := got[2].Start.In(ny).Hour(); h != 3 {
		t.Fatalf("expected last slot at 03:00, got %s", got[2].Start.In(ny))
	}
}

func TestGenerate_FallBackKeepsSlotLength(t *testing.T) {
	ny, _ := time.LoadLocation("America/New_York")
	rng := interval.Interval{
		Start: time.Date(2024, 11, 3, 0, 0, 0, 0, ny),
		End:   time.Date(2024, 11, 4, 0, 0, 0, 0, ny),
	}
	got := Collect(Generate(dstSchedule(), rng), 0)
	checkGrid(t, got)
	if len(got) != 4 {
		t.Fatalf("expected 4 slots, got %d: %v", len(got), got)
	}
	for i, want := range []int{0, 1, 2, 3} {
		if h := got[i].Start.In(ny).Hour(); h != want {
			t.Fatalf("slot %d starts at %s, want %02d:00", i, got[i].Start.In(ny), want)
		}
	}
}
