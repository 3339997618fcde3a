package availability

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/reservation-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/reservation-service/internal/schedule"
)

var (
	testDate = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // a Monday
	dayAfter = testDate.AddDate(0, 0, 1)
)

func workday(workStart, workEnd model.MinuteOfDay, brk *schedule.Window) schedule.Day {
	return schedule.Day{
		Weekday:   time.Monday,
		Available: true,
		Work:      schedule.Window{Start: workStart, End: workEnd},
		Break:     brk,
	}
}

func svc(durationMinutes int) model.Service {
	return model.Service{
		ID:              "svc-1",
		ProviderID:      "prov-1",
		DurationMinutes: durationMinutes,
		Price:           5000,
		IsActive:        true,
	}
}

func booking(start, end model.MinuteOfDay, status model.BookingStatus) model.Booking {
	return model.Booking{
		ID:          "bk-1",
		ProviderID:  "prov-1",
		Date:        testDate,
		StartMinute: start,
		EndMinute:   end,
		Status:      status,
	}
}

// Working 09:00-18:00 with a 12:00-13:00 break and 60-minute appointments on
// a 30-minute grid: 09:00-11:00 starts are free, 11:30-12:30 collide with the
// break, and 13:00-17:00 starts are free again.
func TestGenerate_BreakSplitsTheDay(t *testing.T) {
	day := workday(9*60, 18*60, &schedule.Window{Start: 12 * 60, End: 13 * 60})
	now := testDate.Add(-24 * time.Hour)

	slots := Generate(day, svc(60), nil, testDate, now, 30)
	if len(slots) != 17 {
		t.Fatalf("expected 17 grid candidates, got %d", len(slots))
	}

	var available []string
	for _, s := range slots {
		if s.Available {
			available = append(available, s.Start.String())
		}
	}
	want := []string{
		"09:00", "09:30", "10:00", "10:30", "11:00",
		"13:00", "13:30", "14:00", "14:30", "15:00", "15:30", "16:00", "16:30", "17:00",
	}
	if len(available) != len(want) {
		t.Fatalf("expected %d available starts, got %d (%v)", len(want), len(available), available)
	}
	for i := range want {
		if available[i] != want[i] {
			t.Fatalf("available[%d] = %s, want %s", i, available[i], want[i])
		}
	}

	for _, s := range slots {
		if !s.Available && s.Reason == model.ReasonNone {
			t.Fatalf("unavailable slot %s has no reason", s.Start)
		}
		if s.Price != 5000 {
			t.Fatalf("slot %s price = %d", s.Start, s.Price)
		}
	}
}

func TestGenerate_SlotTouchingBreakStaysFree(t *testing.T) {
	day := workday(9*60, 18*60, &schedule.Window{Start: 12 * 60, End: 13 * 60})
	now := testDate.Add(-24 * time.Hour)

	slots := Generate(day, svc(60), nil, testDate, now, 30)
	for _, s := range slots {
		switch s.Start.String() {
		case "11:00":
			// Ends exactly when the break begins; half-open intervals do not touch.
			if !s.Available {
				t.Fatalf("slot ending at break start should be free, reason=%s", s.Reason)
			}
		case "11:30":
			if s.Available || s.Reason != model.ReasonDuringBreak {
				t.Fatalf("slot crossing into break: available=%v reason=%s", s.Available, s.Reason)
			}
		}
	}
}

func TestGenerate_BlockingBookingMarksOverlaps(t *testing.T) {
	day := workday(9*60, 17*60, nil)
	now := testDate.Add(-24 * time.Hour)
	booked := []model.Booking{booking(10*60, 11*60, model.StatusConfirmed)}

	slots := Generate(day, svc(60), booked, testDate, now, 30)
	for _, s := range slots {
		switch s.Start.String() {
		case "09:00":
			// [09:00,10:00) abuts [10:00,11:00); no overlap.
			if !s.Available {
				t.Fatalf("09:00 should be free, reason=%s", s.Reason)
			}
		case "09:30", "10:00", "10:30":
			if s.Available || s.Reason != model.ReasonOverlaps {
				t.Fatalf("%s should overlap the booking, available=%v reason=%s", s.Start, s.Available, s.Reason)
			}
		case "11:00":
			if !s.Available {
				t.Fatalf("11:00 should be free, reason=%s", s.Reason)
			}
		}
	}
}

func TestGenerate_CancelledBookingDoesNotBlock(t *testing.T) {
	day := workday(9*60, 17*60, nil)
	now := testDate.Add(-24 * time.Hour)
	cancelled := []model.Booking{booking(10*60, 11*60, model.StatusCancelled)}

	for _, s := range Generate(day, svc(60), cancelled, testDate, now, 30) {
		if s.Reason == model.ReasonOverlaps {
			t.Fatalf("cancelled booking still blocks %s", s.Start)
		}
	}
}

func TestGenerate_PastCutoffOnlyAppliesToday(t *testing.T) {
	day := workday(9*60, 17*60, nil)
	// 10:30 on the queried date: 09:00-10:30 starts are gone, 11:00 is next.
	now := testDate.Add(10*time.Hour + 30*time.Minute)

	slots := Generate(day, svc(60), nil, testDate, now, 30)
	for _, s := range slots {
		past := s.Start <= 10*60+30
		if past && (s.Available || s.Reason != model.ReasonPastCutoff) {
			t.Fatalf("%s should be past cutoff, available=%v reason=%s", s.Start, s.Available, s.Reason)
		}
		if !past && !s.Available {
			t.Fatalf("%s should be free, reason=%s", s.Start, s.Reason)
		}
	}

	// The same clock must not affect tomorrow.
	for _, s := range Generate(day, svc(60), nil, dayAfter, now, 30) {
		if s.Reason == model.ReasonPastCutoff {
			t.Fatalf("future date got past_cutoff at %s", s.Start)
		}
	}
}

func TestGenerate_StartEqualToNowIsPast(t *testing.T) {
	day := workday(9*60, 17*60, nil)
	now := testDate.Add(10 * time.Hour)

	for _, s := range Generate(day, svc(60), nil, testDate, now, 30) {
		if s.Start == 10*60 {
			if s.Available || s.Reason != model.ReasonPastCutoff {
				t.Fatalf("slot starting exactly now should be past cutoff, got reason=%s", s.Reason)
			}
			return
		}
	}
	t.Fatalf("10:00 slot not generated")
}

func TestGenerate_NoCandidates(t *testing.T) {
	now := testDate.Add(-24 * time.Hour)

	if slots := Generate(schedule.Day{Weekday: time.Sunday}, svc(60), nil, testDate, now, 30); slots != nil {
		t.Fatalf("closed day produced %d slots", len(slots))
	}

	inactive := svc(60)
	inactive.IsActive = false
	day := workday(9*60, 17*60, nil)
	if slots := Generate(day, inactive, nil, testDate, now, 30); slots != nil {
		t.Fatalf("inactive service produced %d slots", len(slots))
	}

	// Duration longer than the whole working window.
	if slots := Generate(workday(9*60, 10*60, nil), svc(90), nil, testDate, now, 30); slots != nil {
		t.Fatalf("oversized duration produced %d slots", len(slots))
	}
}

func TestGenerate_DurationIsNotGranularity(t *testing.T) {
	day := workday(9*60, 11*60, nil)
	now := testDate.Add(-24 * time.Hour)

	// 90-minute service on a 30-minute grid: starts 09:00 and 09:30 fit.
	slots := Generate(day, svc(90), nil, testDate, now, 30)
	if len(slots) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(slots))
	}
	if slots[0].Start != 9*60 || slots[1].Start != 9*60+30 {
		t.Fatalf("unexpected starts %s, %s", slots[0].Start, slots[1].Start)
	}
	if slots[1].End != 11*60 {
		t.Fatalf("last slot should end at 11:00, got %s", slots[1].End)
	}
}

func TestClassify_OutsideWorkingWindow(t *testing.T) {
	day := workday(9*60, 17*60, nil)
	now := testDate.Add(-24 * time.Hour)

	if got := Classify(day, svc(60), nil, testDate, now, 8*60); got != model.ReasonOutsideWorkingHours {
		t.Fatalf("before opening: got %s", got)
	}
	// Starts inside the window but runs past closing.
	if got := Classify(day, svc(60), nil, testDate, now, 16*60+30); got != model.ReasonOutsideWorkingHours {
		t.Fatalf("runs past closing: got %s", got)
	}
	if got := Classify(schedule.Day{Weekday: time.Sunday}, svc(60), nil, testDate, now, 10*60); got != model.ReasonOutsideWorkingHours {
		t.Fatalf("closed day: got %s", got)
	}
	if got := Classify(day, svc(60), nil, testDate, now, 16*60); got != model.ReasonNone {
		t.Fatalf("last fitting start rejected: %s", got)
	}
}

func TestClassify_BreakBoundaryMinute(t *testing.T) {
	day := workday(9*60, 18*60, &schedule.Window{Start: 12 * 60, End: 13 * 60})
	now := testDate.Add(-24 * time.Hour)

	// Ending exactly at the break start is fine; one more minute is not.
	if got := Classify(day, svc(60), nil, testDate, now, 11*60); got != model.ReasonNone {
		t.Fatalf("end == break start: got %s", got)
	}
	if got := Classify(day, svc(60), nil, testDate, now, 11*60+1); got != model.ReasonDuringBreak {
		t.Fatalf("end == break start + 1min: got %s", got)
	}
}

func TestOnGrid(t *testing.T) {
	day := workday(9*60, 17*60, nil)

	if !OnGrid(day, 9*60, 30) || !OnGrid(day, 10*60+30, 30) {
		t.Fatalf("grid-aligned starts rejected")
	}
	if OnGrid(day, 9*60+15, 30) {
		t.Fatalf("09:15 accepted on a 30-minute grid")
	}
	// Alignment is judged regardless of the window; bounds are classified
	// separately so callers can report outside_working_hours.
	if !OnGrid(day, 8*60+30, 30) {
		t.Fatalf("aligned start before opening should still be on grid")
	}
	if OnGrid(day, 8*60+45, 30) {
		t.Fatalf("08:45 accepted on a 30-minute grid")
	}

	// A 10:00 opening shifts the grid: 10:15 is off, 10:45 is on a 45 grid.
	late := workday(10*60, 17*60, nil)
	if OnGrid(late, 10*60+15, 45) {
		t.Fatalf("10:15 accepted on a 45-minute grid from 10:00")
	}
	if !OnGrid(late, 10*60+45, 45) {
		t.Fatalf("10:45 rejected on a 45-minute grid from 10:00")
	}
}
