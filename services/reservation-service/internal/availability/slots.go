// Package availability derives the bookable time slots for a
// (provider, service, date) from the weekly schedule and the booking ledger.
// All interval tests use half-open [start, end) semantics.
package availability

import (
	"time"

	"github.com/md-rashed-zaman/slotbook/services/reservation-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/reservation-service/internal/schedule"
)

// DefaultGranularityMinutes is the canonical slot grid step. It is a
// deployment constant, never derived from service duration, so services of
// different lengths share one predictable grid.
const DefaultGranularityMinutes = 30

// Slot is a derived candidate interval; it is regenerated on every query and
// never persisted.
type Slot struct {
	Start     model.MinuteOfDay
	End       model.MinuteOfDay
	Available bool
	Price     int64
	Reason    model.UnavailableReason
}

// Generate returns every grid candidate for the date, each classified
// available or unavailable with a reason, in chronological order. It is a
// pure function of its inputs: the same schedule day, service and ledger
// state always yield the same result.
//
// A closed day, an inactive service, or a duration longer than the working
// window yields no candidates.
func Generate(day schedule.Day, svc model.Service, bookings []model.Booking, date, now time.Time, granularityMinutes int) []Slot {
	if granularityMinutes <= 0 {
		granularityMinutes = DefaultGranularityMinutes
	}
	if !day.Available || !svc.IsActive || svc.DurationMinutes <= 0 {
		return nil
	}

	duration := model.MinuteOfDay(svc.DurationMinutes)
	step := model.MinuteOfDay(granularityMinutes)

	var slots []Slot
	for start := day.Work.Start; start+duration <= day.Work.End; start += step {
		end := start + duration
		reason := classify(day, bookings, date, now, start, end)
		slots = append(slots, Slot{
			Start:     start,
			End:       end,
			Available: reason == model.ReasonNone,
			Price:     svc.Price,
			Reason:    reason,
		})
	}
	return slots
}

// Classify checks a single requested start against the full rule set,
// including the working-window bound the grid walk makes implicit. It is the
// re-validation entry point the reservation path uses, so a stale client
// view can never bypass a rule.
func Classify(day schedule.Day, svc model.Service, bookings []model.Booking, date, now time.Time, start model.MinuteOfDay) model.UnavailableReason {
	if !day.Available || !svc.IsActive || svc.DurationMinutes <= 0 {
		return model.ReasonOutsideWorkingHours
	}
	end := start + model.MinuteOfDay(svc.DurationMinutes)
	if start < day.Work.Start || end > day.Work.End {
		return model.ReasonOutsideWorkingHours
	}
	return classify(day, bookings, date, now, start, end)
}

// OnGrid reports whether start is aligned to the canonical grid anchored at
// the day's opening time. Alignment only; window bounds are Classify's job,
// so an aligned start outside the window still gets a reasoned rejection.
func OnGrid(day schedule.Day, start model.MinuteOfDay, granularityMinutes int) bool {
	if granularityMinutes <= 0 {
		granularityMinutes = DefaultGranularityMinutes
	}
	return int(start-day.Work.Start)%granularityMinutes == 0
}

func classify(day schedule.Day, bookings []model.Booking, date, now time.Time, start, end model.MinuteOfDay) model.UnavailableReason {
	// No booking a slot already in progress or past. Only the current date is
	// cutoff-checked; future dates are never "past".
	if sameDate(date, now) && !model.At(date, start).After(now) {
		return model.ReasonPastCutoff
	}

	// Any intersection with the break makes the slot unavailable, not just
	// full containment; a slot that merely abuts the break (end == breakStart)
	// stays free.
	if day.Break != nil && model.Overlaps(start, end, day.Break.Start, day.Break.End) {
		return model.ReasonDuringBreak
	}

	for _, b := range bookings {
		if !b.Status.Blocking() {
			continue
		}
		if model.Overlaps(start, end, b.StartMinute, b.EndMinute) {
			return model.ReasonOverlaps
		}
	}
	return model.ReasonNone
}

func sameDate(date, now time.Time) bool {
	y1, m1, d1 := date.Date()
	y2, m2, d2 := now.In(date.Location()).Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
