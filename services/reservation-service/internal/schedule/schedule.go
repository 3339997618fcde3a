// Package schedule holds a provider's recurring weekly availability: one
// entry per weekday with a working window and an optional break window.
package schedule

import (
	"errors"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/reservation-service/internal/model"
)

var (
	// ErrInvalidRange means workStart >= workEnd or a bound is out of day range.
	ErrInvalidRange = errors.New("schedule: invalid working range")
	// ErrBreakOutOfBounds means the break is not strictly nested inside the
	// working window, or only one break bound was supplied.
	ErrBreakOutOfBounds = errors.New("schedule: break window out of bounds")
)

// Window is a half-open [Start, End) time-of-day range.
type Window struct {
	Start model.MinuteOfDay
	End   model.MinuteOfDay
}

// Day is one weekday's availability. Break is nil when the provider takes no
// break that day. Work and Break are zero/nil when Available is false.
type Day struct {
	Weekday   time.Weekday
	Available bool
	Work      Window
	Break     *Window
}

// DayInput carries the caller-supplied fields for SetDay. Bounds are
// pointers so a lone break bound can be detected and rejected.
type DayInput struct {
	Available  bool
	WorkStart  *model.MinuteOfDay
	WorkEnd    *model.MinuteOfDay
	BreakStart *model.MinuteOfDay
	BreakEnd   *model.MinuteOfDay
}

// Week is the full recurring schedule, indexed by time.Weekday.
type Week struct {
	days [7]Day
}

// DefaultWeek is the onboarding schedule: Mon-Fri 09:00-17:00, weekend closed.
func DefaultWeek() Week {
	var w Week
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		d := Day{Weekday: wd}
		if wd >= time.Monday && wd <= time.Friday {
			d.Available = true
			d.Work = Window{Start: 9 * 60, End: 17 * 60}
		}
		w.days[wd] = d
	}
	return w
}

// NewWeek builds a Week from up to seven day entries; missing weekdays are
// closed. Each entry is validated.
func NewWeek(days []Day) (Week, error) {
	var w Week
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		w.days[wd] = Day{Weekday: wd}
	}
	for _, d := range days {
		if err := validateDay(d); err != nil {
			return Week{}, err
		}
		w.days[d.Weekday] = d
	}
	return w, nil
}

func (w Week) Day(wd time.Weekday) Day {
	return w.days[wd]
}

func (w Week) Days() []Day {
	out := make([]Day, 0, 7)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		out = append(out, w.days[wd])
	}
	return out
}

// SetDay applies the caller-supplied availability for one weekday. Each day
// is independent; marking a day unavailable clears its windows. Existing
// bookings are untouched (narrowing hours after bookings exist is a
// reporting concern, not enforced here).
func (w *Week) SetDay(wd time.Weekday, in DayInput) (Day, error) {
	if !in.Available {
		d := Day{Weekday: wd}
		w.days[wd] = d
		return d, nil
	}

	if in.WorkStart == nil || in.WorkEnd == nil {
		return Day{}, ErrInvalidRange
	}
	d := Day{
		Weekday:   wd,
		Available: true,
		Work:      Window{Start: *in.WorkStart, End: *in.WorkEnd},
	}
	if in.BreakStart != nil || in.BreakEnd != nil {
		if in.BreakStart == nil || in.BreakEnd == nil {
			return Day{}, ErrBreakOutOfBounds
		}
		d.Break = &Window{Start: *in.BreakStart, End: *in.BreakEnd}
	}
	if err := validateDay(d); err != nil {
		return Day{}, err
	}
	w.days[wd] = d
	return d, nil
}

func validateDay(d Day) error {
	if !d.Available {
		if d.Work != (Window{}) || d.Break != nil {
			return ErrInvalidRange
		}
		return nil
	}
	if !d.Work.Start.Valid() || !d.Work.End.Valid() || d.Work.Start >= d.Work.End {
		return ErrInvalidRange
	}
	if d.Break != nil {
		b := *d.Break
		// Strict nesting: workStart < breakStart < breakEnd < workEnd.
		if !(d.Work.Start < b.Start && b.Start < b.End && b.End < d.Work.End) {
			return ErrBreakOutOfBounds
		}
	}
	return nil
}
