package schedule

import (
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/reservation-service/internal/model"
)

func minute(h, m int) *model.MinuteOfDay {
	v := model.MinuteOfDay(h*60 + m)
	return &v
}

func TestDefaultWeek(t *testing.T) {
	w := DefaultWeek()

	for wd := time.Monday; wd <= time.Friday; wd++ {
		d := w.Day(wd)
		if !d.Available {
			t.Fatalf("%s should be available by default", wd)
		}
		if d.Work.Start != 9*60 || d.Work.End != 17*60 {
			t.Fatalf("%s default window = %s-%s", wd, d.Work.Start, d.Work.End)
		}
		if d.Break != nil {
			t.Fatalf("%s should have no default break", wd)
		}
	}
	if w.Day(time.Saturday).Available || w.Day(time.Sunday).Available {
		t.Fatalf("weekend should be closed by default")
	}
}

func TestSetDay_WithBreak(t *testing.T) {
	w := DefaultWeek()

	d, err := w.SetDay(time.Monday, DayInput{
		Available:  true,
		WorkStart:  minute(9, 0),
		WorkEnd:    minute(18, 0),
		BreakStart: minute(12, 0),
		BreakEnd:   minute(13, 0),
	})
	if err != nil {
		t.Fatalf("SetDay: %v", err)
	}
	if d.Break == nil || d.Break.Start != 12*60 || d.Break.End != 13*60 {
		t.Fatalf("break window not stored: %+v", d.Break)
	}
	if got := w.Day(time.Monday); got.Work.End != 18*60 {
		t.Fatalf("week not updated, work end = %s", got.Work.End)
	}
}

func TestSetDay_UnavailableClearsWindows(t *testing.T) {
	w := DefaultWeek()

	d, err := w.SetDay(time.Wednesday, DayInput{Available: false})
	if err != nil {
		t.Fatalf("SetDay: %v", err)
	}
	if d.Available || d.Work != (Window{}) || d.Break != nil {
		t.Fatalf("unavailable day kept windows: %+v", d)
	}
	// Other days are untouched.
	if !w.Day(time.Thursday).Available {
		t.Fatalf("thursday should still be available")
	}
}

func TestSetDay_Rejections(t *testing.T) {
	cases := []struct {
		name string
		in   DayInput
		want error
	}{
		{
			name: "missing work bounds",
			in:   DayInput{Available: true},
			want: ErrInvalidRange,
		},
		{
			name: "inverted work window",
			in:   DayInput{Available: true, WorkStart: minute(17, 0), WorkEnd: minute(9, 0)},
			want: ErrInvalidRange,
		},
		{
			name: "empty work window",
			in:   DayInput{Available: true, WorkStart: minute(9, 0), WorkEnd: minute(9, 0)},
			want: ErrInvalidRange,
		},
		{
			name: "lone break bound",
			in: DayInput{
				Available: true,
				WorkStart: minute(9, 0), WorkEnd: minute(17, 0),
				BreakStart: minute(12, 0),
			},
			want: ErrBreakOutOfBounds,
		},
		{
			name: "break starts at work start",
			in: DayInput{
				Available: true,
				WorkStart: minute(9, 0), WorkEnd: minute(17, 0),
				BreakStart: minute(9, 0), BreakEnd: minute(10, 0),
			},
			want: ErrBreakOutOfBounds,
		},
		{
			name: "break ends at work end",
			in: DayInput{
				Available: true,
				WorkStart: minute(9, 0), WorkEnd: minute(17, 0),
				BreakStart: minute(16, 0), BreakEnd: minute(17, 0),
			},
			want: ErrBreakOutOfBounds,
		},
		{
			name: "inverted break",
			in: DayInput{
				Available: true,
				WorkStart: minute(9, 0), WorkEnd: minute(17, 0),
				BreakStart: minute(13, 0), BreakEnd: minute(12, 0),
			},
			want: ErrBreakOutOfBounds,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := DefaultWeek()
			if _, err := w.SetDay(time.Tuesday, tc.in); !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
			// A rejected update must leave the day unchanged.
			d := w.Day(time.Tuesday)
			if !d.Available || d.Work.Start != 9*60 || d.Work.End != 17*60 {
				t.Fatalf("rejected update mutated the day: %+v", d)
			}
		})
	}
}
