package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinuteOfDay is a time of day expressed as minutes since midnight.
// All schedule and booking arithmetic runs at minute resolution.
type MinuteOfDay int

const MinutesPerDay = 24 * 60

func (m MinuteOfDay) Valid() bool {
	return m >= 0 && m <= MinutesPerDay
}

func (m MinuteOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(m)/60, int(m)%60)
}

// ParseMinuteOfDay parses "HH:MM" strictly: two digits each side, nothing
// trailing. "24:00" is accepted as the end-of-day bound.
func ParseMinuteOfDay(s string) (MinuteOfDay, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) != 2 || len(mm) != 2 || !allDigits(hh) || !allDigits(mm) {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	h, _ := strconv.Atoi(hh)
	min, _ := strconv.Atoi(mm)
	if min > 59 || h*60+min > MinutesPerDay {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return MinuteOfDay(h*60 + min), nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ParseDate parses a calendar day "YYYY-MM-DD" as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(time.DateOnly, s)
}

// At returns the absolute instant of a minute-of-day on the given date.
func At(date time.Time, m MinuteOfDay) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location()).
		Add(time.Duration(m) * time.Minute)
}

// Overlaps reports whether the half-open intervals [aStart,aEnd) and
// [bStart,bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd MinuteOfDay) bool {
	return aStart < bEnd && bStart < aEnd
}

type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
	StatusCompleted BookingStatus = "completed"
)

// Blocking reports whether a booking in this status holds its interval.
func (s BookingStatus) Blocking() bool {
	return s == StatusPending || s == StatusConfirmed
}

// UnavailableReason explains why a candidate slot cannot be booked.
type UnavailableReason string

const (
	ReasonNone                UnavailableReason = ""
	ReasonOutsideWorkingHours UnavailableReason = "outside_working_hours"
	ReasonDuringBreak         UnavailableReason = "during_break"
	ReasonOverlaps            UnavailableReason = "overlaps"
	ReasonPastCutoff          UnavailableReason = "past_cutoff"
)

// Service is a bookable offering owned by a provider. Price is in minor
// currency units.
type Service struct {
	ID              string
	ProviderID      string
	Name            string
	DurationMinutes int
	Price           int64
	IsActive        bool
	CreatedAt       time.Time
}

// Booking is a committed reservation of a provider interval. Version is a
// monotonic counter bumped on every status transition.
type Booking struct {
	ID          string
	ProviderID  string
	ServiceID   string
	ClientID    string
	Date        time.Time // calendar day, midnight UTC
	StartMinute MinuteOfDay
	EndMinute   MinuteOfDay
	Status      BookingStatus
	Version     int64
	CreatedAt   time.Time
	CancelledAt *time.Time
}
