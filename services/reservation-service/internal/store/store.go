// Package store defines the persistence contracts the reservation engine
// requires: keyed lookups plus the conditional-write primitives that keep
// check-then-insert atomic.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/reservation-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/reservation-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/reservation-service/internal/schedule"
)

var (
	ErrNotFound = errors.New("store: not found")
	// ErrConflict means a conditional write lost: an overlapping blocking
	// booking exists, an idempotency key raced, or a version check failed.
	ErrConflict = errors.New("store: conflict")
)

type Store interface {
	// Week returns the provider's schedule, seeding the onboarding default on
	// first touch.
	Week(ctx context.Context, providerID string) (schedule.Week, error)
	PutDay(ctx context.Context, providerID string, day schedule.Day) error

	CreateService(ctx context.Context, svc model.Service) error
	Service(ctx context.Context, providerID, serviceID string) (model.Service, error)
	ListServices(ctx context.Context, providerID string) ([]model.Service, error)

	// BookingsOn is the ledger read: only pending/confirmed bookings, sorted
	// by start ascending, reflecting the latest committed writes.
	BookingsOn(ctx context.Context, providerID string, date time.Time) ([]model.Booking, error)
	Booking(ctx context.Context, bookingID string) (model.Booking, error)
	ListBookings(ctx context.Context, providerID string, limit int) ([]model.Booking, error)

	// CreateBooking commits the booking, the optional idempotency-key mapping
	// and the events as a single atomic unit. A lost interval or key race
	// returns ErrConflict with nothing written.
	CreateBooking(ctx context.Context, b model.Booking, idempotencyKey string, events []outbox.Event) error

	// TransitionBooking updates status iff the stored version still equals
	// fromVersion, bumping the version. Version mismatch returns ErrConflict.
	TransitionBooking(ctx context.Context, bookingID string, fromVersion int64, to model.BookingStatus, events []outbox.Event) (model.Booking, error)

	// BookingByIdempotencyKey replays an already-committed reservation.
	BookingByIdempotencyKey(ctx context.Context, providerID, key string) (model.Booking, bool, error)
}
