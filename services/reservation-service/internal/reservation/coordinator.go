// Package reservation is the only write path for bookings. Reserve
// re-validates the requested slot against the current ledger inside a
// per-(provider, date) critical section, so at most one booking wins a
// contested interval; the Postgres exclusion constraint backs the same
// guarantee across instances.
package reservation

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/slotbook/services/reservation-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/reservation-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/reservation-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/reservation-service/internal/schedule"
	"github.com/md-rashed-zaman/slotbook/services/reservation-service/internal/store"
)

type Coordinator struct {
	store       store.Store
	locks       *keyedMutex
	logger      *slog.Logger
	granularity int
	now         func() time.Time
}

type Config struct {
	GranularityMinutes int
	// Now is the injected clock; defaults to time.Now.
	Now func() time.Time
}

func New(st store.Store, logger *slog.Logger, cfg Config) *Coordinator {
	if cfg.GranularityMinutes <= 0 {
		cfg.GranularityMinutes = availability.DefaultGranularityMinutes
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Coordinator{
		store:       st,
		locks:       newKeyedMutex(),
		logger:      logger,
		granularity: cfg.GranularityMinutes,
		now:         cfg.Now,
	}
}

// AvailableSlots returns the classified slot grid for the date. Read-only;
// no locking beyond the ledger's own read consistency.
func (c *Coordinator) AvailableSlots(ctx context.Context, providerID, serviceID string, date time.Time) ([]availability.Slot, error) {
	svc, err := c.store.Service(ctx, providerID, serviceID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	week, err := c.store.Week(ctx, providerID)
	if err != nil {
		return nil, err
	}
	bookings, err := c.store.BookingsOn(ctx, providerID, date)
	if err != nil {
		return nil, err
	}
	return availability.Generate(week.Day(date.Weekday()), svc, bookings, date, c.now(), c.granularity), nil
}

type ReserveRequest struct {
	ProviderID     string
	ServiceID      string
	ClientID       string
	Date           time.Time
	Start          model.MinuteOfDay
	IdempotencyKey string
}

// Reserve converts a slot selection into a confirmed booking, or reports why
// it cannot. The caller's slot view may be arbitrarily stale; everything is
// rechecked against the ledger here.
func (c *Coordinator) Reserve(ctx context.Context, req ReserveRequest) (model.Booking, error) {
	if req.ClientID == "" {
		return model.Booking{}, &ValidationError{Field: "clientId", Msg: "required"}
	}
	if !req.Start.Valid() {
		return model.Booking{}, &ValidationError{Field: "startTime", Msg: "out of range"}
	}

	svc, err := c.store.Service(ctx, req.ProviderID, req.ServiceID)
	if err != nil {
		return model.Booking{}, mapStoreErr(err)
	}

	// A retried request with an already-committed key replays the original
	// result instead of attempting a second reservation.
	if req.IdempotencyKey != "" {
		if b, ok, err := c.store.BookingByIdempotencyKey(ctx, req.ProviderID, req.IdempotencyKey); err != nil {
			return model.Booking{}, err
		} else if ok {
			return b, nil
		}
	}

	unlock := c.locks.lock(lockKey(req.ProviderID, req.Date))
	defer unlock()

	week, err := c.store.Week(ctx, req.ProviderID)
	if err != nil {
		return model.Booking{}, err
	}
	day := week.Day(req.Date.Weekday())
	if day.Available && !availability.OnGrid(day, req.Start, c.granularity) {
		return model.Booking{}, &ValidationError{Field: "startTime", Msg: "not on the slot grid"}
	}

	bookings, err := c.store.BookingsOn(ctx, req.ProviderID, req.Date)
	if err != nil {
		return model.Booking{}, err
	}
	if reason := availability.Classify(day, svc, bookings, req.Date, c.now(), req.Start); reason != model.ReasonNone {
		// The slot may be taken by this very request: a retry whose first key
		// check ran before the original committed would otherwise classify
		// against its own booking. Replay instead of rejecting.
		if req.IdempotencyKey != "" {
			if prev, ok, err2 := c.store.BookingByIdempotencyKey(ctx, req.ProviderID, req.IdempotencyKey); err2 == nil && ok {
				return prev, nil
			}
		}
		return model.Booking{}, &SlotUnavailableError{Reason: reason}
	}

	now := c.now().UTC()
	b := model.Booking{
		ID:          uuid.NewString(),
		ProviderID:  req.ProviderID,
		ServiceID:   req.ServiceID,
		ClientID:    req.ClientID,
		Date:        req.Date,
		StartMinute: req.Start,
		EndMinute:   req.Start + model.MinuteOfDay(svc.DurationMinutes),
		Status:      model.StatusConfirmed,
		Version:     0,
		CreatedAt:   now,
	}

	if err := c.store.CreateBooking(ctx, b, req.IdempotencyKey, []outbox.Event{bookingEvent(outbox.EventBookingConfirmed, b)}); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// A concurrent request may have committed under the same key; if
			// so this is a retry, not a race.
			if req.IdempotencyKey != "" {
				if prev, ok, err2 := c.store.BookingByIdempotencyKey(ctx, req.ProviderID, req.IdempotencyKey); err2 == nil && ok {
					return prev, nil
				}
			}
			return model.Booking{}, ErrConflict
		}
		return model.Booking{}, err
	}

	c.logger.Info("booking confirmed",
		"booking_id", b.ID,
		"provider_id", b.ProviderID,
		"date", b.Date.Format(time.DateOnly),
		"start", b.StartMinute.String(),
	)
	return b, nil
}

// Cancel transitions Confirmed (or Pending) to Cancelled, freeing the
// interval. The version CAS makes cancel and a concurrent transition on the
// same booking mutually exclusive.
func (c *Coordinator) Cancel(ctx context.Context, bookingID, actorID string) (model.Booking, error) {
	b, err := c.store.Booking(ctx, bookingID)
	if err != nil {
		return model.Booking{}, mapStoreErr(err)
	}
	if actorID != b.ClientID && actorID != b.ProviderID {
		return model.Booking{}, ErrForbidden
	}

	unlock := c.locks.lock(lockKey(b.ProviderID, b.Date))
	defer unlock()

	// Re-read inside the critical section for a fresh version.
	b, err = c.store.Booking(ctx, bookingID)
	if err != nil {
		return model.Booking{}, mapStoreErr(err)
	}
	switch b.Status {
	case model.StatusCancelled:
		return model.Booking{}, ErrAlreadyCancelled
	case model.StatusCompleted:
		return model.Booking{}, ErrImmutable
	}

	cancelled, err := c.store.TransitionBooking(ctx, bookingID, b.Version, model.StatusCancelled,
		[]outbox.Event{bookingEvent(outbox.EventBookingCancelled, b)})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return model.Booking{}, ErrConflict
		}
		return model.Booking{}, mapStoreErr(err)
	}

	c.logger.Info("booking cancelled", "booking_id", bookingID, "actor_id", actorID)
	return cancelled, nil
}

// Week returns the provider's recurring schedule (seeded on first touch).
func (c *Coordinator) Week(ctx context.Context, providerID string) (schedule.Week, error) {
	return c.store.Week(ctx, providerID)
}

// SetDay validates and persists one weekday of the provider's schedule.
// Existing bookings are never touched.
func (c *Coordinator) SetDay(ctx context.Context, providerID string, wd time.Weekday, in schedule.DayInput) (schedule.Day, error) {
	week, err := c.store.Week(ctx, providerID)
	if err != nil {
		return schedule.Day{}, err
	}
	day, err := week.SetDay(wd, in)
	if err != nil {
		return schedule.Day{}, err
	}
	if err := c.store.PutDay(ctx, providerID, day); err != nil {
		return schedule.Day{}, err
	}
	return day, nil
}

func (c *Coordinator) CreateService(ctx context.Context, providerID, name string, durationMinutes int, price int64) (model.Service, error) {
	if name == "" {
		return model.Service{}, &ValidationError{Field: "name", Msg: "required"}
	}
	if durationMinutes <= 0 {
		return model.Service{}, &ValidationError{Field: "durationMinutes", Msg: "must be positive"}
	}
	if price < 0 {
		return model.Service{}, &ValidationError{Field: "price", Msg: "must not be negative"}
	}
	svc := model.Service{
		ID:              uuid.NewString(),
		ProviderID:      providerID,
		Name:            name,
		DurationMinutes: durationMinutes,
		Price:           price,
		IsActive:        true,
		CreatedAt:       c.now().UTC(),
	}
	if err := c.store.CreateService(ctx, svc); err != nil {
		return model.Service{}, err
	}
	return svc, nil
}

func (c *Coordinator) ListServices(ctx context.Context, providerID string) ([]model.Service, error) {
	return c.store.ListServices(ctx, providerID)
}

func (c *Coordinator) ListBookings(ctx context.Context, providerID string, limit int) ([]model.Booking, error) {
	return c.store.ListBookings(ctx, providerID, limit)
}

func lockKey(providerID string, date time.Time) string {
	return providerID + "|" + date.Format(time.DateOnly)
}

func bookingEvent(eventType string, b model.Booking) outbox.Event {
	payload, _ := json.Marshal(map[string]any{
		"booking_id":  b.ID,
		"provider_id": b.ProviderID,
		"service_id":  b.ServiceID,
		"client_id":   b.ClientID,
		"date":        b.Date.Format(time.DateOnly),
		"start_time":  b.StartMinute.String(),
		"end_time":    b.EndMinute.String(),
	})
	return outbox.Event{
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     eventType,
		Payload:       payload,
	}
}

func mapStoreErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
