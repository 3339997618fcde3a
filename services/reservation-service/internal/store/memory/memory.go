// Package memory is a mutex-guarded in-memory store. It backs unit tests and
// STORE=memory development runs; a single lock around every write gives it
// the same atomic check-then-insert semantics the Postgres exclusion
// constraint provides.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/reservation-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/reservation-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/reservation-service/internal/schedule"
	"github.com/md-rashed-zaman/slotbook/services/reservation-service/internal/store"
)

type Store struct {
	mu       sync.Mutex
	weeks    map[string]schedule.Week
	services map[string]model.Service // serviceID -> service
	bookings map[string]model.Booking // bookingID -> booking
	idem     map[string]string        // providerID+"\x00"+key -> bookingID
	events   []outbox.Event
}

func New() *Store {
	return &Store{
		weeks:    map[string]schedule.Week{},
		services: map[string]model.Service{},
		bookings: map[string]model.Booking{},
		idem:     map[string]string{},
	}
}

func (s *Store) Week(_ context.Context, providerID string) (schedule.Week, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.weeks[providerID]
	if !ok {
		w = schedule.DefaultWeek()
		s.weeks[providerID] = w
	}
	return w, nil
}

func (s *Store) PutDay(_ context.Context, providerID string, day schedule.Day) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.weeks[providerID]
	if !ok {
		w = schedule.DefaultWeek()
	}
	if _, err := w.SetDay(day.Weekday, dayInput(day)); err != nil {
		return err
	}
	s.weeks[providerID] = w
	return nil
}

func dayInput(d schedule.Day) schedule.DayInput {
	in := schedule.DayInput{Available: d.Available}
	if d.Available {
		ws, we := d.Work.Start, d.Work.End
		in.WorkStart, in.WorkEnd = &ws, &we
		if d.Break != nil {
			bs, be := d.Break.Start, d.Break.End
			in.BreakStart, in.BreakEnd = &bs, &be
		}
	}
	return in
}

func (s *Store) CreateService(_ context.Context, svc model.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.services[svc.ID]; exists {
		return store.ErrConflict
	}
	s.services[svc.ID] = svc
	return nil
}

func (s *Store) Service(_ context.Context, providerID, serviceID string) (model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[serviceID]
	if !ok || svc.ProviderID != providerID {
		return model.Service{}, store.ErrNotFound
	}
	return svc, nil
}

func (s *Store) ListServices(_ context.Context, providerID string) ([]model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Service
	for _, svc := range s.services {
		if svc.ProviderID == providerID {
			out = append(out, svc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) BookingsOn(_ context.Context, providerID string, date time.Time) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bookingsOnLocked(providerID, date), nil
}

func (s *Store) bookingsOnLocked(providerID string, date time.Time) []model.Booking {
	var out []model.Booking
	for _, b := range s.bookings {
		if b.ProviderID == providerID && sameDay(b.Date, date) && b.Status.Blocking() {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartMinute < out[j].StartMinute })
	return out
}

func (s *Store) Booking(_ context.Context, bookingID string) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return model.Booking{}, store.ErrNotFound
	}
	return b, nil
}

func (s *Store) ListBookings(_ context.Context, providerID string, limit int) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if b.ProviderID == providerID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].StartMinute > out[j].StartMinute
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CreateBooking(_ context.Context, b model.Booking, idempotencyKey string, events []outbox.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idempotencyKey != "" {
		if _, claimed := s.idem[idemKey(b.ProviderID, idempotencyKey)]; claimed {
			return store.ErrConflict
		}
	}
	for _, other := range s.bookingsOnLocked(b.ProviderID, b.Date) {
		if model.Overlaps(b.StartMinute, b.EndMinute, other.StartMinute, other.EndMinute) {
			return store.ErrConflict
		}
	}

	s.bookings[b.ID] = b
	if idempotencyKey != "" {
		s.idem[idemKey(b.ProviderID, idempotencyKey)] = b.ID
	}
	s.events = append(s.events, events...)
	return nil
}

func (s *Store) TransitionBooking(_ context.Context, bookingID string, fromVersion int64, to model.BookingStatus, events []outbox.Event) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[bookingID]
	if !ok {
		return model.Booking{}, store.ErrNotFound
	}
	if b.Version != fromVersion {
		return model.Booking{}, store.ErrConflict
	}
	b.Status = to
	b.Version++
	if to == model.StatusCancelled {
		now := time.Now().UTC()
		b.CancelledAt = &now
	}
	s.bookings[bookingID] = b
	s.events = append(s.events, events...)
	return b, nil
}

func (s *Store) BookingByIdempotencyKey(_ context.Context, providerID, key string) (model.Booking, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.idem[idemKey(providerID, key)]
	if !ok {
		return model.Booking{}, false, nil
	}
	b, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, false, nil
	}
	return b, true, nil
}

// Events returns a copy of every event committed so far, in order.
func (s *Store) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]outbox.Event, len(s.events))
	copy(out, s.events)
	return out
}

func idemKey(providerID, key string) string {
	return providerID + "\x00" + key
}

func sameDay(a, b time.Time) bool {
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
