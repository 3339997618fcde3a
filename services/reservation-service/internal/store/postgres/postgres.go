// Package postgres implements the store contracts on pgx. Overlap safety is
// anchored by an exclusion constraint on (provider, date, interval) for
// blocking bookings, so two instances can never both commit a contested slot.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/services/reservation-service/internal/model"
	"github.com/md-rashed-zaman/slotbook/services/reservation-service/internal/outbox"
	"github.com/md-rashed-zaman/slotbook/services/reservation-service/internal/schedule"
	"github.com/md-rashed-zaman/slotbook/services/reservation-service/internal/store"
)

type Store struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func New(pool *db.Pool) *Store {
	return &Store{pool: pool, outbox: outbox.NewRepository(pool)}
}

func (s *Store) Week(ctx context.Context, providerID string) (schedule.Week, error) {
	days, err := s.readWeek(ctx, providerID)
	if err != nil {
		return schedule.Week{}, mapError(err)
	}
	if len(days) == 0 {
		if err := s.seedWeek(ctx, providerID); err != nil {
			return schedule.Week{}, mapError(err)
		}
		return schedule.DefaultWeek(), nil
	}
	return schedule.NewWeek(days)
}

func (s *Store) readWeek(ctx context.Context, providerID string) ([]schedule.Day, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT weekday, is_available, work_start_minute, work_end_minute, break_start_minute, break_end_minute
		FROM provider_schedules
		WHERE provider_id = $1
		ORDER BY weekday ASC
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []schedule.Day
	for rows.Next() {
		var (
			weekday              int
			available            bool
			workStart, workEnd   int
			breakStart, breakEnd *int
		)
		if err := rows.Scan(&weekday, &available, &workStart, &workEnd, &breakStart, &breakEnd); err != nil {
			return nil, err
		}
		d := schedule.Day{
			Weekday:   time.Weekday(weekday),
			Available: available,
			Work:      schedule.Window{Start: model.MinuteOfDay(workStart), End: model.MinuteOfDay(workEnd)},
		}
		if breakStart != nil && breakEnd != nil {
			d.Break = &schedule.Window{Start: model.MinuteOfDay(*breakStart), End: model.MinuteOfDay(*breakEnd)}
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

func (s *Store) seedWeek(ctx context.Context, providerID string) error {
	for _, d := range schedule.DefaultWeek().Days() {
		if _, err := s.pool.Exec(ctx, `
			INSERT INTO provider_schedules (provider_id, weekday, is_available, work_start_minute, work_end_minute)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (provider_id, weekday) DO NOTHING
		`, providerID, int(d.Weekday), d.Available, int(d.Work.Start), int(d.Work.End)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) PutDay(ctx context.Context, providerID string, day schedule.Day) error {
	var breakStart, breakEnd *int
	if day.Break != nil {
		bs, be := int(day.Break.Start), int(day.Break.End)
		breakStart, breakEnd = &bs, &be
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO provider_schedules (provider_id, weekday, is_available, work_start_minute, work_end_minute, break_start_minute, break_end_minute)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (provider_id, weekday) DO UPDATE
		SET is_available = EXCLUDED.is_available,
			work_start_minute = EXCLUDED.work_start_minute,
			work_end_minute = EXCLUDED.work_end_minute,
			break_start_minute = EXCLUDED.break_start_minute,
			break_end_minute = EXCLUDED.break_end_minute,
			updated_at = now()
	`, providerID, int(day.Weekday), day.Available, int(day.Work.Start), int(day.Work.End), breakStart, breakEnd)
	return mapError(err)
}

func (s *Store) CreateService(ctx context.Context, svc model.Service) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO services (id, provider_id, name, duration_minutes, price_minor, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, svc.ID, svc.ProviderID, svc.Name, svc.DurationMinutes, svc.Price, svc.IsActive)
	return mapError(err)
}

func (s *Store) Service(ctx context.Context, providerID, serviceID string) (model.Service, error) {
	var svc model.Service
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, provider_id, name, duration_minutes, price_minor, is_active, created_at
		FROM services
		WHERE provider_id = $1 AND id = $2
	`, providerID, serviceID).Scan(&svc.ID, &svc.ProviderID, &svc.Name, &svc.DurationMinutes, &svc.Price, &svc.IsActive, &svc.CreatedAt)
	if err != nil {
		return model.Service{}, mapError(err)
	}
	return svc, nil
}

func (s *Store) ListServices(ctx context.Context, providerID string) ([]model.Service, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, provider_id, name, duration_minutes, price_minor, is_active, created_at
		FROM services
		WHERE provider_id = $1
		ORDER BY created_at DESC
	`, providerID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		var svc model.Service
		if err := rows.Scan(&svc.ID, &svc.ProviderID, &svc.Name, &svc.DurationMinutes, &svc.Price, &svc.IsActive, &svc.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

const bookingColumns = `id::text, provider_id, service_id::text, client_id, date, start_minute, end_minute, status, version, created_at, cancelled_at`

func (s *Store) BookingsOn(ctx context.Context, providerID string, date time.Time) ([]model.Booking, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE provider_id = $1
			AND date = $2
			AND status IN ('pending', 'confirmed')
		ORDER BY start_minute ASC
	`, providerID, date)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

func (s *Store) Booking(ctx context.Context, bookingID string) (model.Booking, error) {
	b, err := scanBooking(s.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
	`, bookingID))
	if err != nil {
		return model.Booking{}, mapError(err)
	}
	return b, nil
}

func (s *Store) ListBookings(ctx context.Context, providerID string, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE provider_id = $1
		ORDER BY date DESC, start_minute DESC
		LIMIT $2
	`, providerID, limit)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

func (s *Store) CreateBooking(ctx context.Context, b model.Booking, idempotencyKey string, events []outbox.Event) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if idempotencyKey != "" {
		tag, err := tx.Exec(ctx, `
			INSERT INTO booking_idempotency_keys (provider_id, idempotency_key, booking_id)
			VALUES ($1, $2, $3)
			ON CONFLICT (provider_id, idempotency_key) DO NOTHING
		`, b.ProviderID, idempotencyKey, b.ID)
		if err != nil {
			return mapError(err)
		}
		// Key already claimed by a concurrent request; the caller replays it.
		if tag.RowsAffected() == 0 {
			return store.ErrConflict
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO bookings (id, provider_id, service_id, client_id, date, start_minute, end_minute, status, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, b.ID, b.ProviderID, b.ServiceID, b.ClientID, b.Date, int(b.StartMinute), int(b.EndMinute), string(b.Status), b.Version)
	if err != nil {
		return mapError(err)
	}

	for _, evt := range events {
		if err := s.outbox.Insert(ctx, tx, evt); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) TransitionBooking(ctx context.Context, bookingID string, fromVersion int64, to model.BookingStatus, events []outbox.Event) (model.Booking, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Booking{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, err := scanBooking(tx.QueryRow(ctx, `
		UPDATE bookings
		SET status = $3,
			version = version + 1,
			cancelled_at = CASE WHEN $3 = 'cancelled' THEN now() ELSE cancelled_at END
		WHERE id = $1 AND version = $2
		RETURNING `+bookingColumns+`
	`, bookingID, fromVersion, string(to)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Distinguish a missing booking from a lost version race.
			var exists bool
			if err2 := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bookings WHERE id = $1)`, bookingID).Scan(&exists); err2 != nil {
				return model.Booking{}, err2
			}
			if !exists {
				return model.Booking{}, store.ErrNotFound
			}
			return model.Booking{}, store.ErrConflict
		}
		return model.Booking{}, mapError(err)
	}

	for _, evt := range events {
		if err := s.outbox.Insert(ctx, tx, evt); err != nil {
			return model.Booking{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Booking{}, err
	}
	return b, nil
}

func (s *Store) BookingByIdempotencyKey(ctx context.Context, providerID, key string) (model.Booking, bool, error) {
	b, err := scanBooking(s.pool.QueryRow(ctx, `
		SELECT b.id::text, b.provider_id, b.service_id::text, b.client_id, b.date,
			b.start_minute, b.end_minute, b.status, b.version, b.created_at, b.cancelled_at
		FROM booking_idempotency_keys k
		JOIN bookings b ON b.id = k.booking_id
		WHERE k.provider_id = $1 AND k.idempotency_key = $2
	`, providerID, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Booking{}, false, nil
		}
		return model.Booking{}, false, mapError(err)
	}
	return b, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (model.Booking, error) {
	var (
		b           model.Booking
		startMinute int
		endMinute   int
		status      string
		cancelledAt *time.Time
	)
	err := row.Scan(&b.ID, &b.ProviderID, &b.ServiceID, &b.ClientID, &b.Date,
		&startMinute, &endMinute, &status, &b.Version, &b.CreatedAt, &cancelledAt)
	if err != nil {
		return model.Booking{}, err
	}
	b.StartMinute = model.MinuteOfDay(startMinute)
	b.EndMinute = model.MinuteOfDay(endMinute)
	b.Status = model.BookingStatus(status)
	b.CancelledAt = cancelledAt
	return b, nil
}

func scanBookings(rows pgx.Rows) ([]model.Booking, error) {
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// mapError translates pgx failures into store sentinels: exclusion (23P01)
// and unique (23505) violations are conflicts, ErrNoRows is not found.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "23P01" || pgErr.Code == "23505") {
		return store.ErrConflict
	}
	return err
}
