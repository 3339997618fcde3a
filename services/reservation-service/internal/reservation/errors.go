package reservation

import (
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/slotbook/services/reservation-service/internal/model"
)

var (
	ErrNotFound = errors.New("reservation: not found")
	// ErrConflict means the slot was available when last read but another
	// reservation committed first.
	ErrConflict         = errors.New("reservation: lost concurrent reservation race")
	ErrAlreadyCancelled = errors.New("reservation: booking already cancelled")
	// ErrImmutable means the booking is completed and can no longer change.
	ErrImmutable = errors.New("reservation: booking is immutable")
	ErrForbidden = errors.New("reservation: actor may not modify this booking")
)

// SlotUnavailableError reports why the requested interval cannot be booked.
// It is expected and frequent; callers re-fetch slots and pick again.
type SlotUnavailableError struct {
	Reason model.UnavailableReason
}

func (e *SlotUnavailableError) Error() string {
	return fmt.Sprintf("reservation: slot unavailable (%s)", e.Reason)
}

// ValidationError reports malformed input: off-grid start times, unknown
// weekdays, broken schedule invariants. Never retried.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("reservation: invalid %s: %s", e.Field, e.Msg)
}
