package bookings

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/barber-booking/internal/availability"
	"github.com/wolfman30/barber-booking/internal/ledger"
)

var (
	// ErrSlotTaken is returned by InsertAppointment when an active appointment
	// of the provider already holds an overlapping range.
	ErrSlotTaken = errors.New("bookings: slot already taken")
	// ErrDuplicateIdempotencyKey is returned by InsertAppointment when the key
	// was claimed by a concurrent booking.
	ErrDuplicateIdempotencyKey = errors.New("bookings: duplicate idempotency key")
	// ErrNotFound means no appointment has the id.
	ErrNotFound = errors.New("bookings: appointment not found")
)

// Tx is the unit of work a booking or cancellation runs in. Every method
// sees the writes made earlier in the same Tx.
type Tx interface {
	FindByIdempotencyKey(ctx context.Context, key string) (*Appointment, error)
	ListActiveBetween(ctx context.Context, providerID string, from, to time.Time) ([]availability.Interval, error)
	LockUser(ctx context.Context, userID string) error
	Balance(ctx context.Context, userID string) (int64, error)
	InsertAppointment(ctx context.Context, appt *Appointment) error
	AppendLedger(ctx context.Context, entry *ledger.Entry) error
	NetForRef(ctx context.Context, userID, refType, refID string) (int64, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, payment PaymentStatus, at time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// Store is the durable home of appointments. InTx commits when fn returns nil
// and rolls back otherwise.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	FindByIdempotencyKey(ctx context.Context, key string) (*Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListActiveBetween(ctx context.Context, providerID string, from, to time.Time) ([]availability.Interval, error)
}
