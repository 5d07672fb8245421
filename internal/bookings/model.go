// Package bookings owns appointments: it books and cancels them atomically
// together with the points ledger entries they produce.
package bookings

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusBooked    Status = "BOOKED"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusNoShow    Status = "NO_SHOW"
	StatusCanceled  Status = "CANCELED"
)

// Active reports whether the appointment still holds its time range.
func (s Status) Active() bool { return s != StatusCanceled }

// ParseStatus accepts any case.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case StatusBooked, StatusConfirmed, StatusCompleted, StatusNoShow, StatusCanceled:
		return s, true
	}
	return "", false
}

// CanTransition reports whether a provider or admin may move an appointment
// from s to next. Cancellation has its own path.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusBooked:
		return next == StatusConfirmed
	case StatusConfirmed:
		return next == StatusCompleted || next == StatusNoShow
	default:
		return false
	}
}

// Kind is the commercial type of an appointment.
type Kind string

const (
	KindStandard       Kind = "STANDARD"
	KindTrialFree      Kind = "TRIAL_FREE"
	KindDiscountSecond Kind = "DISCOUNT_SECOND"
)

// ParseKind accepts any case; empty means STANDARD.
func ParseKind(raw string) (Kind, bool) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	if raw == "" {
		return KindStandard, true
	}
	switch k := Kind(raw); k {
	case KindStandard, KindTrialFree, KindDiscountSecond:
		return k, true
	}
	return "", false
}

// PaymentStatus tracks the points settlement of an appointment.
type PaymentStatus string

const (
	PaymentNotRequired   PaymentStatus = "NOT_REQUIRED"
	PaymentPointsDebited PaymentStatus = "POINTS_DEBITED"
	PaymentRefunded      PaymentStatus = "REFUNDED"
)

// Appointment is a booked time range of one provider for one client.
type Appointment struct {
	ID             uuid.UUID     `json:"id"`
	ClientID       string        `json:"client_id"`
	ProviderID     string        `json:"provider_id"`
	StartAt        time.Time     `json:"start_at"`
	EndAt          time.Time     `json:"end_at"`
	Status         Status        `json:"status"`
	Kind           Kind          `json:"kind"`
	PriceCents     int64         `json:"price_cents"`
	PointsCost     int64         `json:"points_cost"`
	PaymentStatus  PaymentStatus `json:"payment_status"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	CanceledAt     *time.Time    `json:"canceled_at,omitempty"`
}

// BookRequest is a booking attempt expressed in business-local time.
type BookRequest struct {
	ClientID       string
	ProviderID     string
	Date           string
	Time           string
	Kind           string
	IdempotencyKey string
}

// BookResult carries the appointment and whether it came from an earlier
// request with the same idempotency key.
type BookResult struct {
	Appointment *Appointment
	Replayed    bool
}

// CancelOptions tunes Cancel.
type CancelOptions struct {
	// Release deletes the row instead of marking it canceled. Admin only.
	Release bool
}
