package events

import "time"

const (
	TypeBookingCreated       = "booking.created.v1"
	TypeBookingCanceled      = "booking.canceled.v1"
	TypeBookingStatusChanged = "booking.status_changed.v1"
)

type BookingCreatedV1 struct {
	AppointmentID string    `json:"appointment_id"`
	ClientID      string    `json:"client_id"`
	ProviderID    string    `json:"provider_id"`
	Kind          string    `json:"kind"`
	StartAt       time.Time `json:"start_at"`
	EndAt         time.Time `json:"end_at"`
	LocalDate     string    `json:"local_date"`
	LocalTime     string    `json:"local_time"`
	PointsDebited int64     `json:"points_debited"`
	CreatedAt     time.Time `json:"created_at"`
}

func (BookingCreatedV1) EventType() string { return TypeBookingCreated }

type BookingCanceledV1 struct {
	AppointmentID  string    `json:"appointment_id"`
	ClientID       string    `json:"client_id"`
	ProviderID     string    `json:"provider_id"`
	CanceledBy     string    `json:"canceled_by"`
	StartAt        time.Time `json:"start_at"`
	LocalDate      string    `json:"local_date"`
	LocalTime      string    `json:"local_time"`
	PointsRefunded int64     `json:"points_refunded"`
	Released       bool      `json:"released"`
	CanceledAt     time.Time `json:"canceled_at"`
}

func (BookingCanceledV1) EventType() string { return TypeBookingCanceled }

type BookingStatusChangedV1 struct {
	AppointmentID string    `json:"appointment_id"`
	ClientID      string    `json:"client_id"`
	ProviderID    string    `json:"provider_id"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	ChangedBy     string    `json:"changed_by"`
	ChangedAt     time.Time `json:"changed_at"`
}

func (BookingStatusChangedV1) EventType() string { return TypeBookingStatusChanged }
