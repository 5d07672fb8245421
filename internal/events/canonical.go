package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CanonicalEvent is a versioned booking event published to notification
// channels.
type CanonicalEvent interface {
	EventType() string
}

// Envelope is the wire form shared by the queue and broker channels.
// Timestamp is microseconds since the Unix epoch.
type Envelope struct {
	EventID         uuid.UUID       `json:"event_id"`
	EventType       string          `json:"event_type"`
	Aggregate       string          `json:"aggregate"`
	TimestampMicros int64           `json:"timestamp"`
	Recipient       string          `json:"recipient,omitempty"`
	Payload         json.RawMessage `json:"payload"`
}

type EnvelopeOption func(*Envelope)

func WithEventID(id uuid.UUID) EnvelopeOption {
	return func(e *Envelope) {
		if id == uuid.Nil {
			return
		}
		e.EventID = id
	}
}

func WithTimestamp(ts time.Time) EnvelopeOption {
	return func(e *Envelope) {
		if !ts.IsZero() {
			e.TimestampMicros = ts.UTC().UnixMicro()
		}
	}
}

// WithRecipient stamps the user the event is delivered to.
func WithRecipient(userID string) EnvelopeOption {
	return func(e *Envelope) { e.Recipient = strings.TrimSpace(userID) }
}

var (
	ErrNoAggregate = errors.New("events: aggregate required")
	ErrNoEvent     = errors.New("events: event required")

	nowFunc = time.Now
)

// NewEnvelope marshals evt into an Envelope keyed by aggregate, for example
// "appointment:<id>".
func NewEnvelope(aggregate string, evt CanonicalEvent, opts ...EnvelopeOption) (Envelope, error) {
	aggregate = strings.TrimSpace(aggregate)
	switch {
	case aggregate == "":
		return Envelope{}, ErrNoAggregate
	case evt == nil:
		return Envelope{}, ErrNoEvent
	}
	typ := strings.TrimSpace(evt.EventType())
	if typ == "" {
		return Envelope{}, fmt.Errorf("events: %T has no event type", evt)
	}
	raw, err := json.Marshal(evt)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: encode %s: %w", typ, err)
	}

	env := Envelope{
		EventID:         uuid.New(),
		EventType:       typ,
		Aggregate:       aggregate,
		TimestampMicros: nowFunc().UTC().UnixMicro(),
		Payload:         raw,
	}
	for _, apply := range opts {
		if apply != nil {
			apply(&env)
		}
	}
	return env, nil
}

// AggregateFor keys booking events by appointment so consumers can order them
// per appointment.
func AggregateFor(evt CanonicalEvent) string {
	var id string
	switch e := evt.(type) {
	case BookingCreatedV1:
		id = e.AppointmentID
	case BookingCanceledV1:
		id = e.AppointmentID
	case BookingStatusChangedV1:
		id = e.AppointmentID
	}
	if id == "" {
		return "booking"
	}
	return "appointment:" + id
}
