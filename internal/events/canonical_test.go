package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type untypedEvent struct{}

func (untypedEvent) EventType() string { return "" }

func TestNewEnvelope(t *testing.T) {
	fixedNow := time.Unix(0, 123456000).UTC()
	prevNow := nowFunc
	nowFunc = func() time.Time { return fixedNow }
	t.Cleanup(func() { nowFunc = prevNow })

	id := uuid.MustParse("9a20d7d1-bf6a-4d33-bd55-5d25a816f1a8")
	evt := BookingCreatedV1{
		AppointmentID: "appt-1",
		ClientID:      "client-1",
		ProviderID:    "barber-1",
		Kind:          "STANDARD",
		LocalDate:     "2026-03-02",
		LocalTime:     "09:00",
		PointsDebited: 10,
	}
	env, err := NewEnvelope(AggregateFor(evt), evt, WithEventID(id), WithRecipient(" client-1 "))
	require.NoError(t, err)
	assert.Equal(t, id, env.EventID)
	assert.Equal(t, fixedNow.UnixMicro(), env.TimestampMicros)
	assert.Equal(t, TypeBookingCreated, env.EventType)
	assert.Equal(t, "appointment:appt-1", env.Aggregate)
	assert.Equal(t, "client-1", env.Recipient)

	var decoded BookingCreatedV1
	require.NoError(t, json.Unmarshal(env.Payload, &decoded))
	assert.Equal(t, "09:00", decoded.LocalTime)
	assert.Equal(t, int64(10), decoded.PointsDebited)
}

func TestNewEnvelopeOptions(t *testing.T) {
	ts := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
	env, err := NewEnvelope("appointment:1", BookingCanceledV1{AppointmentID: "1"}, WithTimestamp(ts), WithEventID(uuid.Nil), nil)
	require.NoError(t, err)
	assert.Equal(t, ts.UnixMicro(), env.TimestampMicros)
	assert.NotEqual(t, uuid.Nil, env.EventID)
}

func TestNewEnvelopeValidation(t *testing.T) {
	_, err := NewEnvelope(" ", BookingCanceledV1{})
	assert.ErrorIs(t, err, ErrNoAggregate)

	_, err = NewEnvelope("appointment:1", nil)
	assert.ErrorIs(t, err, ErrNoEvent)

	_, err = NewEnvelope("appointment:1", untypedEvent{})
	assert.ErrorContains(t, err, "no event type")
}

func TestAggregateFor(t *testing.T) {
	assert.Equal(t, "appointment:a", AggregateFor(BookingStatusChangedV1{AppointmentID: "a"}))
	assert.Equal(t, "booking", AggregateFor(BookingCreatedV1{}))
	assert.Equal(t, "booking", AggregateFor(untypedEvent{}))
}
