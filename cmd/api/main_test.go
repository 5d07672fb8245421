package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/barber-booking/internal/config"
	"github.com/wolfman30/barber-booking/internal/notify"
)

func TestSetupMetricsExposesBookingMetrics(t *testing.T) {
	handler, m := setupMetrics()
	require.NotNil(t, handler)
	require.NotNil(t, m)

	m.ObserveBooking("STANDARD", "booked")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "barber_bookings_book_total"))
}

func TestSetupAWSClients(t *testing.T) {
	sqsClient, sesClient, err := setupAWSClients(context.Background(), &appconfig.Config{})
	require.NoError(t, err)
	assert.Nil(t, sqsClient)
	assert.Nil(t, sesClient)

	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	cfg := &appconfig.Config{
		AWSRegion:          "us-east-1",
		AWSAccessKeyID:     "test",
		AWSSecretAccessKey: "test",
		NotifyQueueURL:     "http://localhost:4566/000000000000/booking-events",
	}
	sqsClient, sesClient, err = setupAWSClients(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, sqsClient)
	assert.NotNil(t, sesClient)
}

func TestHealthChecks(t *testing.T) {
	assert.Empty(t, healthChecks(nil, nil))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	checks := healthChecks(nil, client)
	require.Contains(t, checks, "redis")
	assert.NoError(t, checks["redis"](context.Background()))
}

func TestContactDirectoryWithoutPool(t *testing.T) {
	dir := contactDirectory(&appconfig.Config{Env: "development"}, nil)
	_, ok := dir.(*notify.MemoryDirectory)
	require.True(t, ok)
	contact, err := dir.Lookup(context.Background(), "dev-client")
	require.NoError(t, err)
	assert.Equal(t, "dev-client@barber.local", contact.Email)

	_, err = contactDirectory(&appconfig.Config{Env: "production"}, nil).Lookup(context.Background(), "dev-client")
	assert.ErrorIs(t, err, notify.ErrNoContact)
}
