package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/barber-booking/internal/apperrors"
	"github.com/wolfman30/barber-booking/internal/slotcache"
)

type failingRules struct{ RuleStore }

func (failingRules) ProviderExists(context.Context, string) (bool, error) {
	return false, context.DeadlineExceeded
}

func newTestService(t *testing.T, cache slotcache.Cache, busy BusyLister) *Service {
	t.Helper()
	conv := testConverter(t)
	rules := mondayRules(t, "09:00", "17:00")
	gen := NewGenerator(rules, conv, 30*time.Minute).WithClock(func() time.Time { return fixedAt })
	return NewService(rules, gen, NewResolver(busy, conv), cache, time.Second, nil)
}

func TestGetAvailableSlotsScenario(t *testing.T) {
	svc := newTestService(t, nil, &fakeBusy{})

	res, err := svc.GetAvailableSlots(context.Background(), "barber-1", "2026-03-02", "")
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	require.Len(t, res.Slots, 16)
	assert.Equal(t, "09:00", res.Slots[0])
	assert.Equal(t, "16:30", res.Slots[15])
}

func TestGetAvailableSlotsUsesCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	busy := &fakeBusy{}
	svc := newTestService(t, slotcache.NewRedisCache(client, time.Minute, time.Second, nil), busy)
	ctx := context.Background()

	first, err := svc.GetAvailableSlots(ctx, "barber-1", "2026-03-02", "Standard ")
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := svc.GetAvailableSlots(ctx, "barber-1", "2026-03-02", "standard")
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Slots, second.Slots)
	assert.Equal(t, 1, busy.calls)
	assert.True(t, mr.Exists("availability:barber-1:2026-03-02:standard"))
}

func TestGetAvailableSlotsCacheOutageFallsThrough(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.SetError("READONLY replica")

	svc := newTestService(t, slotcache.NewRedisCache(client, time.Minute, 50*time.Millisecond, nil), &fakeBusy{})
	res, err := svc.GetAvailableSlots(context.Background(), "barber-1", "2026-03-02", "standard")
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Len(t, res.Slots, 16)
}

func TestGetAvailableSlotsErrors(t *testing.T) {
	svc := newTestService(t, nil, &fakeBusy{})
	ctx := context.Background()

	_, err := svc.GetAvailableSlots(ctx, "barber-1", "02/03/2026", "")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))

	_, err = svc.GetAvailableSlots(ctx, "", "2026-03-02", "")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))

	_, err = svc.GetAvailableSlots(ctx, "nobody", "2026-03-02", "")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))

	broken := newTestService(t, nil, &fakeBusy{err: errors.New("connection refused")})
	_, err = broken.GetAvailableSlots(ctx, "barber-1", "2026-03-02", "")
	assert.True(t, errors.Is(err, apperrors.ErrUnavailable))

	conv := testConverter(t)
	rules := failingRules{RuleStore: mondayRules(t, "09:00", "17:00")}
	gen := NewGenerator(rules, conv, 30*time.Minute)
	timedOut := NewService(rules, gen, NewResolver(&fakeBusy{}, conv), nil, time.Second, nil)
	_, err = timedOut.GetAvailableSlots(ctx, "barber-1", "2026-03-02", "")
	assert.True(t, errors.Is(err, apperrors.ErrUnavailable))
}

func TestOpenProviders(t *testing.T) {
	svc := newTestService(t, nil, &fakeBusy{})
	ctx := context.Background()

	open, err := svc.OpenProviders(ctx, "2026-03-02", []string{" barber-1 ", "barber-2", ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"barber-1"}, open)

	open, err = svc.OpenProviders(ctx, "2026-03-01", []string{"barber-1"})
	require.NoError(t, err)
	assert.Empty(t, open)

	_, err = svc.OpenProviders(ctx, "tomorrow", []string{"barber-1"})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))
}

func TestNormalizePlan(t *testing.T) {
	assert.Equal(t, "standard", NormalizePlan(""))
	assert.Equal(t, "trial", NormalizePlan("  TRIAL "))
}
