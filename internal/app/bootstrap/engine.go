package bootstrap

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/barber-booking/internal/availability"
	"github.com/wolfman30/barber-booking/internal/bookings"
	appconfig "github.com/wolfman30/barber-booking/internal/config"
	"github.com/wolfman30/barber-booking/internal/engine"
	"github.com/wolfman30/barber-booking/internal/identity"
	"github.com/wolfman30/barber-booking/internal/ledger"
	"github.com/wolfman30/barber-booking/internal/notify"
	"github.com/wolfman30/barber-booking/internal/observability/metrics"
	"github.com/wolfman30/barber-booking/internal/slotcache"
	"github.com/wolfman30/barber-booking/internal/timezone"
	"github.com/wolfman30/barber-booking/pkg/logging"
)

// EngineDeps are the runtime collaborators of the booking engine. Pool is
// ignored in memory-store mode; Redis and Notifier are optional.
type EngineDeps struct {
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Notifier notify.Notifier
	Metrics  *metrics.BookingMetrics
	Resolver identity.Resolver
}

// Runtime is the assembled engine plus what the HTTP layer needs beside it.
type Runtime struct {
	Engine   *engine.Engine
	Resolver identity.Resolver

	// Set in memory-store mode only.
	MemoryRules *availability.MemoryRuleStore
	MemoryStore *bookings.MemoryStore
}

// BuildEngine wires the availability service, booking manager and ledger
// reader over Postgres or the in-memory stores.
func BuildEngine(cfg *appconfig.Config, deps EngineDeps, logger *logging.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	settings := cfg.Engine
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	conv, err := timezone.NewConverter(settings.BusinessTimezone)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	resolver, err := buildResolver(cfg, deps.Resolver, logger)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Resolver: resolver}
	var (
		rules  availability.RuleStore
		store  bookings.Store
		busy   availability.BusyLister
		points ledger.Source
	)
	if cfg.UseMemoryStore {
		rt.MemoryRules = availability.NewMemoryRuleStore()
		rt.MemoryStore = bookings.NewMemoryStore()
		rules, store, busy, points = rt.MemoryRules, rt.MemoryStore, rt.MemoryStore, rt.MemoryStore
		logger.Warn("using in-memory stores; data is lost on restart")
	} else {
		if deps.Pool == nil {
			return nil, errors.New("bootstrap: postgres pool required")
		}
		pgBookings := bookings.NewPostgresStore(deps.Pool)
		rules = availability.NewPostgresStore(deps.Pool)
		store, busy = pgBookings, pgBookings
		points = ledger.NewPostgresSource(deps.Pool)
	}

	var cache slotcache.Cache = slotcache.Nop{}
	if deps.Redis != nil {
		cache = slotcache.NewRedisCache(deps.Redis, settings.CacheTTL, settings.CacheTimeout, logger).WithMetrics(deps.Metrics)
	}

	generator := availability.NewGenerator(rules, conv, settings.SlotDuration)
	slots := availability.NewService(rules, generator, availability.NewResolver(busy, conv), cache, settings.StoreTimeout, logger).
		WithMetrics(deps.Metrics)
	manager := bookings.NewManager(store, rules, generator, settings, logger).
		WithCache(cache).
		WithNotifier(deps.Notifier).
		WithMetrics(deps.Metrics)

	rt.Engine = engine.New(slots, manager, ledger.NewReader(points, settings.StoreTimeout, logger), resolver)
	return rt, nil
}

// Development tokens accepted when no JWT secret is configured.
const (
	DevClientToken   = "dev-client"
	DevProviderToken = "dev-provider"
	DevAdminToken    = "dev-admin"
	DevProviderID    = "barber-demo"
)

func buildResolver(cfg *appconfig.Config, override identity.Resolver, logger *logging.Logger) (identity.Resolver, error) {
	if override != nil {
		return override, nil
	}
	if strings.TrimSpace(cfg.AuthJWTSecret) != "" {
		return identity.NewJWTResolver(cfg.AuthJWTSecret), nil
	}
	if cfg.Env != "development" {
		return nil, errors.New("bootstrap: AUTH_JWT_SECRET is required outside development")
	}
	logger.Warn("AUTH_JWT_SECRET not set, accepting development tokens")
	return identity.NewStaticResolver().
		Add(DevClientToken, identity.User{ID: "dev-client", Role: identity.RoleClient}).
		Add(DevProviderToken, identity.User{ID: DevProviderID, Role: identity.RoleProvider}).
		Add(DevAdminToken, identity.User{ID: "dev-admin", Role: identity.RoleAdmin}), nil
}

// SeedDevelopment opens the demo provider Monday to Saturday 09:00-18:00 and
// gives the demo client an opening balance.
func SeedDevelopment(rt *Runtime, openingPoints int64) error {
	if rt == nil || rt.MemoryRules == nil || rt.MemoryStore == nil {
		return errors.New("bootstrap: development seed needs memory stores")
	}
	for day := time.Monday; day <= time.Saturday; day++ {
		err := rt.MemoryRules.PutRule(availability.WeeklyRule{
			ProviderID: DevProviderID,
			Weekday:    day,
			Start:      timezone.NewClock(9, 0),
			End:        timezone.NewClock(18, 0),
		})
		if err != nil {
			return fmt.Errorf("bootstrap: seed rules: %w", err)
		}
	}
	if openingPoints > 0 {
		rt.MemoryStore.SeedLedger(ledger.Entry{UserID: "dev-client", Delta: openingPoints, Reason: "opening_balance"})
	}
	return nil
}
