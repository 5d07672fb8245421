package availability

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/barber-booking/internal/apperrors"
	"github.com/wolfman30/barber-booking/internal/observability/metrics"
	"github.com/wolfman30/barber-booking/internal/slotcache"
	"github.com/wolfman30/barber-booking/internal/timezone"
	"github.com/wolfman30/barber-booking/pkg/logging"
)

var availabilityTracer = otel.Tracer("barber.internal.availability")

// DefaultPlan is used when a request names no plan.
const DefaultPlan = "standard"

// Result is a provider's open slots for one day.
type Result struct {
	Slots     []string `json:"slots"`
	FromCache bool     `json:"from_cache"`
}

// Service answers availability queries through the cache.
type Service struct {
	rules        RuleStore
	generator    *Generator
	resolver     *Resolver
	cache        slotcache.Cache
	storeTimeout time.Duration
	metrics      *metrics.BookingMetrics
	logger       *logging.Logger
}

func NewService(rules RuleStore, generator *Generator, resolver *Resolver, cache slotcache.Cache, storeTimeout time.Duration, logger *logging.Logger) *Service {
	if rules == nil || generator == nil || resolver == nil {
		panic("availability: rules, generator and resolver required")
	}
	if cache == nil {
		cache = slotcache.Nop{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		rules:        rules,
		generator:    generator,
		resolver:     resolver,
		cache:        cache,
		storeTimeout: storeTimeout,
		logger:       logger.Component("availability"),
	}
}

func (s *Service) WithMetrics(m *metrics.BookingMetrics) *Service {
	s.metrics = m
	return s
}

// NormalizePlan lower-cases and trims plan, defaulting to DefaultPlan.
func NormalizePlan(plan string) string {
	plan = strings.ToLower(strings.TrimSpace(plan))
	if plan == "" {
		return DefaultPlan
	}
	return plan
}

func (s *Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}

// GetAvailableSlots returns the open HH:MM slot starts for a provider on a
// business-local date.
func (s *Service) GetAvailableSlots(ctx context.Context, providerID, rawDate, plan string) (Result, error) {
	const op = "availability.get_slots"
	ctx, span := availabilityTracer.Start(ctx, op)
	defer span.End()
	started := time.Now()

	providerID = strings.TrimSpace(providerID)
	if providerID == "" {
		return Result{}, apperrors.InvalidArgument(op, "provider id is required")
	}
	date, err := timezone.ParseDate(rawDate)
	if err != nil {
		return Result{}, err
	}
	plan = NormalizePlan(plan)
	span.SetAttributes(
		attribute.String("barber.provider_id", providerID),
		attribute.String("barber.date", date.String()),
		attribute.String("barber.plan", plan),
	)

	key := slotcache.Key{ProviderID: providerID, Date: date.String(), Plan: plan}
	if cached, ok := s.cache.Get(ctx, key); ok {
		span.SetAttributes(attribute.Bool("barber.from_cache", true))
		s.metrics.ObserveAvailability("cache", time.Since(started).Seconds())
		return Result{Slots: cached, FromCache: true}, nil
	}

	slots, err := s.compute(ctx, op, providerID, date)
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}
	out := Clocks(slots)
	s.cache.Set(ctx, key, out)
	s.metrics.ObserveAvailability("store", time.Since(started).Seconds())
	return Result{Slots: out, FromCache: false}, nil
}

func (s *Service) compute(ctx context.Context, op, providerID string, date timezone.Date) ([]Slot, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	exists, err := s.rules.ProviderExists(ctx, providerID)
	if err != nil {
		s.logger.Error("provider lookup failed", "provider_id", providerID, "error", err)
		return nil, apperrors.Unavailable(op, err)
	}
	if !exists {
		return nil, apperrors.InvalidArgument(op, "unknown provider "+providerID)
	}

	slots, err := s.generator.GenerateSlots(ctx, providerID, date)
	if err != nil {
		s.logger.Error("slot generation failed", "provider_id", providerID, "date", date.String(), "error", err)
		return nil, apperrors.Unavailable(op, err)
	}
	slots, err = s.resolver.RemoveConflicts(ctx, providerID, date, slots)
	if err != nil {
		s.logger.Error("conflict resolution failed", "provider_id", providerID, "date", date.String(), "error", err)
		return nil, apperrors.Unavailable(op, err)
	}
	return slots, nil
}

// OpenProviders filters providerIDs down to those with hours on rawDate's weekday.
func (s *Service) OpenProviders(ctx context.Context, rawDate string, providerIDs []string) ([]string, error) {
	const op = "availability.open_providers"
	date, err := timezone.ParseDate(rawDate)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(providerIDs))
	for _, id := range providerIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return []string{}, nil
	}

	ctx, cancel := s.storeContext(ctx)
	defer cancel()
	open, err := s.rules.ProvidersWithRules(ctx, ids, date.Weekday())
	if err != nil {
		s.logger.Error("open provider lookup failed", "date", date.String(), "error", err)
		return nil, apperrors.Unavailable(op, err)
	}
	if open == nil {
		open = []string{}
	}
	return open, nil
}
