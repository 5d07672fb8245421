// Package availability computes bookable slots from a provider's weekly hours
// minus the appointments already holding time on that day.
package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"github.com/wolfman30/barber-booking/internal/timezone"
)

// WeeklyRule is a provider's recurring open interval for one weekday, in
// business-local wall-clock time.
type WeeklyRule struct {
	ProviderID string
	Weekday    time.Weekday
	Start      timezone.Clock
	End        timezone.Clock
}

func (r WeeklyRule) Validate() error {
	if r.ProviderID == "" {
		return errors.New("availability: rule provider id required")
	}
	if r.Weekday < time.Sunday || r.Weekday > time.Saturday {
		return fmt.Errorf("availability: invalid weekday %d", r.Weekday)
	}
	if r.Start < 0 || r.End > 24*60 {
		return fmt.Errorf("availability: rule hours out of range %s-%s", r.Start, r.End)
	}
	if r.Start >= r.End {
		return fmt.Errorf("availability: rule start %s must be before end %s", r.Start, r.End)
	}
	return nil
}

// RuleStore is the read side of provider weekly availability.
type RuleStore interface {
	ProviderExists(ctx context.Context, providerID string) (bool, error)
	// RuleFor returns nil when the provider is closed on that weekday.
	RuleFor(ctx context.Context, providerID string, day time.Weekday) (*WeeklyRule, error)
	// ProvidersWithRules returns the subset of ids open on the weekday.
	ProvidersWithRules(ctx context.Context, providerIDs []string, day time.Weekday) ([]string, error)
}

type ruleQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore reads providers and weekly_availability.
type PostgresStore struct {
	db ruleQuerier
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("availability: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

func newPostgresStoreWithQuerier(q ruleQuerier) *PostgresStore {
	if q == nil {
		panic("availability: querier required")
	}
	return &PostgresStore{db: q}
}

func (s *PostgresStore) ProviderExists(ctx context.Context, providerID string) (bool, error) {
	var exists int
	err := s.db.QueryRow(ctx, `SELECT 1 FROM providers WHERE id = $1 AND active`, providerID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("availability: check provider: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) RuleFor(ctx context.Context, providerID string, day time.Weekday) (*WeeklyRule, error) {
	query := `
		SELECT to_char(start_local, 'HH24:MI'), to_char(end_local, 'HH24:MI')
		FROM weekly_availability
		WHERE provider_id = $1 AND day_of_week = $2
	`
	var rawStart, rawEnd string
	err := s.db.QueryRow(ctx, query, providerID, int(day)).Scan(&rawStart, &rawEnd)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("availability: load rule: %w", err)
	}
	start, err := timezone.ParseClock(rawStart)
	if err != nil {
		return nil, fmt.Errorf("availability: rule start: %w", err)
	}
	end, err := parseRuleEnd(rawEnd)
	if err != nil {
		return nil, fmt.Errorf("availability: rule end: %w", err)
	}
	rule := &WeeklyRule{ProviderID: providerID, Weekday: day, Start: start, End: end}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return rule, nil
}

// parseRuleEnd accepts 24:00 and 00:00 as closing at midnight.
func parseRuleEnd(raw string) (timezone.Clock, error) {
	if raw == "24:00" {
		return 24 * 60, nil
	}
	end, err := timezone.ParseClock(raw)
	if err != nil {
		return 0, err
	}
	if end == 0 {
		end = 24 * 60
	}
	return end, nil
}

func (s *PostgresStore) ProvidersWithRules(ctx context.Context, providerIDs []string, day time.Weekday) ([]string, error) {
	if len(providerIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT w.provider_id
		FROM weekly_availability w
		JOIN providers p ON p.id = w.provider_id
		WHERE w.provider_id = ANY($1) AND w.day_of_week = $2 AND p.active
		ORDER BY w.provider_id
	`
	rows, err := s.db.Query(ctx, query, pq.Array(providerIDs), int(day))
	if err != nil {
		return nil, fmt.Errorf("availability: list open providers: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("availability: scan provider: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("availability: list open providers: %w", err)
	}
	return out, nil
}

// MemoryRuleStore keeps rules in memory for local development and tests.
type MemoryRuleStore struct {
	mu        sync.RWMutex
	providers map[string]struct{}
	rules     map[string]map[time.Weekday]WeeklyRule
}

func NewMemoryRuleStore() *MemoryRuleStore {
	return &MemoryRuleStore{
		providers: make(map[string]struct{}),
		rules:     make(map[string]map[time.Weekday]WeeklyRule),
	}
}

// AddProvider registers a provider with no open hours.
func (s *MemoryRuleStore) AddProvider(providerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[providerID] = struct{}{}
}

// PutRule registers the provider if needed and replaces its rule for the weekday.
func (s *MemoryRuleStore) PutRule(rule WeeklyRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[rule.ProviderID] = struct{}{}
	byDay, ok := s.rules[rule.ProviderID]
	if !ok {
		byDay = make(map[time.Weekday]WeeklyRule)
		s.rules[rule.ProviderID] = byDay
	}
	byDay[rule.Weekday] = rule
	return nil
}

func (s *MemoryRuleStore) ProviderExists(ctx context.Context, providerID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.providers[providerID]
	return ok, nil
}

func (s *MemoryRuleStore) RuleFor(ctx context.Context, providerID string, day time.Weekday) (*WeeklyRule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[providerID][day]
	if !ok {
		return nil, nil
	}
	return &rule, nil
}

func (s *MemoryRuleStore) ProvidersWithRules(ctx context.Context, providerIDs []string, day time.Weekday) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, id := range providerIDs {
		if _, ok := s.rules[id][day]; ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

var (
	_ RuleStore = (*PostgresStore)(nil)
	_ RuleStore = (*MemoryRuleStore)(nil)
)
