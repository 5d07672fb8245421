package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/barber-booking/internal/availability"
	"github.com/wolfman30/barber-booking/internal/timezone"
)

type ScheduleFile struct {
	Providers []Provider `json:"providers"`
	Balances  []Balance  `json:"balances"`
	Contacts  []Contact  `json:"contacts"`
}

type Provider struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Hours       []Hours `json:"hours"`
}

type Hours struct {
	Day   string `json:"day"`
	Start string `json:"start"`
	End   string `json:"end"`
}

type Balance struct {
	UserID string `json:"user_id"`
	Points int64  `json:"points"`
}

type Contact struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

const seedReason = "opening_balance"

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./scripts/seed-schedule <schedule-file.json>")
		fmt.Println("Example: go run ./scripts/seed-schedule testdata/sample-schedule.json")
		os.Exit(1)
	}

	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		fmt.Println("DATABASE_URL is required")
		os.Exit(1)
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Printf("Error reading file: %v\n", err)
		os.Exit(1)
	}
	schedule, rules, err := parseSchedule(data)
	if err != nil {
		fmt.Printf("Error parsing schedule: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		fmt.Printf("Error connecting: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := seed(ctx, pool, schedule, rules); err != nil {
		fmt.Printf("Seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Seeded %d providers, %d weekly rules, %d balances, %d contacts\n",
		len(schedule.Providers), len(rules), len(schedule.Balances), len(schedule.Contacts))
}

// parseSchedule decodes and validates the file, returning the weekly rules it
// describes.
func parseSchedule(data []byte) (ScheduleFile, []availability.WeeklyRule, error) {
	var schedule ScheduleFile
	if err := json.Unmarshal(data, &schedule); err != nil {
		return ScheduleFile{}, nil, fmt.Errorf("decode: %w", err)
	}
	var rules []availability.WeeklyRule
	for _, p := range schedule.Providers {
		if strings.TrimSpace(p.ID) == "" {
			return ScheduleFile{}, nil, errors.New("provider id is required")
		}
		for _, h := range p.Hours {
			day, ok := parseWeekday(h.Day)
			if !ok {
				return ScheduleFile{}, nil, fmt.Errorf("provider %s: unknown day %q", p.ID, h.Day)
			}
			start, err := timezone.ParseClock(h.Start)
			if err != nil {
				return ScheduleFile{}, nil, fmt.Errorf("provider %s %s: %w", p.ID, h.Day, err)
			}
			end, err := parseEnd(h.End)
			if err != nil {
				return ScheduleFile{}, nil, fmt.Errorf("provider %s %s: %w", p.ID, h.Day, err)
			}
			rule := availability.WeeklyRule{ProviderID: p.ID, Weekday: day, Start: start, End: end}
			if err := rule.Validate(); err != nil {
				return ScheduleFile{}, nil, err
			}
			rules = append(rules, rule)
		}
	}
	for _, b := range schedule.Balances {
		if b.UserID == "" || b.Points <= 0 {
			return ScheduleFile{}, nil, fmt.Errorf("balance for %q must be positive", b.UserID)
		}
	}
	return schedule, rules, nil
}

func parseEnd(raw string) (timezone.Clock, error) {
	if strings.TrimSpace(raw) == "24:00" {
		return timezone.NewClock(24, 0), nil
	}
	return timezone.ParseClock(raw)
}

func parseWeekday(raw string) (time.Weekday, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToLower(d.String()) == raw {
			return d, true
		}
	}
	return 0, false
}

// seed upserts everything in one transaction. Opening balances are written
// only for users without one, so re-running the seed does not double them.
func seed(ctx context.Context, pool *pgxpool.Pool, schedule ScheduleFile, rules []availability.WeeklyRule) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, p := range schedule.Providers {
		batch.Queue(`
			INSERT INTO providers (id, display_name) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name, active = TRUE
		`, p.ID, p.DisplayName)
		batch.Queue(`DELETE FROM weekly_availability WHERE provider_id = $1`, p.ID)
	}
	for _, r := range rules {
		batch.Queue(`
			INSERT INTO weekly_availability (provider_id, day_of_week, start_local, end_local)
			VALUES ($1, $2, $3::time, $4::time)
		`, r.ProviderID, int(r.Weekday), r.Start.String(), r.End.String())
	}
	for _, b := range schedule.Balances {
		batch.Queue(`
			INSERT INTO points_ledger (id, user_id, delta, reason, created_at)
			SELECT $1, $2, $3, $4, NOW()
			WHERE NOT EXISTS (SELECT 1 FROM points_ledger WHERE user_id = $2 AND reason = $4)
		`, uuid.New(), b.UserID, b.Points, seedReason)
	}
	for _, c := range schedule.Contacts {
		batch.Queue(`
			INSERT INTO user_contacts (user_id, email, display_name) VALUES ($1, $2, $3)
			ON CONFLICT (user_id) DO UPDATE SET email = EXCLUDED.email, display_name = EXCLUDED.display_name, updated_at = NOW()
		`, c.UserID, c.Email, c.Name)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("apply: %w", err)
	}
	return tx.Commit(ctx)
}
