package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/barber-booking/internal/timezone"
)

// Slot is a candidate appointment start with its UTC interval.
type Slot struct {
	Date  timezone.Date
	Start timezone.Clock
	From  time.Time
	To    time.Time
}

func (s Slot) Interval() Interval {
	return Interval{Start: s.From, End: s.To}
}

// Interval is a half-open [Start, End) span of time.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals share any instant.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && other.Start.Before(i.End)
}

// Generator enumerates a provider's candidate slots for a day.
type Generator struct {
	rules    RuleStore
	conv     *timezone.Converter
	duration time.Duration
	now      func() time.Time
}

func NewGenerator(rules RuleStore, conv *timezone.Converter, duration time.Duration) *Generator {
	if rules == nil {
		panic("availability: rule store required")
	}
	if conv == nil {
		panic("availability: timezone converter required")
	}
	if duration < time.Minute {
		panic("availability: slot duration must be at least one minute")
	}
	return &Generator{rules: rules, conv: conv, duration: duration, now: time.Now}
}

// WithClock overrides the clock used to drop slots that already started.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	if now != nil {
		g.now = now
	}
	return g
}

func (g *Generator) Duration() time.Duration { return g.duration }

func (g *Generator) Converter() *timezone.Converter { return g.conv }

// GenerateSlots returns the slots of the provider's rule for date's weekday,
// aligned to the rule start and stepping by the slot duration. Only slots that
// fit before the rule end are produced, and slots whose start has passed are
// dropped.
func (g *Generator) GenerateSlots(ctx context.Context, providerID string, date timezone.Date) ([]Slot, error) {
	rule, err := g.rules.RuleFor(ctx, providerID, date.Weekday())
	if err != nil {
		return nil, fmt.Errorf("availability: generate slots: %w", err)
	}
	if rule == nil {
		return []Slot{}, nil
	}

	now := g.now().UTC()
	slots := make([]Slot, 0, int(rule.End-rule.Start)/int(g.duration/time.Minute))
	for start := rule.Start; start.Add(g.duration) <= rule.End; start = start.Add(g.duration) {
		from := g.conv.ToUTC(date, start)
		if from.Before(now) {
			continue
		}
		slots = append(slots, Slot{
			Date:  date,
			Start: start,
			From:  from,
			To:    from.Add(g.duration),
		})
	}
	return slots, nil
}

// SlotAt returns the generated slot starting at clock, if the provider offers it.
func (g *Generator) SlotAt(ctx context.Context, providerID string, date timezone.Date, clock timezone.Clock) (Slot, bool, error) {
	slots, err := g.GenerateSlots(ctx, providerID, date)
	if err != nil {
		return Slot{}, false, err
	}
	for _, s := range slots {
		if s.Start == clock {
			return s, true, nil
		}
	}
	return Slot{}, false, nil
}

// BusyLister returns the intervals held by non-canceled appointments of a
// provider that intersect [from, to).
type BusyLister interface {
	ListActiveBetween(ctx context.Context, providerID string, from, to time.Time) ([]Interval, error)
}

// Resolver drops candidate slots that collide with existing appointments.
type Resolver struct {
	busy BusyLister
	conv *timezone.Converter
}

func NewResolver(busy BusyLister, conv *timezone.Converter) *Resolver {
	if busy == nil {
		panic("availability: busy lister required")
	}
	if conv == nil {
		panic("availability: timezone converter required")
	}
	return &Resolver{busy: busy, conv: conv}
}

func (r *Resolver) RemoveConflicts(ctx context.Context, providerID string, date timezone.Date, slots []Slot) ([]Slot, error) {
	if len(slots) == 0 {
		return slots, nil
	}
	from, to := r.conv.DayBounds(date)
	// slots ending after local midnight still need their tail checked
	if last := slots[len(slots)-1].To; last.After(to) {
		to = last
	}
	busy, err := r.busy.ListActiveBetween(ctx, providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("availability: list busy intervals: %w", err)
	}
	return FilterConflicts(slots, busy), nil
}

// FilterConflicts keeps the slots that overlap none of the busy intervals.
func FilterConflicts(slots []Slot, busy []Interval) []Slot {
	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		free := true
		for _, b := range busy {
			if s.Interval().Overlaps(b) {
				free = false
				break
			}
		}
		if free {
			out = append(out, s)
		}
	}
	return out
}

// Clocks renders slot starts as HH:MM strings.
func Clocks(slots []Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.Start.String()
	}
	return out
}
