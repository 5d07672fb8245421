package bookings

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/barber-booking/internal/availability"
	"github.com/wolfman30/barber-booking/internal/ledger"
)

type memoryState struct {
	appointments map[uuid.UUID]Appointment
	byKey        map[string]uuid.UUID
	entries      []ledger.Entry
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		appointments: make(map[uuid.UUID]Appointment, len(s.appointments)),
		byKey:        make(map[string]uuid.UUID, len(s.byKey)),
		entries:      append([]ledger.Entry(nil), s.entries...),
	}
	for id, a := range s.appointments {
		out.appointments[id] = a
	}
	for k, id := range s.byKey {
		out.byKey[k] = id
	}
	return out
}

// MemoryStore keeps appointments and ledger entries in process. Transactions
// are serialized by one lock and work on a copy that replaces the committed
// state only when the callback succeeds. The unique key and overlap rules of
// the Postgres schema are enforced on insert.
type MemoryStore struct {
	mu    sync.RWMutex
	state memoryState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: memoryState{
		appointments: make(map[uuid.UUID]Appointment),
		byKey:        make(map[string]uuid.UUID),
	}}
}

// SeedLedger appends fixture entries, e.g. opening balances in development.
func (s *MemoryStore) SeedLedger(entries ...ledger.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now().UTC()
		}
		s.state.entries = append(s.state.entries, e)
	}
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{state: s.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

func (s *MemoryStore) FindByIdempotencyKey(ctx context.Context, key string) (*Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.findByKey(key), nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.get(id)
}

func (s *MemoryStore) ListActiveBetween(ctx context.Context, providerID string, from, to time.Time) ([]availability.Interval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.activeBetween(providerID, from, to), nil
}

// Balance and History make the store a ledger.Source.
func (s *MemoryStore) Balance(ctx context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.balance(userID), nil
}

func (s *MemoryStore) History(ctx context.Context, userID string, limit int) ([]ledger.Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	s.mu.RLock()
	var out []ledger.Entry
	for _, e := range s.state.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s memoryState) findByKey(key string) *Appointment {
	id, ok := s.byKey[key]
	if !ok {
		return nil
	}
	a := s.appointments[id]
	return &a
}

func (s memoryState) get(id uuid.UUID) (*Appointment, error) {
	a, ok := s.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (s memoryState) activeBetween(providerID string, from, to time.Time) []availability.Interval {
	window := availability.Interval{Start: from, End: to}
	var out []availability.Interval
	for _, a := range s.appointments {
		if a.ProviderID != providerID || !a.Status.Active() {
			continue
		}
		iv := availability.Interval{Start: a.StartAt, End: a.EndAt}
		if iv.Overlaps(window) {
			out = append(out, iv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func (s memoryState) balance(userID string) int64 {
	var sum int64
	for _, e := range s.entries {
		if e.UserID == userID {
			sum += e.Delta
		}
	}
	return sum
}

type memTx struct {
	state memoryState
}

func (t *memTx) FindByIdempotencyKey(ctx context.Context, key string) (*Appointment, error) {
	return t.state.findByKey(key), nil
}

func (t *memTx) ListActiveBetween(ctx context.Context, providerID string, from, to time.Time) ([]availability.Interval, error) {
	return t.state.activeBetween(providerID, from, to), nil
}

// LockUser is a no-op: the store lock already serializes transactions.
func (t *memTx) LockUser(ctx context.Context, userID string) error { return nil }

func (t *memTx) Balance(ctx context.Context, userID string) (int64, error) {
	return t.state.balance(userID), nil
}

func (t *memTx) InsertAppointment(ctx context.Context, appt *Appointment) error {
	if appt == nil || appt.ID == uuid.Nil {
		return fmt.Errorf("bookings: insert appointment: id required")
	}
	if _, exists := t.state.appointments[appt.ID]; exists {
		return fmt.Errorf("bookings: insert appointment: duplicate id %s", appt.ID)
	}
	if appt.IdempotencyKey != "" {
		if _, taken := t.state.byKey[appt.IdempotencyKey]; taken {
			return ErrDuplicateIdempotencyKey
		}
	}
	if appt.Status.Active() && len(t.state.activeBetween(appt.ProviderID, appt.StartAt, appt.EndAt)) > 0 {
		return ErrSlotTaken
	}
	t.state.appointments[appt.ID] = *appt
	if appt.IdempotencyKey != "" {
		t.state.byKey[appt.IdempotencyKey] = appt.ID
	}
	return nil
}

func (t *memTx) AppendLedger(ctx context.Context, entry *ledger.Entry) error {
	if entry == nil || entry.UserID == "" {
		return fmt.Errorf("ledger: append: user id required")
	}
	if entry.Delta == 0 {
		return fmt.Errorf("ledger: append: zero delta")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	t.state.entries = append(t.state.entries, *entry)
	return nil
}

func (t *memTx) NetForRef(ctx context.Context, userID, refType, refID string) (int64, error) {
	var sum int64
	for _, e := range t.state.entries {
		if e.UserID == userID && e.RefType == refType && e.RefID == refID {
			sum += e.Delta
		}
	}
	return sum, nil
}

func (t *memTx) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return t.state.get(id)
}

func (t *memTx) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, payment PaymentStatus, at time.Time) error {
	a, ok := t.state.appointments[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	a.PaymentStatus = payment
	a.UpdatedAt = at
	if status == StatusCanceled {
		canceledAt := at
		a.CanceledAt = &canceledAt
	}
	t.state.appointments[id] = a
	return nil
}

func (t *memTx) Delete(ctx context.Context, id uuid.UUID) error {
	a, ok := t.state.appointments[id]
	if !ok {
		return ErrNotFound
	}
	delete(t.state.appointments, id)
	if a.IdempotencyKey != "" {
		delete(t.state.byKey, a.IdempotencyKey)
	}
	return nil
}

var (
	_ Store                   = (*MemoryStore)(nil)
	_ ledger.Source           = (*MemoryStore)(nil)
	_ availability.BusyLister = (*MemoryStore)(nil)
)
