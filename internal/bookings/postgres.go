package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/barber-booking/internal/availability"
	"github.com/wolfman30/barber-booking/internal/ledger"
)

const (
	pgUniqueViolation    = "23505"
	pgExclusionViolation = "23P01"

	constraintIdempotencyKey = "appointments_idempotency_key_key"
)

type db interface {
	ledger.Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore keeps appointments in Postgres. Double booking is rejected by
// the partial unique index on (provider_id, start_at) and the overlap
// exclusion constraint, so concurrent inserts lose at commit time.
type PostgresStore struct {
	db db
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("bookings: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

func newPostgresStoreWithDB(d db) *PostgresStore {
	return &PostgresStore{db: d}
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("bookings: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapWriteError(fmt.Errorf("bookings: commit: %w", err))
	}
	return nil
}

func (s *PostgresStore) FindByIdempotencyKey(ctx context.Context, key string) (*Appointment, error) {
	return findByIdempotencyKey(ctx, s.db, key)
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return getAppointment(ctx, s.db, id, false)
}

func (s *PostgresStore) ListActiveBetween(ctx context.Context, providerID string, from, to time.Time) ([]availability.Interval, error) {
	return listActiveBetween(ctx, s.db, providerID, from, to)
}

type pgTx struct {
	q ledger.Querier
}

func (t *pgTx) FindByIdempotencyKey(ctx context.Context, key string) (*Appointment, error) {
	return findByIdempotencyKey(ctx, t.q, key)
}

func (t *pgTx) ListActiveBetween(ctx context.Context, providerID string, from, to time.Time) ([]availability.Interval, error) {
	return listActiveBetween(ctx, t.q, providerID, from, to)
}

func (t *pgTx) LockUser(ctx context.Context, userID string) error {
	return ledger.LockUser(ctx, t.q, userID)
}

func (t *pgTx) Balance(ctx context.Context, userID string) (int64, error) {
	return ledger.Balance(ctx, t.q, userID)
}

func (t *pgTx) InsertAppointment(ctx context.Context, appt *Appointment) error {
	query := `
		INSERT INTO appointments (
			id, client_id, provider_id, start_at, end_at, status, kind,
			price_cents, points_cost, payment_status, idempotency_key, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := t.q.Exec(ctx, query,
		appt.ID, appt.ClientID, appt.ProviderID, appt.StartAt, appt.EndAt,
		string(appt.Status), string(appt.Kind), appt.PriceCents, appt.PointsCost,
		string(appt.PaymentStatus), nullableString(appt.IdempotencyKey), appt.CreatedAt, appt.UpdatedAt,
	)
	if err != nil {
		return mapWriteError(fmt.Errorf("bookings: insert appointment: %w", err))
	}
	return nil
}

func (t *pgTx) AppendLedger(ctx context.Context, entry *ledger.Entry) error {
	return ledger.Append(ctx, t.q, entry)
}

func (t *pgTx) NetForRef(ctx context.Context, userID, refType, refID string) (int64, error) {
	return ledger.NetForRef(ctx, t.q, userID, refType, refID)
}

func (t *pgTx) GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return getAppointment(ctx, t.q, id, true)
}

func (t *pgTx) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, payment PaymentStatus, at time.Time) error {
	query := `
		UPDATE appointments
		SET status = $2,
		    payment_status = $3,
		    updated_at = $4,
		    canceled_at = CASE WHEN $2 = 'CANCELED' THEN $4 ELSE canceled_at END
		WHERE id = $1
	`
	tag, err := t.q.Exec(ctx, query, id, string(status), string(payment), at)
	if err != nil {
		return fmt.Errorf("bookings: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("bookings: delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const appointmentColumns = `
	id, client_id, provider_id, start_at, end_at, status, kind, price_cents,
	points_cost, payment_status, COALESCE(idempotency_key, ''), created_at, updated_at, canceled_at
`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a                     Appointment
		status, kind, payment string
	)
	err := row.Scan(
		&a.ID, &a.ClientID, &a.ProviderID, &a.StartAt, &a.EndAt, &status, &kind,
		&a.PriceCents, &a.PointsCost, &payment, &a.IdempotencyKey, &a.CreatedAt, &a.UpdatedAt, &a.CanceledAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = Status(status)
	a.Kind = Kind(kind)
	a.PaymentStatus = PaymentStatus(payment)
	return &a, nil
}

func getAppointment(ctx context.Context, q ledger.Querier, id uuid.UUID, forUpdate bool) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	appt, err := scanAppointment(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("bookings: get appointment: %w", err)
	}
	return appt, nil
}

// findByIdempotencyKey returns nil when no appointment holds key.
func findByIdempotencyKey(ctx context.Context, q ledger.Querier, key string) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE idempotency_key = $1`
	appt, err := scanAppointment(q.QueryRow(ctx, query, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bookings: find by idempotency key: %w", err)
	}
	return appt, nil
}

func listActiveBetween(ctx context.Context, q ledger.Querier, providerID string, from, to time.Time) ([]availability.Interval, error) {
	query := `
		SELECT start_at, end_at
		FROM appointments
		WHERE provider_id = $1
		  AND status <> 'CANCELED'
		  AND start_at < $3
		  AND end_at > $2
		ORDER BY start_at
	`
	rows, err := q.Query(ctx, query, providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("bookings: list active: %w", err)
	}
	defer rows.Close()

	var out []availability.Interval
	for rows.Next() {
		var iv availability.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, fmt.Errorf("bookings: scan interval: %w", err)
		}
		out = append(out, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bookings: list active: %w", err)
	}
	return out, nil
}

// mapWriteError turns constraint violations into the store's sentinel errors.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		if pgErr.ConstraintName == constraintIdempotencyKey {
			return fmt.Errorf("%w: %v", ErrDuplicateIdempotencyKey, err)
		}
		return fmt.Errorf("%w: %v", ErrSlotTaken, err)
	case pgExclusionViolation:
		return fmt.Errorf("%w: %v", ErrSlotTaken, err)
	}
	return err
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ Store = (*PostgresStore)(nil)
