// Package ledger is the append-only points ledger. A user's balance is the sum
// of their entries and is never stored.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/barber-booking/internal/apperrors"
	"github.com/wolfman30/barber-booking/pkg/logging"
)

const (
	ReasonBookingDebit  = "booking_debit"
	ReasonBookingRefund = "booking_refund"

	RefTypeAppointment = "appointment"
)

// Entry is one signed change to a user's balance.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id"`
	Delta     int64     `json:"delta"`
	Reason    string    `json:"reason"`
	RefType   string    `json:"ref_type,omitempty"`
	RefID     string    `json:"ref_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Querier is satisfied by *pgxpool.Pool and pgx.Tx so the helpers below run
// inside or outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Balance sums every entry of the user.
func Balance(ctx context.Context, q Querier, userID string) (int64, error) {
	var balance int64
	err := q.QueryRow(ctx, `SELECT COALESCE(SUM(delta), 0)::bigint FROM points_ledger WHERE user_id = $1`, userID).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("ledger: balance: %w", err)
	}
	return balance, nil
}

// NetForRef sums the user's entries that reference one object.
func NetForRef(ctx context.Context, q Querier, userID, refType, refID string) (int64, error) {
	var net int64
	query := `
		SELECT COALESCE(SUM(delta), 0)::bigint
		FROM points_ledger
		WHERE user_id = $1 AND ref_type = $2 AND ref_id = $3
	`
	if err := q.QueryRow(ctx, query, userID, refType, refID).Scan(&net); err != nil {
		return 0, fmt.Errorf("ledger: net for ref: %w", err)
	}
	return net, nil
}

// Append inserts an entry, filling in id and timestamp when unset.
func Append(ctx context.Context, q Querier, entry *Entry) error {
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
	query := `
		INSERT INTO points_ledger (id, user_id, delta, reason, ref_type, ref_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := q.Exec(ctx, query, entry.ID, entry.UserID, entry.Delta, entry.Reason, nullable(entry.RefType), nullable(entry.RefID), entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("ledger: append: %w", err)
	}
	return nil
}

// History lists the user's newest entries first.
func History(ctx context.Context, q Querier, userID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := `
		SELECT id, user_id, delta, reason, COALESCE(ref_type, ''), COALESCE(ref_id, ''), created_at
		FROM points_ledger
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2
	`
	rows, err := q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Delta, &e.Reason, &e.RefType, &e.RefID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ledger: scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: history: %w", err)
	}
	return entries, nil
}

// LockUser takes a transaction-scoped advisory lock on the user's ledger so
// two concurrent debits cannot both pass the balance check. q must be a tx.
func LockUser(ctx context.Context, q Querier, userID string) error {
	if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "points:"+userID); err != nil {
		return fmt.Errorf("ledger: lock user: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Source is where a Reader loads entries from.
type Source interface {
	Balance(ctx context.Context, userID string) (int64, error)
	History(ctx context.Context, userID string, limit int) ([]Entry, error)
}

// PostgresSource reads points_ledger through a pool.
type PostgresSource struct {
	db Querier
}

func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	if pool == nil {
		panic("ledger: pgx pool required")
	}
	return &PostgresSource{db: pool}
}

func newPostgresSourceWithQuerier(q Querier) *PostgresSource {
	return &PostgresSource{db: q}
}

func (s *PostgresSource) Balance(ctx context.Context, userID string) (int64, error) {
	return Balance(ctx, s.db, userID)
}

func (s *PostgresSource) History(ctx context.Context, userID string, limit int) ([]Entry, error) {
	return History(ctx, s.db, userID, limit)
}

// Reader serves balance queries outside the booking transaction.
type Reader struct {
	src     Source
	timeout time.Duration
	logger  *logging.Logger
}

func NewReader(src Source, timeout time.Duration, logger *logging.Logger) *Reader {
	if src == nil {
		panic("ledger: source required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Reader{src: src, timeout: timeout, logger: logger.Component("ledger")}
}

func (r *Reader) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *Reader) Balance(ctx context.Context, userID string) (int64, error) {
	const op = "ledger.balance"
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, apperrors.InvalidArgument(op, "user id is required")
	}
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	balance, err := r.src.Balance(ctx, userID)
	if err != nil {
		r.logger.Error("balance lookup failed", "user_id", userID, "error", err)
		return 0, apperrors.Unavailable(op, err)
	}
	return balance, nil
}

func (r *Reader) History(ctx context.Context, userID string, limit int) ([]Entry, error) {
	const op = "ledger.history"
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.InvalidArgument(op, "user id is required")
	}
	ctx, cancel := r.bounded(ctx)
	defer cancel()
	entries, err := r.src.History(ctx, userID, limit)
	if err != nil {
		r.logger.Error("ledger history failed", "user_id", userID, "error", err)
		return nil, apperrors.Unavailable(op, err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}
