package bookings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/barber-booking/internal/ledger"
)

// anyInsertArgs matches the 13 bind parameters of the appointment insert.
func anyInsertArgs() []any {
	args := make([]any, 13)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

var appointmentCols = []string{
	"id", "client_id", "provider_id", "start_at", "end_at", "status", "kind", "price_cents",
	"points_cost", "payment_status", "idempotency_key", "created_at", "updated_at", "canceled_at",
}

func appointmentRow(id uuid.UUID, start time.Time, status Status) *pgxmock.Rows {
	return pgxmock.NewRows(appointmentCols).AddRow(
		id, "client-1", "barber-1", start, start.Add(30*time.Minute), string(status), string(KindStandard), int64(5000),
		int64(10), string(PaymentPointsDebited), "key-1", start.Add(-time.Hour), start.Add(-time.Hour), (*time.Time)(nil),
	)
}

func TestPostgresInTxCommitsBooking(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := newPostgresStoreWithDB(mock)
	start := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	appt := &Appointment{
		ID: uuid.New(), ClientID: "client-1", ProviderID: "barber-1", StartAt: start, EndAt: start.Add(30 * time.Minute),
		Status: StatusBooked, Kind: KindStandard, PriceCents: 5000, PointsCost: 10, PaymentStatus: PaymentPointsDebited,
		IdempotencyKey: "key-1", CreatedAt: start, UpdatedAt: start,
	}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT start_at, end_at").
		WithArgs("barber-1", appt.StartAt, appt.EndAt).
		WillReturnRows(pgxmock.NewRows([]string{"start_at", "end_at"}))
	mock.ExpectExec("pg_advisory_xact_lock").WithArgs("points:client-1").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectQuery("FROM points_ledger WHERE user_id").WithArgs("client-1").
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(int64(40)))
	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(appt.ID, "client-1", "barber-1", appt.StartAt, appt.EndAt, "BOOKED", "STANDARD",
			int64(5000), int64(10), "POINTS_DEBITED", "key-1", appt.CreatedAt, appt.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO points_ledger").
		WithArgs(pgxmock.AnyArg(), "client-1", int64(-10), ledger.ReasonBookingDebit, ledger.RefTypeAppointment, appt.ID.String(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err = store.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		busy, err := tx.ListActiveBetween(ctx, "barber-1", appt.StartAt, appt.EndAt)
		if err != nil {
			return err
		}
		assert.Empty(t, busy)
		if err := tx.LockUser(ctx, "client-1"); err != nil {
			return err
		}
		balance, err := tx.Balance(ctx, "client-1")
		if err != nil {
			return err
		}
		assert.Equal(t, int64(40), balance)
		if err := tx.InsertAppointment(ctx, appt); err != nil {
			return err
		}
		return tx.AppendLedger(ctx, &ledger.Entry{
			UserID: "client-1", Delta: -10, Reason: ledger.ReasonBookingDebit,
			RefType: ledger.RefTypeAppointment, RefID: appt.ID.String(),
		})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertMapsConstraintViolations(t *testing.T) {
	cases := []struct {
		name string
		err  *pgconn.PgError
		want error
	}{
		{"active slot index", &pgconn.PgError{Code: "23505", ConstraintName: "appointments_provider_start_active_idx"}, ErrSlotTaken},
		{"overlap exclusion", &pgconn.PgError{Code: "23P01", ConstraintName: "appointments_no_overlap"}, ErrSlotTaken},
		{"idempotency key", &pgconn.PgError{Code: "23505", ConstraintName: "appointments_idempotency_key_key"}, ErrDuplicateIdempotencyKey},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()
			store := newPostgresStoreWithDB(mock)

			mock.ExpectBegin()
			mock.ExpectExec("INSERT INTO appointments").WithArgs(anyInsertArgs()...).WillReturnError(tc.err)
			mock.ExpectRollback()

			err = store.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
				return tx.InsertAppointment(ctx, &Appointment{ID: uuid.New(), Status: StatusBooked})
			})
			assert.ErrorIs(t, err, tc.want)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresOtherErrorsPassThrough(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := newPostgresStoreWithDB(mock)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO appointments").WithArgs(anyInsertArgs()...).WillReturnError(&pgconn.PgError{Code: "42P01"})
	mock.ExpectRollback()

	err = store.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.InsertAppointment(ctx, &Appointment{ID: uuid.New(), Status: StatusBooked})
	})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrSlotTaken))
	var pgErr *pgconn.PgError
	assert.True(t, errors.As(err, &pgErr))
	require.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectBegin().WillReturnError(errors.New("pool closed"))
	err = store.InTx(context.Background(), func(context.Context, Tx) error { return nil })
	assert.ErrorContains(t, err, "begin tx")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCancelLocksAndUpdates(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := newPostgresStoreWithDB(mock)
	id := uuid.New()
	start := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	now := start.Add(-24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM appointments WHERE id = \\$1 FOR UPDATE").WithArgs(id).
		WillReturnRows(appointmentRow(id, start, StatusBooked))
	mock.ExpectQuery("AND ref_type = \\$2 AND ref_id = \\$3").
		WithArgs("client-1", ledger.RefTypeAppointment, id.String()).
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(int64(-10)))
	mock.ExpectExec("UPDATE appointments").
		WithArgs(id, "CANCELED", "REFUNDED", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err = store.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		appt, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		assert.Equal(t, StatusBooked, appt.Status)
		assert.Equal(t, "key-1", appt.IdempotencyKey)
		assert.Nil(t, appt.CanceledAt)
		net, err := tx.NetForRef(ctx, appt.ClientID, ledger.RefTypeAppointment, id.String())
		if err != nil {
			return err
		}
		assert.Equal(t, int64(-10), net)
		return tx.UpdateStatus(ctx, id, StatusCanceled, PaymentRefunded, now)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLookups(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := newPostgresStoreWithDB(mock)
	ctx := context.Background()
	id := uuid.New()
	start := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("WHERE idempotency_key = \\$1").WithArgs("key-1").
		WillReturnRows(appointmentRow(id, start, StatusBooked))
	found, err := store.FindByIdempotencyKey(ctx, "key-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, id, found.ID)

	mock.ExpectQuery("WHERE idempotency_key = \\$1").WithArgs("fresh").WillReturnError(pgx.ErrNoRows)
	found, err = store.FindByIdempotencyKey(ctx, "fresh")
	require.NoError(t, err)
	assert.Nil(t, found)

	missing := uuid.New()
	mock.ExpectQuery("FROM appointments WHERE id = \\$1").WithArgs(missing).WillReturnError(pgx.ErrNoRows)
	_, err = store.Get(ctx, missing)
	assert.ErrorIs(t, err, ErrNotFound)

	mock.ExpectQuery("SELECT start_at, end_at").
		WithArgs("barber-1", start, start.Add(24*time.Hour)).
		WillReturnRows(pgxmock.NewRows([]string{"start_at", "end_at"}).
			AddRow(start, start.Add(30*time.Minute)).
			AddRow(start.Add(2*time.Hour), start.Add(3*time.Hour)))
	busy, err := store.ListActiveBetween(ctx, "barber-1", start, start.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, busy, 2)
	assert.Equal(t, start.Add(2*time.Hour), busy[1].Start)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteMissingRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store := newPostgresStoreWithDB(mock)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM appointments WHERE id = \\$1").WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()

	err = store.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return tx.Delete(ctx, id)
	})
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
