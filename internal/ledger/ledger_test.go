package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/barber-booking/internal/apperrors"
)

func TestBalanceAndNetForRef(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	ctx := context.Background()

	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(delta\\), 0\\)::bigint FROM points_ledger WHERE user_id").
		WithArgs("client-1").
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(int64(25)))
	balance, err := Balance(ctx, mock, "client-1")
	require.NoError(t, err)
	assert.Equal(t, int64(25), balance)

	mock.ExpectQuery("AND ref_type = \\$2 AND ref_id = \\$3").
		WithArgs("client-1", RefTypeAppointment, "appt-1").
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(int64(-10)))
	net, err := NetForRef(ctx, mock, "client-1", RefTypeAppointment, "appt-1")
	require.NoError(t, err)
	assert.Equal(t, int64(-10), net)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendFillsDefaults(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO points_ledger").
		WithArgs(pgxmock.AnyArg(), "client-1", int64(-10), ReasonBookingDebit, RefTypeAppointment, "appt-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	entry := &Entry{UserID: "client-1", Delta: -10, Reason: ReasonBookingDebit, RefType: RefTypeAppointment, RefID: "appt-1"}
	require.NoError(t, Append(context.Background(), mock, entry))
	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendRejectsInvalidEntries(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	assert.Error(t, Append(context.Background(), mock, &Entry{Delta: 5}))
	assert.Error(t, Append(context.Background(), mock, &Entry{UserID: "client-1"}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("pg_advisory_xact_lock").WithArgs("points:client-1").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	require.NoError(t, LockUser(context.Background(), mock, "client-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReaderBalanceAndHistory(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	reader := NewReader(newPostgresSourceWithQuerier(mock), time.Second, nil)
	ctx := context.Background()

	mock.ExpectQuery("FROM points_ledger WHERE user_id").WithArgs("client-1").
		WillReturnRows(pgxmock.NewRows([]string{"sum"}).AddRow(int64(40)))
	balance, err := reader.Balance(ctx, " client-1 ")
	require.NoError(t, err)
	assert.Equal(t, int64(40), balance)

	now := time.Now().UTC()
	id := uuid.New()
	mock.ExpectQuery("ORDER BY created_at DESC").WithArgs("client-1", 50).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "delta", "reason", "ref_type", "ref_id", "created_at"}).
			AddRow(id, "client-1", int64(10), ReasonBookingRefund, RefTypeAppointment, "appt-1", now))
	entries, err := reader.History(ctx, "client-1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ID)
	assert.Equal(t, int64(10), entries[0].Delta)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReaderClassifiesFailures(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	reader := NewReader(newPostgresSourceWithQuerier(mock), time.Second, nil)
	ctx := context.Background()

	_, err = reader.Balance(ctx, "")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidArgument))

	mock.ExpectQuery("FROM points_ledger").WithArgs("client-1").WillReturnError(errors.New("connection reset by peer"))
	_, err = reader.Balance(ctx, "client-1")
	assert.True(t, errors.Is(err, apperrors.ErrUnavailable))

	require.NoError(t, mock.ExpectationsWereMet())
}
