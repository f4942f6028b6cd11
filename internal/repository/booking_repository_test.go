package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestBookingRepositoryReserveSuccess(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE slots SET is_booked = true WHERE id = $1 AND is_booked = false")).
		WithArgs("slot-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO bookings").
		WithArgs(sqlmock.AnyArg(), "user-1", "slot-1", false, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	booking, err := repo.Reserve(context.Background(), "slot-1", "user-1", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, booking.ID)
	assert.Equal(t, "slot-1", booking.SlotID)
	assert.False(t, booking.IsPaid)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryReserveLostRace(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE slots SET is_booked = true WHERE id = $1 AND is_booked = false")).
		WithArgs("slot-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM slots WHERE id = $1)")).
		WithArgs("slot-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := repo.Reserve(context.Background(), "slot-1", "user-1", nil)
	assert.True(t, errors.Is(err, ErrSlotTaken))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryReserveUnknownSlot(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE slots SET is_booked = true WHERE id = $1 AND is_booked = false")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM slots WHERE id = $1)")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	_, err := repo.Reserve(context.Background(), "missing", "user-1", nil)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryMarkPaidIdempotent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE bookings SET is_paid = true, updated_at = $2 WHERE id = $1 AND is_paid = false")).
		WithArgs("bk-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM bookings WHERE id = $1)")).
		WithArgs("bk-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	// Already-paid booking: repeated callback settles without error.
	require.NoError(t, repo.MarkPaid(context.Background(), "bk-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryMarkPaidUnknownBooking(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE bookings SET is_paid = true, updated_at = $2 WHERE id = $1 AND is_paid = false")).
		WithArgs("missing", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM bookings WHERE id = $1)")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := repo.MarkPaid(context.Background(), "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryReleaseReopensSlot(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM bookings WHERE id = $1 AND is_paid = false RETURNING slot_id")).
		WithArgs("bk-1").
		WillReturnRows(sqlmock.NewRows([]string{"slot_id"}).AddRow("slot-1"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE slots SET is_booked = false WHERE id = $1")).
		WithArgs("slot-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Release(context.Background(), "bk-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryReleaseRefusesPaidBooking(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM bookings WHERE id = $1 AND is_paid = false RETURNING slot_id")).
		WithArgs("bk-paid").
		WillReturnRows(sqlmock.NewRows([]string{"slot_id"}))
	mock.ExpectRollback()

	err := repo.Release(context.Background(), "bk-paid")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryReleaseExpired(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	cutoff := time.Now().UTC().Add(-30 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery("DELETE FROM bookings").
		WithArgs(cutoff).
		WillReturnRows(sqlmock.NewRows([]string{"slot_id"}).AddRow("slot-1").AddRow("slot-2"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE slots SET is_booked = false WHERE id = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	released, err := repo.ReleaseExpired(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, 2, released)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryReleaseExpiredNothingToDo(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	cutoff := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("DELETE FROM bookings").
		WithArgs(cutoff).
		WillReturnRows(sqlmock.NewRows([]string{"slot_id"}))
	mock.ExpectCommit()

	released, err := repo.ReleaseExpired(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Zero(t, released)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepositoryListByConsumer(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewBookingRepository(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "consumer_id", "slot_id", "is_paid", "payment_reference", "created_at", "updated_at",
		"provider_name", "date", "start_time", "end_time",
	}).AddRow("bk-1", "user-1", "slot-1", true, "cs_123", now, now, "Dr. Example", now, "09:00", "10:00")

	mock.ExpectQuery("FROM bookings b").
		WithArgs("user-1").
		WillReturnRows(rows)

	list, err := repo.ListByConsumer(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Dr. Example", list[0].ProviderName)
	assert.True(t, list[0].IsPaid)
	assert.NoError(t, mock.ExpectationsWereMet())
}
