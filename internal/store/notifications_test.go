// internal/store/notifications_test.go
package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "autohaven/internal/common/errors"
	"autohaven/internal/common/logger"
	"autohaven/internal/models"
)

var requestTestColumns = []string{
	"id", "listing_id", "recipient", "status", "provider_message_id",
	"attempts", "last_error", "created_at", "updated_at",
}

func newNotificationStore(t *testing.T) (*NotificationStore, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewNotificationStore(db, logger.NewTestLogger(t)), mock, func() { db.Close() }
}

func requestRow(id string, status models.SendStatus, messageID interface{}) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(requestTestColumns).AddRow(
		id, "listing-1", "buyer@example.com", string(status), messageID, 0, nil, now, now,
	)
}

func TestNotificationStore_Create(t *testing.T) {
	store, mock, done := newNotificationStore(t)
	defer done()

	mock.ExpectQuery(`INSERT INTO notification_requests`).
		WithArgs(sqlmock.AnyArg(), "listing-1", "buyer@example.com",
			string(models.SendPending), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(requestRow("req-1", models.SendPending, nil))

	request, err := store.Create(context.Background(), "listing-1", "buyer@example.com")

	require.NoError(t, err)
	assert.Equal(t, models.SendPending, request.Status)
	assert.Equal(t, 0, request.Attempts)
	assert.Nil(t, request.ProviderMessageID)
}

func TestNotificationStore_GetByPair_PrefersSent(t *testing.T) {
	store, mock, done := newNotificationStore(t)
	defer done()

	mock.ExpectQuery(`FROM notification_requests\s+WHERE listing_id = \$1 AND recipient = \$2`).
		WithArgs("listing-1", "buyer@example.com", string(models.SendSent)).
		WillReturnRows(requestRow("req-1", models.SendSent, "msg-123"))

	request, err := store.GetByPair(context.Background(), "listing-1", "buyer@example.com")

	require.NoError(t, err)
	assert.Equal(t, models.SendSent, request.Status)
	require.NotNil(t, request.ProviderMessageID)
	assert.Equal(t, "msg-123", *request.ProviderMessageID)
}

func TestNotificationStore_GetByPair_NotFound(t *testing.T) {
	store, mock, done := newNotificationStore(t)
	defer done()

	mock.ExpectQuery(`FROM notification_requests`).
		WillReturnRows(sqlmock.NewRows(requestTestColumns))

	_, err := store.GetByPair(context.Background(), "listing-1", "nobody@example.com")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
}

func TestNotificationStore_MarkSent_IsTerminal(t *testing.T) {
	store, mock, done := newNotificationStore(t)
	defer done()

	// The winning dispatch is counted alongside the receipt.
	mock.ExpectExec(`attempts = attempts \+ 1`).
		WithArgs(string(models.SendSent), "msg-123", sqlmock.AnyArg(), "req-1", string(models.SendPending)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.MarkSent(context.Background(), "req-1", "msg-123"))

	// A second MarkSent finds no PENDING row and conflicts instead of
	// silently rewriting the receipt.
	mock.ExpectExec(`UPDATE notification_requests`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.MarkSent(context.Background(), "req-1", "msg-456")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConflict))
}

func TestNotificationStore_RecordAttempt(t *testing.T) {
	store, mock, done := newNotificationStore(t)
	defer done()

	mock.ExpectExec(`SET attempts = attempts \+ 1`).
		WithArgs("connection reset", sqlmock.AnyArg(), "req-1", string(models.SendPending)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.RecordAttempt(context.Background(), "req-1", "connection reset"))
}

func TestNotificationStore_MarkFailed_OnlyPending(t *testing.T) {
	store, mock, done := newNotificationStore(t)
	defer done()

	mock.ExpectExec(`UPDATE notification_requests`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.MarkFailed(context.Background(), "req-1", "delivery attempts exhausted (3)")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeConflict))
}
