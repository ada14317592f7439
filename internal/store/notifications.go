// internal/store/notifications.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "autohaven/internal/common/errors"
	"autohaven/internal/common/logger"
	"autohaven/internal/models"
)

// NotificationStore persists NotificationRequest lifecycle state. The
// orchestrator drives the lifecycle; this layer enforces that SENT is
// terminal and attempts only ever grow.
type NotificationStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewNotificationStore(db *sql.DB, log logger.Logger) *NotificationStore {
	return &NotificationStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "notification-store"}),
	}
}

const requestColumns = `id, listing_id, recipient, status, provider_message_id,
	attempts, last_error, created_at, updated_at`

func scanRequest(row interface{ Scan(...interface{}) error }) (*models.NotificationRequest, error) {
	var r models.NotificationRequest
	var messageID, lastError sql.NullString

	err := row.Scan(
		&r.ID, &r.ListingID, &r.Recipient, &r.Status,
		&messageID, &r.Attempts, &lastError, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if messageID.Valid {
		r.ProviderMessageID = &messageID.String
	}
	if lastError.Valid {
		r.LastError = &lastError.String
	}
	return &r, nil
}

// Create inserts a PENDING request for the (listing, recipient) pair.
func (s *NotificationStore) Create(ctx context.Context, listingID, recipient string) (*models.NotificationRequest, error) {
	now := time.Now().UTC()
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO notification_requests
			(id, listing_id, recipient, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $6)
		RETURNING `+requestColumns,
		uuid.New().String(), listingID, recipient, models.SendPending, now, now,
	)

	request, err := scanRequest(row)
	if err != nil {
		return nil, fmt.Errorf("insert notification request: %w", err)
	}
	return request, nil
}

// Get returns a request by id.
func (s *NotificationStore) Get(ctx context.Context, id string) (*models.NotificationRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM notification_requests WHERE id = $1`, id)

	request, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("notification request", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get notification request: %w", err)
	}
	return request, nil
}

// GetByPair returns the most relevant request for a dedup pair: a SENT one
// if any exists, otherwise the newest. Returns NotFound when the pair has
// never been requested.
func (s *NotificationStore) GetByPair(ctx context.Context, listingID, recipient string) (*models.NotificationRequest, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+` FROM notification_requests
		WHERE listing_id = $1 AND recipient = $2
		ORDER BY (status = $3) DESC, created_at DESC
		LIMIT 1`,
		listingID, recipient, models.SendSent,
	)

	request, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("notification request", listingID+"/"+recipient)
	}
	if err != nil {
		return nil, fmt.Errorf("get notification request by pair: %w", err)
	}
	return request, nil
}

// MarkSent records the provider message id and advances PENDING -> SENT,
// counting the dispatch attempt that succeeded. SENT is terminal, so the
// guard on the current status makes the write idempotent against racing
// callers.
func (s *NotificationStore) MarkSent(ctx context.Context, id, providerMessageID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notification_requests
		SET status = $1, provider_message_id = $2, attempts = attempts + 1,
			last_error = NULL, updated_at = $3
		WHERE id = $4 AND status = $5`,
		models.SendSent, providerMessageID, time.Now().UTC(), id, models.SendPending,
	)
	if err != nil {
		return fmt.Errorf("mark request sent: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark request sent: %w", err)
	}
	if affected == 0 {
		return apperrors.NewConflictError(fmt.Sprintf("request %s not pending", id))
	}
	return nil
}

// RecordAttempt increments the attempt counter after a dispatch attempt and
// stores the transient error that caused it.
func (s *NotificationStore) RecordAttempt(ctx context.Context, id string, lastError string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notification_requests
		SET attempts = attempts + 1, last_error = $1, updated_at = $2
		WHERE id = $3 AND status = $4`,
		lastError, time.Now().UTC(), id, models.SendPending,
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	if affected == 0 {
		return apperrors.NewConflictError(fmt.Sprintf("request %s not pending", id))
	}
	return nil
}

// MarkFailed moves a PENDING request to FAILED with the terminal reason.
func (s *NotificationStore) MarkFailed(ctx context.Context, id string, reason string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notification_requests
		SET status = $1, last_error = $2, updated_at = $3
		WHERE id = $4 AND status = $5`,
		models.SendFailed, reason, time.Now().UTC(), id, models.SendPending,
	)
	if err != nil {
		return fmt.Errorf("mark request failed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark request failed: %w", err)
	}
	if affected == 0 {
		return apperrors.NewConflictError(fmt.Sprintf("request %s not pending", id))
	}

	s.logger.Warn("notification request failed", map[string]interface{}{
		"requestId": id,
		"reason":    reason,
	})
	return nil
}
