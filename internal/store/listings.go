// internal/store/listings.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	apperrors "autohaven/internal/common/errors"
	"autohaven/internal/common/logger"
	"autohaven/internal/models"
)

// MaxPageSize caps the limit of a single list query.
const MaxPageSize = 100

// ListingStore owns CarListing persistence. All durable listing mutation
// goes through here; workflow code holds transient copies only.
type ListingStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewListingStore(db *sql.DB, log logger.Logger) *ListingStore {
	return &ListingStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "listing-store"}),
	}
}

const listingColumns = `id, brand, model, year, mileage, price, engine_cm3, power_kw,
	image_url, description, pros, cons, status, created_at, updated_at`

func scanListing(row interface{ Scan(...interface{}) error }) (*models.CarListing, error) {
	var l models.CarListing
	var description sql.NullString
	var pros, cons pq.StringArray

	err := row.Scan(
		&l.ID, &l.Brand, &l.Model, &l.Year, &l.Mileage, &l.Price,
		&l.EngineCm3, &l.PowerKW, &l.ImageURL, &description,
		&pros, &cons, &l.Status, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if description.Valid {
		l.Description = &description.String
	}
	l.Pros = []string(pros)
	l.Cons = []string(cons)
	return &l, nil
}

func validateDraft(draft *models.ListingDraft) error {
	var problems []string
	if strings.TrimSpace(draft.Brand) == "" {
		problems = append(problems, "brand must not be empty")
	}
	if strings.TrimSpace(draft.Model) == "" {
		problems = append(problems, "model must not be empty")
	}
	if draft.Year <= 0 {
		problems = append(problems, "year must be positive")
	}
	if draft.Mileage <= 0 {
		problems = append(problems, "mileage must be positive")
	}
	if draft.Price <= 0 {
		problems = append(problems, "price must be positive")
	}
	if len(problems) > 0 {
		return apperrors.NewValidationError(strings.Join(problems, "; "))
	}
	return nil
}

// Create inserts a new listing in RAW status with no generated content.
func (s *ListingStore) Create(ctx context.Context, draft *models.ListingDraft) (*models.CarListing, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	id := uuid.New().String()

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO car_listings
			(id, brand, model, year, mileage, price, engine_cm3, power_kw, image_url, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+listingColumns,
		id, draft.Brand, draft.Model, draft.Year, draft.Mileage, draft.Price,
		draft.EngineCm3, draft.PowerKW, draft.ImageURL, models.StatusRaw, now, now,
	)

	listing, err := scanListing(row)
	if err != nil {
		return nil, fmt.Errorf("insert listing: %w", err)
	}

	s.logger.Info("listing created", map[string]interface{}{
		"listingId": listing.ID,
		"brand":     listing.Brand,
		"model":     listing.Model,
	})
	return listing, nil
}

// Get returns a listing by id.
func (s *ListingStore) Get(ctx context.Context, id string) (*models.CarListing, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM car_listings WHERE id = $1`, id)

	listing, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("listing", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return listing, nil
}

// Update applies a partial field merge. The patch carries the updated_at
// the caller last read; the write only lands if the row has not moved on
// since, otherwise the caller gets a conflict and should re-read.
func (s *ListingStore) Update(ctx context.Context, id string, patch *models.ListingPatch) (*models.CarListing, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := checkPatchPairing(current, patch); err != nil {
		return nil, err
	}
	if patch.Price != nil && *patch.Price <= 0 {
		return nil, apperrors.NewValidationError("price must be positive")
	}
	if patch.Mileage != nil && *patch.Mileage <= 0 {
		return nil, apperrors.NewValidationError("mileage must be positive")
	}

	merged := *current
	if patch.Price != nil {
		merged.Price = *patch.Price
	}
	if patch.Mileage != nil {
		merged.Mileage = *patch.Mileage
	}
	if patch.ImageURL != nil {
		merged.ImageURL = *patch.ImageURL
	}
	if patch.Description != nil {
		merged.Description = patch.Description
	}
	if patch.Pros != nil {
		merged.Pros = patch.Pros
	}
	if patch.Cons != nil {
		merged.Cons = patch.Cons
	}

	var description interface{}
	if merged.Description != nil {
		description = *merged.Description
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE car_listings
		SET price = $1, mileage = $2, image_url = $3, description = $4,
		    pros = $5, cons = $6, updated_at = $7
		WHERE id = $8 AND updated_at = $9`,
		merged.Price, merged.Mileage, merged.ImageURL, description,
		pq.Array(merged.Pros), pq.Array(merged.Cons), time.Now().UTC(),
		id, patch.ReadUpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update listing: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update listing: %w", err)
	}
	if affected == 0 {
		// The row exists (we just read it), so the timestamp moved on.
		return nil, apperrors.NewConflictError(fmt.Sprintf("listing %s changed since read", id))
	}

	return s.Get(ctx, id)
}

// checkPatchPairing rejects patches that would leave the description and
// pros/cons halves of the generated content out of step.
func checkPatchPairing(current *models.CarListing, patch *models.ListingPatch) error {
	touchesContent := patch.Description != nil || patch.Pros != nil || patch.Cons != nil
	if !touchesContent {
		return nil
	}

	desc := current.Description
	pros := current.Pros
	cons := current.Cons
	if patch.Description != nil {
		desc = patch.Description
	}
	if patch.Pros != nil {
		pros = patch.Pros
	}
	if patch.Cons != nil {
		cons = patch.Cons
	}

	hasDesc := desc != nil && *desc != ""
	hasLists := len(pros) > 0 && len(cons) > 0
	if hasDesc != hasLists {
		return apperrors.NewValidationError("description and pros/cons must be set together")
	}
	return nil
}

// ListQuery describes a filtered, sorted, paginated listing query.
type ListQuery struct {
	Brand    string
	YearMin  int
	YearMax  int
	PriceMin float64
	PriceMax float64
	SortBy   string // price, year, created
	SortDesc bool
	Offset   int
	Limit    int
}

var sortColumns = map[string]string{
	"price":   "price",
	"year":    "year",
	"created": "created_at",
	"":        "created_at",
}

// List returns the matching page and the total match count. Ordering is
// deterministic: the requested sort column, then id ascending.
func (s *ListingStore) List(ctx context.Context, q ListQuery) ([]*models.CarListing, int, error) {
	sortCol, ok := sortColumns[q.SortBy]
	if !ok {
		return nil, 0, apperrors.NewValidationError(fmt.Sprintf("unsupported sort field: %s", q.SortBy))
	}
	direction := "ASC"
	if q.SortDesc {
		direction = "DESC"
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	var conditions []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.Brand != "" {
		conditions = append(conditions, "brand = "+arg(q.Brand))
	}
	if q.YearMin > 0 {
		conditions = append(conditions, "year >= "+arg(q.YearMin))
	}
	if q.YearMax > 0 {
		conditions = append(conditions, "year <= "+arg(q.YearMax))
	}
	if q.PriceMin > 0 {
		conditions = append(conditions, "price >= "+arg(q.PriceMin))
	}
	if q.PriceMax > 0 {
		conditions = append(conditions, "price <= "+arg(q.PriceMax))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM car_listings"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count listings: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT %s FROM car_listings%s ORDER BY %s %s, id ASC LIMIT %s OFFSET %s",
		listingColumns, where, sortCol, direction, arg(limit), arg(offset),
	)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	var items []*models.CarListing
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan listing: %w", err)
		}
		items = append(items, listing)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list listings: %w", err)
	}

	return items, total, nil
}

// Delete removes a listing. Pending notification requests that still
// reference it are failed in the same transaction so they can never be
// dispatched against a missing record.
func (s *ListingStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE notification_requests
		SET status = $1, last_error = $2, updated_at = $3
		WHERE listing_id = $4 AND status = $5`,
		models.SendFailed, "listing deleted", time.Now().UTC(), id, models.SendPending,
	)
	if err != nil {
		return fmt.Errorf("fail pending requests: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM car_listings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	if affected == 0 {
		return apperrors.NewNotFoundError("listing", id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}

	s.logger.Info("listing deleted", map[string]interface{}{"listingId": id})
	return nil
}

// ClaimStatus is the single compare-and-swap used to serialize workflow
// transitions: the write lands only if the listing is still in the expected
// status. A losing racer gets zero rows affected and a conflict.
func (s *ListingStore) ClaimStatus(ctx context.Context, id string, from, to models.EnrichmentStatus) error {
	if !models.CanTransition(from, to) {
		return apperrors.NewPreconditionError(fmt.Sprintf("illegal transition %s -> %s", from, to))
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE car_listings SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`,
		to, time.Now().UTC(), id, from,
	)
	if err != nil {
		return fmt.Errorf("claim status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim status: %w", err)
	}
	if affected == 0 {
		return apperrors.NewConflictError(fmt.Sprintf("listing %s not in status %s", id, from))
	}
	return nil
}

// SetGenerated writes the generated content and advances GENERATING -> READY
// atomically.
func (s *ListingStore) SetGenerated(ctx context.Context, id string, description string, pros, cons []string) error {
	if description == "" || len(pros) == 0 || len(cons) == 0 {
		return apperrors.NewValidationError("generated content requires description, pros and cons")
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE car_listings
		SET description = $1, pros = $2, cons = $3, status = $4, updated_at = $5
		WHERE id = $6 AND status = $7`,
		description, pq.Array(pros), pq.Array(cons),
		models.StatusReady, time.Now().UTC(), id, models.StatusGenerating,
	)
	if err != nil {
		return fmt.Errorf("set generated content: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set generated content: %w", err)
	}
	if affected == 0 {
		return apperrors.NewConflictError(fmt.Sprintf("listing %s no longer generating", id))
	}
	return nil
}
