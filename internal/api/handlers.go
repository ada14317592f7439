// internal/api/handlers.go
package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "autohaven/internal/common/errors"
	"autohaven/internal/common/logger"
	"autohaven/internal/models"
	"autohaven/internal/orchestrator"
	"autohaven/internal/store"
)

// ListingService is the listing CRUD capability behind the handlers.
type ListingService interface {
	Create(ctx context.Context, draft *models.ListingDraft) (*models.CarListing, error)
	Get(ctx context.Context, id string) (*models.CarListing, error)
	Update(ctx context.Context, id string, patch *models.ListingPatch) (*models.CarListing, error)
	List(ctx context.Context, q store.ListQuery) ([]*models.CarListing, int, error)
	Delete(ctx context.Context, id string) error
}

// WorkflowService is the enrich and notify capability behind the handlers.
type WorkflowService interface {
	Enrich(ctx context.Context, listingID string, regenerate bool) (*models.CarListing, error)
	Notify(ctx context.Context, listingID, recipient string) (*orchestrator.NotifyResult, error)
}

// Handler bundles the HTTP endpoints.
type Handler struct {
	listings  ListingService
	workflows WorkflowService
	logger    logger.Logger
}

func NewHandler(listings ListingService, workflows WorkflowService, log logger.Logger) *Handler {
	return &Handler{
		listings:  listings,
		workflows: workflows,
		logger:    log.WithFields(map[string]interface{}{"component": "api"}),
	}
}

// CreateListing handles POST /api/v1/cars.
func (h *Handler) CreateListing(c *gin.Context) {
	var req CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError(err.Error()))
		return
	}

	listing, err := h.listings.Create(c.Request.Context(), &models.ListingDraft{
		Brand:     req.Brand,
		Model:     req.Model,
		Year:      req.Year,
		Mileage:   req.Mileage,
		Price:     req.Price,
		EngineCm3: req.EngineCm3,
		PowerKW:   req.PowerKW,
		ImageURL:  req.ImageURL,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toListingResponse(listing))
}

// GetListing handles GET /api/v1/cars/:id.
func (h *Handler) GetListing(c *gin.Context) {
	id, ok := listingID(c)
	if !ok {
		return
	}

	listing, err := h.listings.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toListingResponse(listing))
}

// UpdateListing handles PATCH /api/v1/cars/:id. The request must carry the
// updatedAt the client last read; a stale value is rejected as a conflict.
func (h *Handler) UpdateListing(c *gin.Context) {
	id, ok := listingID(c)
	if !ok {
		return
	}

	var req UpdateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError(err.Error()))
		return
	}

	listing, err := h.listings.Update(c.Request.Context(), id, &models.ListingPatch{
		Price:         req.Price,
		Mileage:       req.Mileage,
		ImageURL:      req.ImageURL,
		Description:   req.Description,
		Pros:          req.Pros,
		Cons:          req.Cons,
		ReadUpdatedAt: req.UpdatedAt,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toListingResponse(listing))
}

// ListListings handles GET /api/v1/cars with filtering, sorting and
// offset pagination.
func (h *Handler) ListListings(c *gin.Context) {
	q := store.ListQuery{
		Brand:  c.Query("brand"),
		Offset: intQuery(c, "offset", 0),
		Limit:  intQuery(c, "limit", 20),
	}

	q.YearMin = intQuery(c, "yearMin", 0)
	q.YearMax = intQuery(c, "yearMax", 0)
	q.PriceMin = floatQuery(c, "priceMin", 0)
	q.PriceMax = floatQuery(c, "priceMax", 0)

	sort := c.Query("sort")
	if strings.HasPrefix(sort, "-") {
		q.SortDesc = true
		sort = sort[1:]
	}
	q.SortBy = sort

	items, total, err := h.listings.List(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := ListListingsResponse{
		Items:  make([]*ListingResponse, 0, len(items)),
		Total:  total,
		Offset: q.Offset,
		Limit:  q.Limit,
	}
	for _, l := range items {
		resp.Items = append(resp.Items, toListingResponse(l))
	}

	c.JSON(http.StatusOK, resp)
}

// DeleteListing handles DELETE /api/v1/cars/:id, admin only.
func (h *Handler) DeleteListing(c *gin.Context) {
	id, ok := listingID(c)
	if !ok {
		return
	}

	if err := h.listings.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// EnrichListing handles POST /api/v1/cars/:id/enrich.
func (h *Handler) EnrichListing(c *gin.Context) {
	id, ok := listingID(c)
	if !ok {
		return
	}

	var req EnrichRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, apperrors.NewValidationError(err.Error()))
			return
		}
	}

	listing, err := h.workflows.Enrich(c.Request.Context(), id, req.Regenerate)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toListingResponse(listing))
}

// NotifyListing handles POST /api/v1/cars/:id/notify.
func (h *Handler) NotifyListing(c *gin.Context) {
	id, ok := listingID(c)
	if !ok {
		return
	}

	var req NotifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.NewValidationError(err.Error()))
		return
	}

	result, err := h.workflows.Notify(c.Request.Context(), id, req.Recipient)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, NotifyResponse{
		ListingID:         id,
		Recipient:         req.Recipient,
		ProviderMessageID: result.ProviderMessageID,
		Deduplicated:      result.Deduplicated,
	})
}

// listingID validates the path id. An id that is not a UUID cannot name any
// listing, so it reads as not found rather than a malformed request.
func listingID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		respondError(c, apperrors.NewNotFoundError("car listing", id))
		return "", false
	}
	return id, true
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func floatQuery(c *gin.Context, name string, fallback float64) float64 {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return v
}
