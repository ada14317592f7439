// internal/api/dto.go
package api

import (
	"time"

	"autohaven/internal/models"
)

// CreateListingRequest is the POST /cars body.
type CreateListingRequest struct {
	Brand     string  `json:"brand" binding:"required"`
	Model     string  `json:"model" binding:"required"`
	Year      int     `json:"year" binding:"required"`
	Mileage   int     `json:"mileage"`
	Price     float64 `json:"price" binding:"required"`
	EngineCm3 int     `json:"engineCm3"`
	PowerKW   int     `json:"powerKw"`
	ImageURL  string  `json:"imageUrl"`
}

// UpdateListingRequest is the PATCH /cars/:id body. Pointer fields
// distinguish "absent" from "set to zero". Pros and cons must be patched
// together with a description.
type UpdateListingRequest struct {
	Price       *float64  `json:"price"`
	Mileage     *int      `json:"mileage"`
	ImageURL    *string   `json:"imageUrl"`
	Description *string   `json:"description"`
	Pros        []string  `json:"pros"`
	Cons        []string  `json:"cons"`
	UpdatedAt   time.Time `json:"updatedAt" binding:"required"`
}

// EnrichRequest is the POST /cars/:id/enrich body.
type EnrichRequest struct {
	Regenerate bool `json:"regenerate"`
}

// NotifyRequest is the POST /cars/:id/notify body.
type NotifyRequest struct {
	Recipient string `json:"recipient" binding:"required,email"`
}

// ListingResponse mirrors a listing on the wire.
type ListingResponse struct {
	ID          string   `json:"id"`
	Brand       string   `json:"brand"`
	Model       string   `json:"model"`
	Year        int      `json:"year"`
	Mileage     int      `json:"mileage"`
	Price       float64  `json:"price"`
	EngineCm3   int      `json:"engineCm3"`
	PowerKW     int      `json:"powerKw"`
	ImageURL    string   `json:"imageUrl,omitempty"`
	Description *string  `json:"description"`
	Pros        []string `json:"pros"`
	Cons        []string `json:"cons"`
	Status      string   `json:"status"`
	CreatedAt   string   `json:"createdAt"`
	UpdatedAt   string   `json:"updatedAt"`
}

func toListingResponse(l *models.CarListing) *ListingResponse {
	return &ListingResponse{
		ID:          l.ID,
		Brand:       l.Brand,
		Model:       l.Model,
		Year:        l.Year,
		Mileage:     l.Mileage,
		Price:       l.Price,
		EngineCm3:   l.EngineCm3,
		PowerKW:     l.PowerKW,
		ImageURL:    l.ImageURL,
		Description: l.Description,
		Pros:        l.Pros,
		Cons:        l.Cons,
		Status:      string(l.Status),
		CreatedAt:   l.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   l.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// ListListingsResponse is a paginated page of listings.
type ListListingsResponse struct {
	Items  []*ListingResponse `json:"items"`
	Total  int                `json:"total"`
	Offset int                `json:"offset"`
	Limit  int                `json:"limit"`
}

// NotifyResponse reports a delivery, fresh or deduplicated.
type NotifyResponse struct {
	ListingID         string `json:"listingId"`
	Recipient         string `json:"recipient"`
	ProviderMessageID string `json:"providerMessageId,omitempty"`
	Deduplicated      bool   `json:"deduplicated"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}
