// internal/models/listing.go
package models

import "time"

// EnrichmentStatus tracks where a listing sits in the enrich-then-notify
// workflow.
type EnrichmentStatus string

const (
	StatusRaw              EnrichmentStatus = "RAW"
	StatusGenerating       EnrichmentStatus = "GENERATING"
	StatusReady            EnrichmentStatus = "READY"
	StatusGenerationFailed EnrichmentStatus = "GENERATION_FAILED"
	StatusDispatching      EnrichmentStatus = "DISPATCHING"
	StatusNotified         EnrichmentStatus = "NOTIFIED"
	StatusNotifyFailed     EnrichmentStatus = "NOTIFY_FAILED"
)

// Transitions is the authoritative transition table for listing statuses.
// Anything not listed here is an illegal transition.
var Transitions = map[EnrichmentStatus][]EnrichmentStatus{
	StatusRaw:              {StatusGenerating},
	StatusGenerating:       {StatusReady, StatusGenerationFailed},
	StatusGenerationFailed: {StatusGenerating},
	StatusReady:            {StatusGenerating, StatusDispatching},
	StatusDispatching:      {StatusNotified, StatusNotifyFailed},
	StatusNotified:         {StatusGenerating, StatusDispatching},
	StatusNotifyFailed:     {StatusDispatching},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to EnrichmentStatus) bool {
	for _, next := range Transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsValidStatus reports whether s is a known enrichment status.
func IsValidStatus(s EnrichmentStatus) bool {
	switch s {
	case StatusRaw, StatusGenerating, StatusReady, StatusGenerationFailed,
		StatusDispatching, StatusNotified, StatusNotifyFailed:
		return true
	}
	return false
}

// CarListing is a car record with descriptive and commercial attributes.
// Description and Pros/Cons are either both present or both absent; a
// listing in READY (or any post-READY status) always carries both.
type CarListing struct {
	ID          string           `json:"id"`
	Brand       string           `json:"brand"`
	Model       string           `json:"model"`
	Year        int              `json:"year"`
	Mileage     int              `json:"mileage"`
	Price       float64          `json:"price"`
	EngineCm3   int              `json:"engineCm3,omitempty"`
	PowerKW     int              `json:"powerKw,omitempty"`
	ImageURL    string           `json:"imageUrl,omitempty"`
	Description *string          `json:"description,omitempty"`
	Pros        []string         `json:"pros,omitempty"`
	Cons        []string         `json:"cons,omitempty"`
	Status      EnrichmentStatus `json:"status"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// HasGeneratedContent reports whether the listing carries both halves of the
// generated-content pair.
func (l *CarListing) HasGeneratedContent() bool {
	return l.Description != nil && len(l.Pros) > 0 && len(l.Cons) > 0
}

// ListingDraft is the caller-supplied input for creating a listing.
type ListingDraft struct {
	Brand     string  `json:"brand"`
	Model     string  `json:"model"`
	Year      int     `json:"year"`
	Mileage   int     `json:"mileage"`
	Price     float64 `json:"price"`
	EngineCm3 int     `json:"engineCm3,omitempty"`
	PowerKW   int     `json:"powerKw,omitempty"`
	ImageURL  string  `json:"imageUrl,omitempty"`
}

// ListingPatch is a partial update. Nil fields are left untouched.
// ReadUpdatedAt must echo the UpdatedAt the caller last read; the store
// rejects the patch with a conflict if the row moved on since.
type ListingPatch struct {
	Price         *float64  `json:"price,omitempty"`
	Mileage       *int      `json:"mileage,omitempty"`
	ImageURL      *string   `json:"imageUrl,omitempty"`
	Description   *string   `json:"description,omitempty"`
	Pros          []string  `json:"pros,omitempty"`
	Cons          []string  `json:"cons,omitempty"`
	ReadUpdatedAt time.Time `json:"readUpdatedAt"`
}
