// internal/api/handlers_test.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autohaven/internal/common/auth"
	apperrors "autohaven/internal/common/errors"
	"autohaven/internal/common/logger"
	"autohaven/internal/models"
	"autohaven/internal/orchestrator"
	"autohaven/internal/store"
)

// ==========================
// Stub Implementations
// ==========================

type stubVerifier struct {
	principals map[string]*auth.Principal
}

func (v *stubVerifier) Verify(ctx context.Context, token string) (*auth.Principal, error) {
	if p, ok := v.principals[token]; ok {
		return p, nil
	}
	return nil, apperrors.NewAuthenticationError("unknown token")
}

type stubListingService struct {
	listing *models.CarListing
	items   []*models.CarListing
	total   int
	err     error

	gotQuery store.ListQuery
	gotPatch *models.ListingPatch
	deleted  []string
}

func (s *stubListingService) Create(ctx context.Context, draft *models.ListingDraft) (*models.CarListing, error) {
	return s.listing, s.err
}

func (s *stubListingService) Get(ctx context.Context, id string) (*models.CarListing, error) {
	return s.listing, s.err
}

func (s *stubListingService) Update(ctx context.Context, id string, patch *models.ListingPatch) (*models.CarListing, error) {
	s.gotPatch = patch
	return s.listing, s.err
}

func (s *stubListingService) List(ctx context.Context, q store.ListQuery) ([]*models.CarListing, int, error) {
	s.gotQuery = q
	return s.items, s.total, s.err
}

func (s *stubListingService) Delete(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return s.err
}

type stubWorkflowService struct {
	listing      *models.CarListing
	notifyResult *orchestrator.NotifyResult
	err          error

	gotRegenerate bool
	gotRecipient  string
}

func (s *stubWorkflowService) Enrich(ctx context.Context, testListingID string, regenerate bool) (*models.CarListing, error) {
	s.gotRegenerate = regenerate
	return s.listing, s.err
}

func (s *stubWorkflowService) Notify(ctx context.Context, testListingID, recipient string) (*orchestrator.NotifyResult, error) {
	s.gotRecipient = recipient
	return s.notifyResult, s.err
}

// ==========================
// Test Helpers
// ==========================

const (
	testListingID = "11111111-1111-1111-1111-111111111111"
	userToken     = "user-token"
	adminToken    = "admin-token"
)

func testRouter(t *testing.T, listings ListingService, workflows WorkflowService) http.Handler {
	t.Helper()

	verifier := &stubVerifier{principals: map[string]*auth.Principal{
		userToken:  {ID: "u1", Email: "user@example.com", Role: string(models.RoleUser)},
		adminToken: {ID: "a1", Email: "admin@example.com", Role: string(models.RoleAdmin)},
	}}

	log := logger.NewTestLogger(t)
	return NewRouter(NewHandler(listings, workflows, log), verifier, log)
}

func doRequest(t *testing.T, router http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func testListing() *models.CarListing {
	return &models.CarListing{
		ID:        testListingID,
		Brand:     "Toyota",
		Model:     "Corolla",
		Year:      2019,
		Mileage:   42000,
		Price:     15500,
		Status:    models.StatusRaw,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

// ==========================
// Tests
// ==========================

func TestAPI_RequiresAuthentication(t *testing.T) {
	router := testRouter(t, &stubListingService{}, &stubWorkflowService{})

	for _, token := range []string{"", "garbage"} {
		rec := doRequest(t, router, http.MethodGet, "/api/v1/cars", token, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "AUTHENTICATION_FAILED", body.Code)
	}
}

func TestAPI_HealthIsOpen(t *testing.T) {
	router := testRouter(t, &stubListingService{}, &stubWorkflowService{})

	rec := doRequest(t, router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_CreateListing(t *testing.T) {
	listings := &stubListingService{listing: testListing()}
	router := testRouter(t, listings, &stubWorkflowService{})

	rec := doRequest(t, router, http.MethodPost, "/api/v1/cars", userToken, CreateListingRequest{
		Brand: "Toyota", Model: "Corolla", Year: 2019, Mileage: 42000, Price: 15500,
	})

	require.Equal(t, http.StatusCreated, rec.Code)

	var body ListingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, testListingID, body.ID)
	assert.Equal(t, "RAW", body.Status)
}

func TestAPI_CreateListing_MissingFields(t *testing.T) {
	router := testRouter(t, &stubListingService{}, &stubWorkflowService{})

	rec := doRequest(t, router, http.MethodPost, "/api/v1/cars", userToken,
		map[string]interface{}{"brand": "Toyota"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_GetListing_MalformedIDIsNotFound(t *testing.T) {
	router := testRouter(t, &stubListingService{}, &stubWorkflowService{})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/cars/not-a-uuid", userToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "NOT_FOUND", body.Code)
}

func TestAPI_GetListing_NotFound(t *testing.T) {
	listings := &stubListingService{err: apperrors.NewNotFoundError("listing", testListingID)}
	router := testRouter(t, listings, &stubWorkflowService{})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/cars/"+testListingID, userToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_ListListings_QueryParsing(t *testing.T) {
	listings := &stubListingService{items: []*models.CarListing{testListing()}, total: 1}
	router := testRouter(t, listings, &stubWorkflowService{})

	rec := doRequest(t, router, http.MethodGet,
		"/api/v1/cars?brand=Toyota&yearMin=2015&priceMax=20000&sort=-price&offset=20&limit=10",
		userToken, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Toyota", listings.gotQuery.Brand)
	assert.Equal(t, 2015, listings.gotQuery.YearMin)
	assert.Equal(t, 20000.0, listings.gotQuery.PriceMax)
	assert.Equal(t, "price", listings.gotQuery.SortBy)
	assert.True(t, listings.gotQuery.SortDesc)
	assert.Equal(t, 20, listings.gotQuery.Offset)
	assert.Equal(t, 10, listings.gotQuery.Limit)

	var body ListListingsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Total)
	assert.Len(t, body.Items, 1)
}

func TestAPI_UpdateListing_Conflict(t *testing.T) {
	listings := &stubListingService{err: apperrors.NewConflictError("listing changed since read")}
	router := testRouter(t, listings, &stubWorkflowService{})

	price := 14900.0
	rec := doRequest(t, router, http.MethodPatch, "/api/v1/cars/"+testListingID, userToken,
		UpdateListingRequest{Price: &price, UpdatedAt: time.Now().UTC()})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_DeleteListing_RequiresAdmin(t *testing.T) {
	listings := &stubListingService{}
	router := testRouter(t, listings, &stubWorkflowService{})

	rec := doRequest(t, router, http.MethodDelete, "/api/v1/cars/"+testListingID, userToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, listings.deleted)

	rec = doRequest(t, router, http.MethodDelete, "/api/v1/cars/"+testListingID, adminToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{testListingID}, listings.deleted)
}

func TestAPI_EnrichListing(t *testing.T) {
	ready := testListing()
	ready.Status = models.StatusReady
	workflows := &stubWorkflowService{listing: ready}
	router := testRouter(t, &stubListingService{}, workflows)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/cars/"+testListingID+"/enrich",
		userToken, EnrichRequest{Regenerate: true})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, workflows.gotRegenerate)

	var body ListingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "READY", body.Status)
}

func TestAPI_EnrichListing_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"already in progress", apperrors.NewAlreadyInProgressError(testListingID), http.StatusConflict},
		{"generation unavailable", apperrors.NewGenerationUnavailableError(fmt.Errorf("down")), http.StatusServiceUnavailable},
		{"parse failure", apperrors.NewGenerationParseError("bad shape"), http.StatusInternalServerError},
		{"not found", apperrors.NewNotFoundError("listing", testListingID), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workflows := &stubWorkflowService{err: tt.err}
			router := testRouter(t, &stubListingService{}, workflows)

			rec := doRequest(t, router, http.MethodPost, "/api/v1/cars/"+testListingID+"/enrich",
				userToken, nil)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestAPI_NotifyListing(t *testing.T) {
	workflows := &stubWorkflowService{notifyResult: &orchestrator.NotifyResult{
		ProviderMessageID: "msg-1",
	}}
	router := testRouter(t, &stubListingService{}, workflows)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/cars/"+testListingID+"/notify",
		userToken, NotifyRequest{Recipient: "buyer@example.com"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "buyer@example.com", workflows.gotRecipient)

	var body NotifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "msg-1", body.ProviderMessageID)
	assert.False(t, body.Deduplicated)
}

func TestAPI_NotifyListing_InvalidRecipient(t *testing.T) {
	router := testRouter(t, &stubListingService{}, &stubWorkflowService{})

	rec := doRequest(t, router, http.MethodPost, "/api/v1/cars/"+testListingID+"/notify",
		userToken, map[string]string{"recipient": "not-an-email"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_NotifyListing_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"precondition", apperrors.NewPreconditionError("listing is RAW"), http.StatusPreconditionFailed},
		{"rejected", apperrors.NewDeliveryRejectedError("suppressed"), http.StatusUnprocessableEntity},
		{"unavailable", apperrors.NewDeliveryUnavailableError(fmt.Errorf("down")), http.StatusServiceUnavailable},
		{"partial failure", apperrors.NewPartialFailureError("sent but not recorded"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workflows := &stubWorkflowService{err: tt.err}
			router := testRouter(t, &stubListingService{}, workflows)

			rec := doRequest(t, router, http.MethodPost, "/api/v1/cars/"+testListingID+"/notify",
				userToken, NotifyRequest{Recipient: "buyer@example.com"})
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestAPI_InternalErrorsHideDetails(t *testing.T) {
	listings := &stubListingService{err: apperrors.NewInternalError(fmt.Errorf("pq: connection refused"))}
	router := testRouter(t, listings, &stubWorkflowService{})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/cars/"+testListingID, userToken, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}
