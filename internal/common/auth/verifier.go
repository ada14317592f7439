// internal/common/auth/verifier.go
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	apperrors "autohaven/internal/common/errors"
)

// Principal is the identity resolved by the credential-verification service.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Verifier resolves bearer tokens to principals. The API middleware depends
// on this interface so tests can substitute a stub.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

// Client talks to the external credential-verification service.
type Client struct {
	verifyURL  string
	httpClient *http.Client
}

// NewClient creates a verification client against the given endpoint.
func NewClient(verifyURL string, timeout time.Duration) *Client {
	return &Client{
		verifyURL:  strings.TrimSuffix(verifyURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Verify posts the token to the verification endpoint and returns the
// resolved principal. Any non-200 answer is an authentication failure; the
// caller never sees provider payloads.
func (c *Client) Verify(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, apperrors.NewAuthenticationError("missing credentials")
	}

	payload, _ := json.Marshal(map[string]string{"token": token})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.verifyURL, bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.NewAuthenticationError(fmt.Sprintf("build verify request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewAuthenticationError("verification service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.NewAuthenticationError(fmt.Sprintf("verification returned status %d", resp.StatusCode))
	}

	var principal Principal
	if err := json.NewDecoder(resp.Body).Decode(&principal); err != nil {
		return nil, apperrors.NewAuthenticationError("malformed verification response")
	}
	if principal.ID == "" {
		return nil, apperrors.NewAuthenticationError("verification response missing principal")
	}

	return &principal, nil
}
