// internal/enrichment/service.go
package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	apperrors "autohaven/internal/common/errors"
	"autohaven/internal/common/logger"
	"autohaven/internal/common/metrics"
	"autohaven/internal/models"
)

// contentSchema is the contract the provider's answer must satisfy: one
// non-empty description and two non-empty string lists.
const contentSchema = `{
	"type": "object",
	"required": ["description", "pros", "cons"],
	"properties": {
		"description": {"type": "string", "minLength": 1},
		"pros": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}},
		"cons": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}}
	}
}`

// Service generates sales copy for a listing by calling an external
// chat-completions provider. It owns the retry budget for transient
// provider failures; persistence decisions belong to the orchestrator.
type Service struct {
	config *Config
	client *http.Client
	logger logger.Logger
	schema *gojsonschema.Schema
}

func NewService(config *Config, log logger.Logger) *Service {
	// Schema is a compile-time constant; a parse failure is a programming
	// error and surfaces on first use instead.
	schema, _ := gojsonschema.NewSchema(gojsonschema.NewStringLoader(contentSchema))

	return &Service{
		config: config,
		client: &http.Client{}, // timeouts come from the per-call context
		logger: log.WithFields(map[string]interface{}{"component": "content-generator"}),
		schema: schema,
	}
}

// Generate produces a description and pros/cons for the listing. Transient
// provider failures (timeouts, 429, 5xx) are retried with exponential
// backoff up to MaxRetries; a response that cannot be parsed into the
// contract shape is permanent and not retried.
func (s *Service) Generate(ctx context.Context, listing *models.CarListing) (*GeneratedContent, error) {
	if listing == nil || strings.TrimSpace(listing.Brand) == "" ||
		strings.TrimSpace(listing.Model) == "" || listing.Year <= 0 {
		return nil, apperrors.NewValidationError("listing requires brand, model and year for generation")
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model:       s.config.Model,
		Messages:    []chatMessage{{Role: "user", Content: buildPrompt(listing)}},
		MaxTokens:   s.config.MaxTokens,
		Temperature: s.config.Temperature,
	})
	if err != nil {
		return nil, apperrors.NewGenerationUnavailableError(err)
	}

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.GenerationRetries.Inc()
			backoff := s.config.BackoffBase * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, apperrors.NewGenerationUnavailableError(ctx.Err())
			}
		}

		// The request body is consumed per attempt, so rebuild each time.
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			s.config.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, apperrors.NewGenerationUnavailableError(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if s.config.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
		}

		resp, lastErr = s.client.Do(req)
		if lastErr == nil {
			if resp.StatusCode == http.StatusOK {
				break
			}
			code := resp.StatusCode
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			resp = nil
			lastErr = fmt.Errorf("provider status %d", code)
			if code != http.StatusTooManyRequests && code < 500 {
				// Permanent provider refusal, retrying cannot help.
				return nil, apperrors.NewGenerationRefusedError(lastErr)
			}
		}

		if ctx.Err() != nil {
			return nil, apperrors.NewGenerationUnavailableError(ctx.Err())
		}

		s.logger.Warn("generation attempt failed", map[string]interface{}{
			"listingId": listing.ID,
			"attempt":   attempt + 1,
			"error":     lastErr.Error(),
		})
	}

	if resp == nil {
		return nil, apperrors.NewGenerationUnavailableError(lastErr)
	}
	defer resp.Body.Close()

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, apperrors.NewGenerationParseError(fmt.Sprintf("decode provider response: %v", err))
	}
	if len(chat.Choices) == 0 {
		return nil, apperrors.NewGenerationParseError("provider response has no choices")
	}

	content, err := s.parseContent(chat.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	s.logger.Info("content generated", map[string]interface{}{
		"listingId": listing.ID,
		"prosCount": len(content.Pros),
		"consCount": len(content.Cons),
	})
	return content, nil
}

// parseContent validates the model's free-form answer against the contract
// shape before accepting it.
func (s *Service) parseContent(raw string) (*GeneratedContent, error) {
	raw = strings.TrimSpace(raw)
	// Models occasionally wrap JSON in a markdown fence.
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	result, err := s.schema.Validate(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return nil, apperrors.NewGenerationParseError(fmt.Sprintf("response is not valid JSON: %v", err))
	}
	if !result.Valid() {
		var issues []string
		for _, desc := range result.Errors() {
			issues = append(issues, desc.String())
		}
		return nil, apperrors.NewGenerationParseError(strings.Join(issues, "; "))
	}

	var content GeneratedContent
	if err := json.Unmarshal([]byte(raw), &content); err != nil {
		return nil, apperrors.NewGenerationParseError(fmt.Sprintf("unmarshal content: %v", err))
	}
	return &content, nil
}

// buildPrompt renders the deterministic prompt template from listing fields.
func buildPrompt(listing *models.CarListing) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a helpful car sales assistant. Describe the %s %s from %d in a playful and engaging way.\n",
		listing.Brand, listing.Model, listing.Year)
	fmt.Fprintf(&b, "The car has %d km on the clock and is priced at %.0f.\n", listing.Mileage, listing.Price)
	if listing.EngineCm3 > 0 {
		fmt.Fprintf(&b, "Engine displacement: %d cm3.\n", listing.EngineCm3)
	}
	if listing.PowerKW > 0 {
		fmt.Fprintf(&b, "Engine power: %d kW.\n", listing.PowerKW)
	}

	b.WriteString(`
Respond with JSON only, in this exact shape:
{
  "description": "A playful, positive description of at least 350 characters.",
  "pros": ["short pro, max 12 words", "..."],
  "cons": ["short honest con, max 12 words", "..."]
}

Guidelines:
- The description should be playful and engaging without being over the top.
- Pros highlight the car's strengths; keep them concise.
- Cons are honest but not overly negative.
`)

	return b.String()
}
