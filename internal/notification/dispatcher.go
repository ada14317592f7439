// internal/notification/dispatcher.go
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	apperrors "autohaven/internal/common/errors"
	"autohaven/internal/common/logger"
	"autohaven/internal/models"
)

// SESService is the slice of the SES API the dispatcher uses, defined here
// so tests can substitute a mock.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SendResult carries the provider's receipt for a successful dispatch.
type SendResult struct {
	ProviderMessageID string
}

// Dispatcher delivers generated listing content to a recipient by email.
// It calls the provider exactly once per invocation; the retry budget for
// transient outages belongs to the orchestrator, because a duplicate send
// is user-visible and must be deduplicated above this layer.
type Dispatcher struct {
	config    *Config
	sesClient SESService
	logger    logger.Logger
}

func NewDispatcher(config *Config, sesClient SESService, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		config:    config,
		sesClient: sesClient,
		logger:    log.WithFields(map[string]interface{}{"component": "notification-dispatcher"}),
	}
}

// Send emails the listing's generated content to the recipient and returns
// the provider message id. The listing snapshot must already carry both
// halves of the generated content.
func (d *Dispatcher) Send(ctx context.Context, recipient string, listing *models.CarListing) (*SendResult, error) {
	if !isValidEmail(recipient) {
		return nil, apperrors.NewValidationError(fmt.Sprintf("invalid recipient address: %s", recipient))
	}
	if listing == nil || !listing.HasGeneratedContent() {
		return nil, apperrors.NewValidationError("listing snapshot is missing generated content")
	}

	htmlBody := buildEmailHTML(listing)
	textBody := buildEmailText(listing)

	out, err := d.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{recipient},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(d.config.Subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(textBody)},
				Html: &types.Content{Data: aws.String(htmlBody)},
			},
		},
		Source: aws.String(d.config.FromEmail),
	})
	if err != nil {
		return nil, d.classifySendError(recipient, err)
	}

	messageID := ""
	if out.MessageId != nil {
		messageID = *out.MessageId
	}

	d.logger.Info("email dispatched", map[string]interface{}{
		"recipient": recipient,
		"listingId": listing.ID,
		"messageId": messageID,
	})
	return &SendResult{ProviderMessageID: messageID}, nil
}

// classifySendError splits provider failures into permanent rejections and
// transient outages so the orchestrator can route its retry budget.
func (d *Dispatcher) classifySendError(recipient string, err error) error {
	var rejected *types.MessageRejected
	var domainNotVerified *types.MailFromDomainNotVerifiedException
	if errors.As(err, &rejected) || errors.As(err, &domainNotVerified) {
		d.logger.Warn("delivery rejected", map[string]interface{}{
			"recipient": recipient,
			"error":     err.Error(),
		})
		return apperrors.NewDeliveryRejectedError(err.Error())
	}

	d.logger.Warn("delivery unavailable", map[string]interface{}{
		"recipient": recipient,
		"error":     err.Error(),
	})
	return apperrors.NewDeliveryUnavailableError(err)
}

func isValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	if len(parts[0]) == 0 || len(parts[1]) == 0 {
		return false
	}
	return strings.Contains(parts[1], ".")
}
