// internal/orchestrator/orchestrator.go
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "autohaven/internal/common/errors"
	"autohaven/internal/common/logger"
	"autohaven/internal/common/metrics"
	"autohaven/internal/common/observability"
	"autohaven/internal/enrichment"
	"autohaven/internal/models"
	"autohaven/internal/notification"
	"autohaven/internal/store"
)

// ListingStore is the listing persistence capability the orchestrator needs.
type ListingStore interface {
	Get(ctx context.Context, id string) (*models.CarListing, error)
	ClaimStatus(ctx context.Context, id string, from, to models.EnrichmentStatus) error
	SetGenerated(ctx context.Context, id string, description string, pros, cons []string) error
}

// NotificationStore is the request persistence capability.
type NotificationStore interface {
	Create(ctx context.Context, listingID, recipient string) (*models.NotificationRequest, error)
	GetByPair(ctx context.Context, listingID, recipient string) (*models.NotificationRequest, error)
	MarkSent(ctx context.Context, id, providerMessageID string) error
	RecordAttempt(ctx context.Context, id string, lastError string) error
	MarkFailed(ctx context.Context, id string, reason string) error
}

// Generator produces sales copy for a listing.
type Generator interface {
	Generate(ctx context.Context, listing *models.CarListing) (*enrichment.GeneratedContent, error)
}

// Dispatcher delivers one email per invocation.
type Dispatcher interface {
	Send(ctx context.Context, recipient string, listing *models.CarListing) (*notification.SendResult, error)
}

// Config holds the orchestrator's retry and dedup tuning.
type Config struct {
	// GenerationTimeout bounds one enrichment run so an aborted caller can
	// never leave a listing stuck in GENERATING.
	GenerationTimeout time.Duration
	// MaxSendAttempts is the delivery retry ceiling for transient outages.
	MaxSendAttempts int
	// SendBackoffBase doubles per attempt.
	SendBackoffBase time.Duration
	// DedupTTL is how long a (listing, recipient) send receipt stays cached.
	DedupTTL time.Duration
}

// Orchestrator composes store, generator and dispatcher into the
// enrich-then-notify workflow and owns its retry and idempotency policy.
type Orchestrator struct {
	listings      ListingStore
	notifications NotificationStore
	generator     Generator
	dispatcher    Dispatcher
	dedupCache    *redis.Client // optional, nil disables the cache
	obs           *observability.Observability
	config        Config
	logger        logger.Logger
}

func New(
	listings ListingStore,
	notifications NotificationStore,
	generator Generator,
	dispatcher Dispatcher,
	dedupCache *redis.Client,
	obs *observability.Observability,
	config Config,
	log logger.Logger,
) *Orchestrator {
	if config.GenerationTimeout == 0 {
		config.GenerationTimeout = time.Minute
	}
	if config.MaxSendAttempts == 0 {
		config.MaxSendAttempts = 3
	}
	if config.SendBackoffBase == 0 {
		config.SendBackoffBase = 200 * time.Millisecond
	}
	if config.DedupTTL == 0 {
		config.DedupTTL = 24 * time.Hour
	}

	return &Orchestrator{
		listings:      listings,
		notifications: notifications,
		generator:     generator,
		dispatcher:    dispatcher,
		dedupCache:    dedupCache,
		obs:           obs,
		config:        config,
		logger:        log.WithFields(map[string]interface{}{"component": "orchestrator"}),
	}
}

// Enrich runs the generation workflow for a listing. At most one enrichment
// runs per listing at a time, enforced by the store's compare-and-swap claim
// rather than any in-process lock. A READY listing is returned as-is unless
// regeneration is explicitly requested.
func (o *Orchestrator) Enrich(ctx context.Context, listingID string, regenerate bool) (*models.CarListing, error) {
	start := time.Now()

	listing, err := o.listings.Get(ctx, listingID)
	if err != nil {
		return nil, err
	}

	switch listing.Status {
	case models.StatusGenerating:
		return nil, apperrors.NewAlreadyInProgressError(listingID)
	case models.StatusReady:
		if !regenerate {
			return listing, nil
		}
	case models.StatusRaw, models.StatusGenerationFailed, models.StatusNotified:
		// eligible
	default:
		return nil, apperrors.NewPreconditionError(
			fmt.Sprintf("listing %s cannot be enriched from status %s", listingID, listing.Status))
	}

	if err := o.listings.ClaimStatus(ctx, listingID, listing.Status, models.StatusGenerating); err != nil {
		// Lost the race: someone else claimed the listing between our read
		// and the write.
		if apperrors.IsCode(err, apperrors.ErrCodeConflict) {
			return nil, apperrors.NewAlreadyInProgressError(listingID)
		}
		return nil, err
	}

	// Bounded call: the deadline guarantees the claim below always resolves
	// to READY or GENERATION_FAILED even if the caller goes away.
	genCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.config.GenerationTimeout)
	defer cancel()

	content, err := o.generator.Generate(genCtx, listing)
	if err != nil {
		o.failGeneration(listingID, err)
		metrics.EnrichmentsTotal.WithLabelValues("failed").Inc()
		o.recordWorkflow(ctx, "enrich", "failed", start)
		return nil, err
	}

	if err := o.listings.SetGenerated(genCtx, listingID, content.Description, content.Pros, content.Cons); err != nil {
		o.failGeneration(listingID, err)
		metrics.EnrichmentsTotal.WithLabelValues("failed").Inc()
		o.recordWorkflow(ctx, "enrich", "failed", start)
		return nil, err
	}

	metrics.EnrichmentsTotal.WithLabelValues("ready").Inc()
	metrics.EnrichmentDuration.Observe(time.Since(start).Seconds())
	o.recordWorkflow(ctx, "enrich", "ready", start)

	o.logger.Info("listing enriched", map[string]interface{}{
		"listingId": listingID,
		"duration":  time.Since(start).String(),
	})

	return o.listings.Get(ctx, listingID)
}

// failGeneration resolves a claimed listing to GENERATION_FAILED. Best
// effort: if even this write fails the listing stays GENERATING until an
// operator or a later retry claims it, which we log loudly.
func (o *Orchestrator) failGeneration(listingID string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := o.listings.ClaimStatus(ctx, listingID, models.StatusGenerating, models.StatusGenerationFailed); err != nil {
		o.logger.Error("could not record generation failure", map[string]interface{}{
			"listingId": listingID,
			"cause":     cause.Error(),
			"error":     err.Error(),
		})
		return
	}

	o.logger.Warn("generation failed", map[string]interface{}{
		"listingId": listingID,
		"cause":     cause.Error(),
	})
}

// NotifyResult is the outcome of a notify call, deduplicated or fresh.
type NotifyResult struct {
	Request           *models.NotificationRequest
	ProviderMessageID string
	Deduplicated      bool
}

// Notify delivers the listing's generated content to the recipient with
// at-most-one successful send per (listing, recipient) pair. A pair that
// already has a SENT request short-circuits to the recorded receipt without
// touching the email provider.
func (o *Orchestrator) Notify(ctx context.Context, listingID, recipient string) (*NotifyResult, error) {
	start := time.Now()

	listing, err := o.listings.Get(ctx, listingID)
	if err != nil {
		return nil, err
	}

	if prior := o.lookupDedup(ctx, listingID, recipient); prior != nil {
		metrics.NotificationDedupHits.Inc()
		o.recordWorkflow(ctx, "notify", "dedup", start)
		return prior, nil
	}

	// READY is the normal entry; NOTIFIED listings may be sent to further
	// recipients, and NOTIFY_FAILED listings re-enter dispatch on retry.
	// Everything else blocks.
	switch listing.Status {
	case models.StatusReady, models.StatusNotified, models.StatusNotifyFailed:
	default:
		return nil, apperrors.NewPreconditionError(
			fmt.Sprintf("listing %s is %s, notify requires READY", listingID, listing.Status))
	}

	request, err := o.pendingRequest(ctx, listingID, recipient)
	if err != nil {
		return nil, err
	}

	if err := o.listings.ClaimStatus(ctx, listingID, listing.Status, models.StatusDispatching); err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeConflict) {
			return nil, apperrors.NewAlreadyInProgressError(listingID)
		}
		return nil, err
	}

	result, err := o.dispatchWithRetry(ctx, request, recipient, listing)
	if err != nil {
		// The request is already FAILED; resolve the listing branch too.
		o.resolveListing(listingID, models.StatusNotifyFailed)
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		o.recordWorkflow(ctx, "notify", "failed", start)
		return nil, err
	}

	if err := o.notifications.MarkSent(ctx, request.ID, result.ProviderMessageID); err != nil {
		// The email left the building but our record says otherwise. This
		// is the one state operators must reconcile by hand.
		o.resolveListing(listingID, models.StatusNotifyFailed)
		metrics.PartialFailures.Inc()
		o.recordWorkflow(ctx, "notify", "partial", start)
		o.logger.Error("email sent but state update failed", map[string]interface{}{
			"requestId":               request.ID,
			"listingId":               listingID,
			"recipient":               recipient,
			"providerMessageId":       result.ProviderMessageID,
			"error":                   err.Error(),
			"reconciliation_required": true,
		})
		return nil, apperrors.NewPartialFailureError(
			fmt.Sprintf("email %s delivered but request %s not marked sent", result.ProviderMessageID, request.ID))
	}

	o.resolveListing(listingID, models.StatusNotified)
	o.cacheDedup(ctx, listingID, recipient, result.ProviderMessageID)
	metrics.NotificationsTotal.WithLabelValues("sent").Inc()
	o.recordWorkflow(ctx, "notify", "sent", start)

	request.Status = models.SendSent
	request.ProviderMessageID = &result.ProviderMessageID

	o.logger.Info("notification sent", map[string]interface{}{
		"listingId": listingID,
		"recipient": recipient,
		"messageId": result.ProviderMessageID,
	})

	return &NotifyResult{
		Request:           request,
		ProviderMessageID: result.ProviderMessageID,
	}, nil
}

// pendingRequest reuses an existing PENDING request for the pair or creates
// a fresh one. A SENT request never reaches here; dedup short-circuits first.
func (o *Orchestrator) pendingRequest(ctx context.Context, listingID, recipient string) (*models.NotificationRequest, error) {
	existing, err := o.notifications.GetByPair(ctx, listingID, recipient)
	if err == nil && existing.Status == models.SendPending {
		return existing, nil
	}
	if err != nil && !apperrors.IsCode(err, apperrors.ErrCodeNotFound) {
		return nil, err
	}
	return o.notifications.Create(ctx, listingID, recipient)
}

// dispatchWithRetry drives the dispatcher under the orchestrator's retry
// budget. Transient outages are retried with backoff up to the ceiling;
// permanent rejections fail the request immediately.
func (o *Orchestrator) dispatchWithRetry(
	ctx context.Context,
	request *models.NotificationRequest,
	recipient string,
	listing *models.CarListing,
) (*notification.SendResult, error) {
	var lastErr error
	base := request.Attempts

	for attempt := base; attempt < o.config.MaxSendAttempts; attempt++ {
		if attempt > base {
			backoff := o.config.SendBackoffBase * time.Duration(1<<(attempt-base-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, apperrors.NewDeliveryUnavailableError(ctx.Err())
			}
		}

		result, err := o.dispatcher.Send(ctx, recipient, listing)
		if err == nil {
			// Every dispatch counts, the winning one included. MarkSent
			// persists this final increment.
			request.Attempts = attempt + 1
			return result, nil
		}
		lastErr = err

		if apperrors.IsCode(err, apperrors.ErrCodeDeliveryRejected) {
			_ = o.notifications.MarkFailed(ctx, request.ID, apperrors.AsStandard(err).Details)
			return nil, err
		}

		if recErr := o.notifications.RecordAttempt(ctx, request.ID, apperrors.AsStandard(err).Details); recErr != nil {
			o.logger.Error("could not record dispatch attempt", map[string]interface{}{
				"requestId": request.ID,
				"error":     recErr.Error(),
			})
		}
	}

	_ = o.notifications.MarkFailed(ctx, request.ID,
		fmt.Sprintf("delivery attempts exhausted (%d)", o.config.MaxSendAttempts))
	if lastErr == nil {
		// A reused request arrived already at the ceiling.
		lastErr = apperrors.NewDeliveryUnavailableError(
			fmt.Errorf("delivery attempts exhausted (%d)", o.config.MaxSendAttempts))
	}
	return nil, lastErr
}

func (o *Orchestrator) recordWorkflow(ctx context.Context, workflow, status string, start time.Time) {
	if o.obs == nil {
		return
	}
	o.obs.RecordWorkflow(ctx, workflow, status)
	o.obs.RecordWorkflowDuration(ctx, workflow, time.Since(start), status)
}

// resolveListing moves a DISPATCHING listing to its terminal branch.
func (o *Orchestrator) resolveListing(listingID string, to models.EnrichmentStatus) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := o.listings.ClaimStatus(ctx, listingID, models.StatusDispatching, to); err != nil {
		o.logger.Error("could not resolve listing status", map[string]interface{}{
			"listingId": listingID,
			"target":    string(to),
			"error":     err.Error(),
		})
	}
}

func dedupKey(listingID, recipient string) string {
	return fmt.Sprintf("notify:sent:%s:%s", listingID, recipient)
}

// lookupDedup answers a notify call from the redis receipt cache or the
// durable request record, whichever responds first with a SENT result.
func (o *Orchestrator) lookupDedup(ctx context.Context, listingID, recipient string) *NotifyResult {
	if o.dedupCache != nil {
		if messageID, err := o.dedupCache.Get(ctx, dedupKey(listingID, recipient)).Result(); err == nil && messageID != "" {
			return &NotifyResult{ProviderMessageID: messageID, Deduplicated: true}
		}
	}

	existing, err := o.notifications.GetByPair(ctx, listingID, recipient)
	if err != nil || existing.Status != models.SendSent {
		return nil
	}

	messageID := ""
	if existing.ProviderMessageID != nil {
		messageID = *existing.ProviderMessageID
	}
	o.cacheDedup(ctx, listingID, recipient, messageID)

	return &NotifyResult{
		Request:           existing,
		ProviderMessageID: messageID,
		Deduplicated:      true,
	}
}

// cacheDedup is best effort; the durable record is the source of truth.
func (o *Orchestrator) cacheDedup(ctx context.Context, listingID, recipient, messageID string) {
	if o.dedupCache == nil || messageID == "" {
		return
	}
	if err := o.dedupCache.Set(ctx, dedupKey(listingID, recipient), messageID, o.config.DedupTTL).Err(); err != nil {
		o.logger.Debug("dedup cache write failed", map[string]interface{}{
			"listingId": listingID,
			"recipient": recipient,
			"error":     err.Error(),
		})
	}
}

var _ ListingStore = (*store.ListingStore)(nil)
var _ NotificationStore = (*store.NotificationStore)(nil)
