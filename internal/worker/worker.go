// Package worker provides async score processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// Worker processes score requests asynchronously from the EventBus, so batch
// callers can submit requests without holding an HTTP connection open.
type Worker struct {
	bus     domain.EventBus
	repo    domain.Repository
	scoring *scoring.Service

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string

	// WorkerCount is the number of concurrent workers per tenant
	WorkerCount int
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, scoringService *scoring.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		repo:    repo,
		scoring: scoringService,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins processing score requests for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicScoreRequest, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts workers for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicScoreRequest, func(ctx context.Context, msg *domain.Message) error {
		return w.processScoreRequest(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicScoreRequest,
	)

	return nil
}

// handleMessage handles messages from the global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processScoreRequest(ctx, msg.TenantID, msg)
}

// ScoreRequestMessage is the message payload for async scoring.
type ScoreRequestMessage struct {
	TenantID      string         `json:"tenantId"`
	CustomerID    string         `json:"customerId"`
	TraceID       string         `json:"traceId,omitempty"`
	Attributes    map[string]any `json:"attributes"`
	BundleVersion string         `json:"bundleVersion,omitempty"`
	ModelVersion  string         `json:"modelVersion,omitempty"`
}

// processScoreRequest scores one request and publishes the result.
func (w *Worker) processScoreRequest(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var reqMsg ScoreRequestMessage
	if err := json.Unmarshal(msg.Payload, &reqMsg); err != nil {
		slog.Error("failed to parse score request message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if reqMsg.TenantID != "" {
		tenantID = reqMsg.TenantID
	}

	traceID := reqMsg.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("processing score request",
		"customer_id", reqMsg.CustomerID,
		"tenant_id", tenantID,
		"trace_id", traceID,
	)

	result, err := w.scoring.Score(ctx, &domain.ScoreRequest{
		TenantID:      tenantID,
		CustomerID:    reqMsg.CustomerID,
		Attributes:    reqMsg.Attributes,
		BundleVersion: reqMsg.BundleVersion,
		ModelVersion:  reqMsg.ModelVersion,
	}, traceID)
	if err != nil {
		slog.Error("scoring failed",
			"customer_id", reqMsg.CustomerID,
			"tenant_id", tenantID,
			"trace_id", traceID,
			"error", err,
		)
		return err
	}

	resultPayload, _ := json.Marshal(result)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicScoreResult, resultPayload); err != nil {
		slog.Error("failed to publish score result",
			"customer_id", reqMsg.CustomerID,
			"error", err,
		)
	}

	slog.Info("score request processed",
		"customer_id", reqMsg.CustomerID,
		"tenant_id", tenantID,
		"probability", result.Probability,
		"credit_score", result.CreditScore,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
