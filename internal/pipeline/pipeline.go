// Package pipeline orchestrates a full fit run: quality screen, RFM
// aggregation, segmentation, feature fitting, and artifact persistence.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/features"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/quality"
	"github.com/opensource-finance/kestrel/internal/rfm"
	"github.com/opensource-finance/kestrel/internal/segment"
)

// Runner executes pipeline fit runs. Each run reads the complete ledger and
// produces a new immutable artifact version; nothing is ever updated in
// place, so concurrent inference keeps reading the previous version until
// the new one is published.
type Runner struct {
	repo   domain.Repository
	bus    domain.EventBus
	engine *quality.Engine
	gates  *quality.GateEngine
	cfg    domain.PipelineConfig
}

// NewRunner creates a pipeline runner.
func NewRunner(repo domain.Repository, bus domain.EventBus, engine *quality.Engine, gates *quality.GateEngine, cfg domain.PipelineConfig) *Runner {
	return &Runner{
		repo:   repo,
		bus:    bus,
		engine: engine,
		gates:  gates,
		cfg:    cfg,
	}
}

// RunResult summarizes a completed pipeline run.
type RunResult struct {
	TenantID      string              `json:"tenantId"`
	BundleVersion string              `json:"bundleVersion"`
	SnapshotDate  time.Time           `json:"snapshotDate"`
	Customers     int                 `json:"customers"`
	HighRisk      int                 `json:"highRisk"`
	QualityIssues int                 `json:"qualityIssues"`
	RowsRejected  int                 `json:"rowsRejected"`
	GateResults   []domain.GateResult `json:"gateResults,omitempty"`
	WeakFeatures  []string            `json:"weakFeatures,omitempty"`
	DurationMs    int64               `json:"durationMs"`
}

// Run executes one full fit for a tenant. Configuration and degeneracy
// errors halt the run before any label or artifact is persisted.
func (r *Runner) Run(ctx context.Context, tenantID string) (*RunResult, error) {
	start := time.Now()

	result, err := r.run(ctx, tenantID, start)
	if err != nil {
		metrics.PipelineRuns.WithLabelValues(tenantID, "error").Inc()
		return nil, err
	}

	metrics.PipelineRuns.WithLabelValues(tenantID, "ok").Inc()
	metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	return result, nil
}

func (r *Runner) run(ctx context.Context, tenantID string, start time.Time) (*RunResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	if r.cfg.K < 2 {
		return nil, fmt.Errorf("%w: cluster count k must be >= 2, got %d", domain.ErrInvalidInput, r.cfg.K)
	}

	// 1. Load the ledger
	since := time.Time{}
	if r.cfg.WindowDays > 0 {
		since = time.Now().UTC().AddDate(0, 0, -r.cfg.WindowDays)
	}
	ledger, err := r.repo.ListTransactions(ctx, tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	if len(ledger) == 0 {
		return nil, fmt.Errorf("%w: no transactions in window", domain.ErrInvalidInput)
	}

	// 2. Quality screen and gates
	ledger, gateResults, rejected, issueCount, err := r.screen(ctx, tenantID, ledger)
	if err != nil {
		return nil, err
	}

	// 3. Snapshot date
	snapshot, err := r.snapshotDate(ledger)
	if err != nil {
		return nil, err
	}

	// 4. RFM aggregation
	aggregator := rfm.NewAggregator(r.cfg.Workers)
	summaries, report, err := aggregator.Aggregate(ctx, ledger, snapshot)
	if err != nil {
		return nil, err
	}
	for _, issue := range report.Issues {
		slog.Warn("ledger quality issue",
			"tenant_id", tenantID,
			"tx_id", issue.TxID,
			"customer_id", issue.CustomerID,
			"field", issue.Field,
			"reason", issue.Reason,
		)
	}

	// 5. Segmentation: proxy label engineering
	segResult, rfmScaler, err := segment.New(r.cfg.K, r.cfg.Seed).Segment(summaries)
	if err != nil {
		return nil, err
	}

	labels := make(map[string]bool, len(segResult.Assignments))
	highRisk := 0
	for _, a := range segResult.Assignments {
		labels[a.CustomerID] = a.IsHighRisk
		if a.IsHighRisk {
			highRisk++
		}
	}

	// 6. Feature fit against the proxy label
	rawRows, err := features.BuildRawRows(ledger)
	if err != nil {
		return nil, err
	}
	rawRows = withLabels(rawRows, labels)

	version := time.Now().UTC().Format("20060102-150405")
	bundle, err := features.Fit(features.DefaultSchema(), rawRows, labels, features.FitConfig{
		TenantID:        tenantID,
		Version:         version,
		WoEBins:         r.cfg.WoEBins,
		IVThreshold:     r.cfg.IVThreshold,
		RFMScaler:       rfmScaler,
		Centroids:       segResult.Centroids,
		HighRiskCluster: segResult.HighRiskCluster,
		Seed:            segResult.Seed,
		K:               segResult.K,
	})
	if err != nil {
		return nil, err
	}

	matrix, err := features.Apply(bundle, rawRows, labels)
	if err != nil {
		return nil, err
	}

	// 7. Persist outputs. Only now, after every stage validated, do labels
	// reach storage.
	if err := r.repo.SaveRFMSummaries(ctx, tenantID, version, summaries); err != nil {
		return nil, fmt.Errorf("failed to save RFM summaries: %w", err)
	}
	if err := r.repo.SaveSegmentAssignments(ctx, tenantID, version, segResult.Assignments); err != nil {
		return nil, fmt.Errorf("failed to save segment assignments: %w", err)
	}
	if err := r.repo.SaveFeatureRows(ctx, tenantID, version, matrix.Rows); err != nil {
		return nil, fmt.Errorf("failed to save feature rows: %w", err)
	}
	if err := r.repo.SaveArtifactBundle(ctx, tenantID, bundle); err != nil {
		return nil, fmt.Errorf("failed to save artifact bundle: %w", err)
	}

	result := &RunResult{
		TenantID:      tenantID,
		BundleVersion: bundle.Version,
		SnapshotDate:  snapshot,
		Customers:     len(summaries),
		HighRisk:      highRisk,
		QualityIssues: issueCount + len(report.Issues),
		RowsRejected:  rejected,
		GateResults:   gateResults,
		WeakFeatures:  bundle.WeakFeatures,
		DurationMs:    time.Since(start).Milliseconds(),
	}

	// 8. Publish completion event
	if r.bus != nil {
		payload, _ := json.Marshal(result)
		if err := r.bus.Publish(ctx, tenantID, domain.TopicPipelineCompleted, payload); err != nil {
			slog.Error("failed to publish pipeline completion",
				"tenant_id", tenantID,
				"error", err,
			)
		}
	}

	slog.Info("pipeline run completed",
		"tenant_id", tenantID,
		"bundle_version", bundle.Version,
		"customers", result.Customers,
		"high_risk", result.HighRisk,
		"weak_features", len(result.WeakFeatures),
		"duration_ms", result.DurationMs,
	)

	return result, nil
}

// screen runs the quality rules and gates over the ledger. Rows violating a
// reject-severity rule leave the training ledger; a blocked gate aborts the
// run entirely.
func (r *Runner) screen(ctx context.Context, tenantID string, ledger []*domain.Transaction) ([]*domain.Transaction, []domain.GateResult, int, int, error) {
	if r.engine == nil || r.engine.RulesCount() == 0 {
		return ledger, nil, 0, 0, nil
	}

	results, violations := r.engine.ScreenBatch(ctx, ledger)

	rejectTx := make(map[string]bool)
	issueCount := 0
	for _, res := range results {
		if res.Passed {
			continue
		}
		issueCount++
		metrics.QualityViolations.WithLabelValues(res.RuleID).Inc()
		if res.Severity == domain.SeverityReject {
			rejectTx[res.TxID] = true
		}
		if r.bus != nil {
			payload, _ := json.Marshal(res)
			_ = r.bus.Publish(ctx, tenantID, domain.TopicQualityViolation, payload)
		}
	}

	if len(results) > 0 {
		if err := r.repo.SaveQualityResults(ctx, tenantID, failedOnly(results)); err != nil {
			slog.Error("failed to save quality results", "tenant_id", tenantID, "error", err)
		}
	}

	var gateResults []domain.GateResult
	if r.gates != nil && r.gates.GateCount() > 0 {
		gateResults = r.gates.EvaluateGates(len(ledger), violations)
		if quality.AnyBlocked(gateResults) {
			return nil, gateResults, 0, issueCount, fmt.Errorf("%w: quality gate blocked the run", domain.ErrDataQuality)
		}
	}

	if len(rejectTx) == 0 {
		return ledger, gateResults, 0, issueCount, nil
	}

	kept := make([]*domain.Transaction, 0, len(ledger))
	for _, tx := range ledger {
		if !rejectTx[tx.ID] {
			kept = append(kept, tx)
		}
	}
	if len(kept) == 0 {
		return nil, gateResults, len(rejectTx), issueCount, fmt.Errorf("%w: every ledger row was rejected", domain.ErrDataQuality)
	}
	return kept, gateResults, len(rejectTx), issueCount, nil
}

func (r *Runner) snapshotDate(ledger []*domain.Transaction) (time.Time, error) {
	if r.cfg.SnapshotDate != "" {
		snapshot, err := time.Parse("2006-01-02", r.cfg.SnapshotDate)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: invalid snapshot date %q", domain.ErrInvalidInput, r.cfg.SnapshotDate)
		}
		return snapshot.UTC(), nil
	}
	return rfm.DefaultSnapshot(ledger)
}

// withLabels drops raw rows for customers the segmenter excluded (for
// example, customers with no pre-snapshot transactions).
func withLabels(rows []domain.RawRow, labels map[string]bool) []domain.RawRow {
	kept := make([]domain.RawRow, 0, len(rows))
	for _, row := range rows {
		if _, ok := labels[row.CustomerID]; ok {
			kept = append(kept, row)
		}
	}
	return kept
}

func failedOnly(results []domain.QualityResult) []domain.QualityResult {
	var failed []domain.QualityResult
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
