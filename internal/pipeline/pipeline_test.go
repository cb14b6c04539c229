package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/quality"
	"github.com/opensource-finance/kestrel/internal/repository"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "kestrel-pipeline-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func newTestEngines(t *testing.T) (*quality.Engine, *quality.GateEngine) {
	t.Helper()
	engine, err := quality.NewEngine(5)
	if err != nil {
		t.Fatalf("failed to create quality engine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	gates := quality.NewGateEngine()
	t.Cleanup(func() { gates.Close() })
	return engine, gates
}

func testConfig() domain.PipelineConfig {
	return domain.PipelineConfig{
		K:           3,
		Seed:        42,
		WoEBins:     4,
		IVThreshold: 0.02,
		Workers:     2,
	}
}

// seedLedger writes 12 customers with distinct recency, frequency, and spend
// so the clusterer has real structure to find.
func seedLedger(t *testing.T, repo domain.Repository, tenantID string) {
	t.Helper()

	ctx := context.Background()
	base := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)

	for c := 0; c < 12; c++ {
		customerID := fmt.Sprintf("cust-%03d", c)
		txCount := 1 + c%4
		for i := 0; i < txCount; i++ {
			tx := &domain.Transaction{
				ID:         fmt.Sprintf("tx-%03d-%d", c, i),
				CustomerID: customerID,
				Amount:     50 + float64(c*40+i*15),
				Currency:   "UGX",
				Category:   []string{"airtime", "data", "utility"}[c%3],
				Channel:    []string{"android", "web"}[c%2],
				Timestamp:  base.AddDate(0, 0, c*4+i),
				CreatedAt:  time.Now().UTC(),
			}
			if err := repo.SaveTransaction(ctx, tenantID, tx); err != nil {
				t.Fatalf("seed failed: %v", err)
			}
		}
	}
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-001"

	repo := newTestRepo(t)
	engine, gates := newTestEngines(t)
	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	completed := make(chan *domain.Message, 1)
	_, err := eventBus.Subscribe(ctx, tenantID, domain.TopicPipelineCompleted,
		func(ctx context.Context, msg *domain.Message) error {
			select {
			case completed <- msg:
			default:
			}
			return nil
		})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	seedLedger(t, repo, tenantID)

	runner := NewRunner(repo, eventBus, engine, gates, testConfig())
	result, err := runner.Run(ctx, tenantID)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	t.Run("RunResult", func(t *testing.T) {
		if result.Customers != 12 {
			t.Errorf("customers = %d, want 12", result.Customers)
		}
		if result.HighRisk <= 0 || result.HighRisk >= 12 {
			t.Errorf("high-risk count %d should be a proper subset", result.HighRisk)
		}
		if result.BundleVersion == "" {
			t.Error("missing bundle version")
		}
		if result.SnapshotDate.IsZero() {
			t.Error("missing snapshot date")
		}
		if result.RowsRejected != 0 || result.QualityIssues != 0 {
			t.Errorf("clean ledger reported rejections: %+v", result)
		}
	})

	t.Run("ArtifactsPersisted", func(t *testing.T) {
		bundle, err := repo.GetArtifactBundle(ctx, tenantID, result.BundleVersion)
		if err != nil {
			t.Fatalf("GetArtifactBundle failed: %v", err)
		}
		if !bundle.Frozen {
			t.Error("persisted bundle must be frozen")
		}
		if bundle.K != 3 || bundle.Seed != 42 {
			t.Errorf("segmentation provenance lost: k=%d seed=%d", bundle.K, bundle.Seed)
		}
		if len(bundle.Centroids) != 3 {
			t.Errorf("expected 3 centroids, got %d", len(bundle.Centroids))
		}

		summary, err := repo.GetRFMSummary(ctx, tenantID, "cust-000")
		if err != nil {
			t.Fatalf("GetRFMSummary failed: %v", err)
		}
		if summary.Frequency != 1 {
			t.Errorf("cust-000 frequency = %v, want 1", summary.Frequency)
		}

		assignment, err := repo.GetSegmentAssignment(ctx, tenantID, "cust-000")
		if err != nil {
			t.Fatalf("GetSegmentAssignment failed: %v", err)
		}
		if assignment.ClusterID < 0 || assignment.ClusterID >= 3 {
			t.Errorf("cluster id out of range: %d", assignment.ClusterID)
		}

		row, err := repo.GetFeatureRow(ctx, tenantID, "cust-000", result.BundleVersion)
		if err != nil {
			t.Fatalf("GetFeatureRow failed: %v", err)
		}
		if len(row.Values) != len(row.Columns) || len(row.Columns) == 0 {
			t.Errorf("malformed feature row: %d values, %d columns", len(row.Values), len(row.Columns))
		}
	})

	t.Run("CompletionEventPublished", func(t *testing.T) {
		select {
		case msg := <-completed:
			if msg.TenantID != tenantID {
				t.Errorf("event tenant = %s, want %s", msg.TenantID, tenantID)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("no completion event within 2s")
		}
	})

	t.Run("LabelConsistency", func(t *testing.T) {
		bundle, err := repo.GetArtifactBundle(ctx, tenantID, result.BundleVersion)
		if err != nil {
			t.Fatalf("GetArtifactBundle failed: %v", err)
		}
		highRisk := 0
		for c := 0; c < 12; c++ {
			a, err := repo.GetSegmentAssignment(ctx, tenantID, fmt.Sprintf("cust-%03d", c))
			if err != nil {
				t.Fatalf("GetSegmentAssignment failed: %v", err)
			}
			if a.IsHighRisk != (a.ClusterID == bundle.HighRiskCluster) {
				t.Errorf("customer %s: label disagrees with designated cluster", a.CustomerID)
			}
			if a.IsHighRisk {
				highRisk++
			}
		}
		if highRisk != result.HighRisk {
			t.Errorf("persisted high-risk count %d != run result %d", highRisk, result.HighRisk)
		}
	})
}

func TestRunRejectSeverityFiltersRows(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-001"

	repo := newTestRepo(t)
	engine, gates := newTestEngines(t)
	seedLedger(t, repo, tenantID)

	// Two extra rows with no currency; the reject rule must keep them out of
	// the training ledger without losing their customers' other rows.
	for i := 0; i < 2; i++ {
		tx := &domain.Transaction{
			ID:         fmt.Sprintf("tx-bad-%d", i),
			CustomerID: fmt.Sprintf("cust-%03d", i),
			Amount:     999,
			Currency:   "",
			Timestamp:  time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC),
		}
		if err := repo.SaveTransaction(ctx, tenantID, tx); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	err := engine.LoadRule(&domain.QualityRule{
		ID:          "missing-currency",
		Description: "currency code is required",
		Expression:  `currency == ""`,
		Severity:    domain.SeverityReject,
		Enabled:     true,
	})
	if err != nil {
		t.Fatalf("LoadRule failed: %v", err)
	}

	runner := NewRunner(repo, nil, engine, gates, testConfig())
	result, err := runner.Run(ctx, tenantID)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.RowsRejected != 2 {
		t.Errorf("rows rejected = %d, want 2", result.RowsRejected)
	}
	if result.QualityIssues < 2 {
		t.Errorf("quality issues = %d, want >= 2", result.QualityIssues)
	}
	if result.Customers != 12 {
		t.Errorf("customers = %d, want 12 (rejects must not drop customers with valid rows)", result.Customers)
	}
}

func TestRunGateBlocks(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-001"

	repo := newTestRepo(t)
	engine, gates := newTestEngines(t)
	seedLedger(t, repo, tenantID)

	err := engine.LoadRule(&domain.QualityRule{
		ID:         "ugx-only",
		Expression: `currency == "UGX"`,
		Severity:   domain.SeverityWarn,
		Enabled:    true,
	})
	if err != nil {
		t.Fatalf("LoadRule failed: %v", err)
	}
	gates.LoadGates([]*domain.QualityGate{
		{
			ID:             "gate-1",
			Name:           "Block everything",
			Rules:          []domain.GateRuleWeight{{RuleID: "ugx-only", Weight: 1.0}},
			BlockThreshold: 0.5,
			Enabled:        true,
		},
	})

	runner := NewRunner(repo, nil, engine, gates, testConfig())
	_, err = runner.Run(ctx, tenantID)
	if !errors.Is(err, domain.ErrDataQuality) {
		t.Fatalf("expected ErrDataQuality from blocked gate, got %v", err)
	}

	// A blocked run must leave no artifacts behind.
	if _, err := repo.LatestArtifactBundle(ctx, tenantID); err == nil {
		t.Error("blocked run persisted an artifact bundle")
	}
}

func TestRunErrors(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	engine, gates := newTestEngines(t)

	t.Run("EmptyTenant", func(t *testing.T) {
		runner := NewRunner(repo, nil, engine, gates, testConfig())
		_, err := runner.Run(ctx, "")
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("KTooSmall", func(t *testing.T) {
		cfg := testConfig()
		cfg.K = 1
		runner := NewRunner(repo, nil, engine, gates, cfg)
		_, err := runner.Run(ctx, "tenant-001")
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("EmptyLedger", func(t *testing.T) {
		runner := NewRunner(repo, nil, engine, gates, testConfig())
		_, err := runner.Run(ctx, "tenant-empty")
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("TooFewCustomersForK", func(t *testing.T) {
		tenantID := "tenant-tiny"
		for c := 0; c < 2; c++ {
			tx := &domain.Transaction{
				ID:         fmt.Sprintf("tiny-tx-%d", c),
				CustomerID: fmt.Sprintf("tiny-%d", c),
				Amount:     float64(100 + c),
				Currency:   "UGX",
				Timestamp:  time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
			}
			if err := repo.SaveTransaction(ctx, tenantID, tx); err != nil {
				t.Fatalf("seed failed: %v", err)
			}
		}
		runner := NewRunner(repo, nil, engine, gates, testConfig())
		_, err := runner.Run(ctx, tenantID)
		if !errors.Is(err, domain.ErrDegenerate) {
			t.Errorf("expected ErrDegenerate, got %v", err)
		}
	})

	t.Run("BadSnapshotDate", func(t *testing.T) {
		tenantID := "tenant-snap"
		tx := &domain.Transaction{
			ID:         "snap-tx-1",
			CustomerID: "cust-001",
			Amount:     10,
			Currency:   "UGX",
			Timestamp:  time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		}
		if err := repo.SaveTransaction(ctx, tenantID, tx); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
		cfg := testConfig()
		cfg.SnapshotDate = "not-a-date"
		runner := NewRunner(repo, nil, engine, gates, cfg)
		_, err := runner.Run(ctx, tenantID)
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}
