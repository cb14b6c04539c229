package scoring

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
)

func newServiceRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "kestrel-scoring-test-*.db")
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

func TestServiceScore(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-001"
	repo := newServiceRepo(t)
	svc := NewService(repo, nil, NewScorer())

	// Two frozen generations: v2 is the latest.
	v1 := fitScoringBundle(t, "v1")
	v1.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	v2 := fitScoringBundle(t, "v2")
	v2.CreatedAt = time.Now().UTC().Add(-1 * time.Hour)
	for _, b := range []*domain.ArtifactBundle{v1, v2} {
		if err := repo.SaveArtifactBundle(ctx, tenantID, b); err != nil {
			t.Fatalf("SaveArtifactBundle(%s) failed: %v", b.Version, err)
		}
	}

	m1 := &domain.ModelParams{
		ID: "mid-1", Version: "m1", BundleVersion: "v1",
		Intercept: -0.5, Coefficients: map[string]float64{"spend_woe": 1.2},
		CreatedAt: time.Now().UTC().Add(-2 * time.Hour),
	}
	m2 := &domain.ModelParams{
		ID: "mid-2", Version: "m2", BundleVersion: "v2",
		Intercept: -0.3, Coefficients: map[string]float64{"spend_woe": 0.9},
		CreatedAt: time.Now().UTC().Add(-1 * time.Hour),
	}
	for _, m := range []*domain.ModelParams{m1, m2} {
		if err := repo.SaveModelParams(ctx, tenantID, m); err != nil {
			t.Fatalf("SaveModelParams(%s) failed: %v", m.Version, err)
		}
	}

	attrs := map[string]interface{}{"spend": 42.0, "channel": "web"}

	t.Run("LatestByDefault", func(t *testing.T) {
		result, err := svc.Score(ctx, &domain.ScoreRequest{
			TenantID:   tenantID,
			CustomerID: "cust-001",
			Attributes: attrs,
		}, "trace-1")
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}
		if result.BundleVersion != "v2" || result.ModelVersion != "m2" {
			t.Errorf("expected latest artifacts v2/m2, got %s/%s",
				result.BundleVersion, result.ModelVersion)
		}
	})

	t.Run("PinnedVersions", func(t *testing.T) {
		result, err := svc.Score(ctx, &domain.ScoreRequest{
			TenantID:      tenantID,
			CustomerID:    "cust-001",
			Attributes:    attrs,
			BundleVersion: "v1",
			ModelVersion:  "m1",
		}, "trace-2")
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}
		if result.BundleVersion != "v1" || result.ModelVersion != "m1" {
			t.Errorf("expected pinned artifacts v1/m1, got %s/%s",
				result.BundleVersion, result.ModelVersion)
		}
	})

	t.Run("ResultPersisted", func(t *testing.T) {
		result, err := svc.Score(ctx, &domain.ScoreRequest{
			TenantID:   tenantID,
			CustomerID: "cust-002",
			Attributes: attrs,
		}, "trace-3")
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}

		stored, err := repo.GetScoreResult(ctx, tenantID, result.ID)
		if err != nil {
			t.Fatalf("GetScoreResult failed: %v", err)
		}
		if stored.Probability != result.Probability || stored.CreditScore != result.CreditScore {
			t.Errorf("stored result differs: %+v vs %+v", stored, result)
		}
	})

	t.Run("PinnedModelAgainstWrongBundle", func(t *testing.T) {
		_, err := svc.Score(ctx, &domain.ScoreRequest{
			TenantID:      tenantID,
			CustomerID:    "cust-001",
			Attributes:    attrs,
			BundleVersion: "v2",
			ModelVersion:  "m1",
		}, "trace-4")
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for cross-generation pair, got %v", err)
		}
	})

	t.Run("MissingTenant", func(t *testing.T) {
		_, err := svc.Score(ctx, &domain.ScoreRequest{
			CustomerID: "cust-001",
			Attributes: attrs,
		}, "trace-5")
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("UnknownBundleVersion", func(t *testing.T) {
		_, err := svc.Score(ctx, &domain.ScoreRequest{
			TenantID:      tenantID,
			CustomerID:    "cust-001",
			Attributes:    attrs,
			BundleVersion: "v999",
		}, "trace-6")
		if err == nil {
			t.Error("expected error for unknown bundle version")
		}
	})
}

func TestServiceScoreNoArtifacts(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newServiceRepo(t), nil, NewScorer())

	_, err := svc.Score(ctx, &domain.ScoreRequest{
		TenantID:   "tenant-empty",
		CustomerID: "cust-001",
		Attributes: map[string]interface{}{"spend": 10.0},
	}, "trace-1")
	if err == nil {
		t.Error("expected error when no bundle has ever been fit")
	}
}

func TestServiceScoreRateCounter(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-001"
	repo := newServiceRepo(t)
	lru := cache.NewLRUCache(100)
	svc := NewService(repo, lru, NewScorer())

	bundle := fitScoringBundle(t, "v1")
	if err := repo.SaveArtifactBundle(ctx, tenantID, bundle); err != nil {
		t.Fatalf("SaveArtifactBundle failed: %v", err)
	}
	model := &domain.ModelParams{
		ID: "mid-1", Version: "m1", BundleVersion: "v1",
		Intercept: -0.5, Coefficients: map[string]float64{"spend_woe": 1.2},
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.SaveModelParams(ctx, tenantID, model); err != nil {
		t.Fatalf("SaveModelParams failed: %v", err)
	}

	req := &domain.ScoreRequest{
		TenantID:   tenantID,
		CustomerID: "cust-001",
		Attributes: map[string]interface{}{"spend": 42.0, "channel": "web"},
	}
	for i := 0; i < 2; i++ {
		if _, err := svc.Score(ctx, req, "trace-1"); err != nil {
			t.Fatalf("Score failed: %v", err)
		}
	}

	// Two scores already bumped the counter, so this observation reads 3.
	count, err := lru.IncrementCounter(ctx, tenantID, "score-rate", time.Minute)
	if err != nil {
		t.Fatalf("IncrementCounter failed: %v", err)
	}
	if count != 3 {
		t.Errorf("score-rate counter = %d, want 3", count)
	}
}
