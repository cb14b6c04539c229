package rfm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
)

func newServiceRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "kestrel-rfm-test-*.db")
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

func TestBuildSummaries(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-001"
	repo := newServiceRepo(t)

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for c := 0; c < 4; c++ {
		for i := 0; i <= c; i++ {
			saved := &domain.Transaction{
				ID:         fmt.Sprintf("tx-%d-%d", c, i),
				CustomerID: fmt.Sprintf("cust-%03d", c),
				Amount:     float64(20 + c*10 + i),
				Currency:   "UGX",
				Timestamp:  base.AddDate(0, 0, c*2+i),
			}
			if err := repo.SaveTransaction(ctx, tenantID, saved); err != nil {
				t.Fatalf("seed failed: %v", err)
			}
		}
	}

	svc := NewService(repo, 2)

	t.Run("DefaultSnapshot", func(t *testing.T) {
		summaries, report, err := svc.BuildSummaries(ctx, tenantID, time.Time{}, 0)
		if err != nil {
			t.Fatalf("BuildSummaries failed: %v", err)
		}
		if !report.Empty() {
			t.Errorf("expected clean report, got %d issues", len(report.Issues))
		}
		if len(summaries) != 4 {
			t.Fatalf("expected 4 summaries, got %d", len(summaries))
		}
		// Latest tx is cust-003's at base+9 days; snapshot is the day after.
		want := base.AddDate(0, 0, 10)
		if !summaries[0].SnapshotDate.Equal(want) {
			t.Errorf("snapshot = %v, want %v", summaries[0].SnapshotDate, want)
		}
		if summaries[3].Frequency != 4 {
			t.Errorf("cust-003 frequency = %v, want 4", summaries[3].Frequency)
		}
	})

	t.Run("ExplicitSnapshot", func(t *testing.T) {
		snapshot := base.AddDate(0, 0, 3)
		summaries, _, err := svc.BuildSummaries(ctx, tenantID, snapshot, 0)
		if err != nil {
			t.Fatalf("BuildSummaries failed: %v", err)
		}
		// Customers whose rows all postdate the snapshot drop out.
		for _, s := range summaries {
			if !s.SnapshotDate.Equal(snapshot) {
				t.Errorf("summary %s uses snapshot %v", s.CustomerID, s.SnapshotDate)
			}
		}
	})

	t.Run("MissingTenant", func(t *testing.T) {
		_, _, err := svc.BuildSummaries(ctx, "", time.Time{}, 0)
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("EmptyWindow", func(t *testing.T) {
		_, _, err := svc.BuildSummaries(ctx, "tenant-empty", time.Time{}, 0)
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}
