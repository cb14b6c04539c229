package rfm

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Service loads the ledger for a tenant and runs the aggregator over it.
type Service struct {
	repo domain.Repository
	agg  *Aggregator
}

// NewService creates a new RFM service.
func NewService(repo domain.Repository, workers int) *Service {
	return &Service{
		repo: repo,
		agg:  NewAggregator(workers),
	}
}

// BuildSummaries loads the tenant's ledger bounded by windowDays and
// aggregates it against the snapshot date. A zero snapshot falls back to the
// day after the latest transaction.
func (s *Service) BuildSummaries(ctx context.Context, tenantID string, snapshot time.Time, windowDays int) ([]domain.RFMSummary, *domain.QualityReport, error) {
	if tenantID == "" {
		return nil, nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	since := time.Time{}
	if windowDays > 0 {
		anchor := snapshot
		if anchor.IsZero() {
			anchor = time.Now().UTC()
		}
		since = anchor.AddDate(0, 0, -windowDays)
	}

	ledger, err := s.repo.ListTransactions(ctx, tenantID, since)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	if len(ledger) == 0 {
		return nil, nil, fmt.Errorf("%w: no transactions in window", domain.ErrInvalidInput)
	}

	if snapshot.IsZero() {
		snapshot, err = DefaultSnapshot(ledger)
		if err != nil {
			return nil, nil, err
		}
	}

	return s.agg.Aggregate(ctx, ledger, snapshot)
}
