package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
)

// bundleCacheTTL bounds how long a frozen bundle lives in cache. Bundles are
// immutable, so the TTL only limits memory, not staleness.
const bundleCacheTTL = time.Hour

// scoreRateWindow is the rolling window for per-tenant scoring-rate counters.
const scoreRateWindow = time.Minute

// Service resolves frozen artifacts, scores requests, and records the result.
// The cache is read-through over the repository and optional.
type Service struct {
	repo   domain.Repository
	cache  domain.Cache
	scorer *Scorer
}

// NewService creates a scoring service.
func NewService(repo domain.Repository, cache domain.Cache, scorer *Scorer) *Service {
	if scorer == nil {
		scorer = NewScorer()
	}
	return &Service{
		repo:   repo,
		cache:  cache,
		scorer: scorer,
	}
}

// Score resolves the requested bundle and model versions (empty means
// latest), runs the frozen transform and model, and persists the event.
func (s *Service) Score(ctx context.Context, req *domain.ScoreRequest, traceID string) (*domain.ScoreResult, error) {
	start := time.Now()

	if req.TenantID == "" {
		return nil, fmt.Errorf("%w: tenantId is required", domain.ErrInvalidInput)
	}

	bundle, err := s.resolveBundle(ctx, req.TenantID, req.BundleVersion)
	if err != nil {
		return nil, err
	}

	model, err := s.resolveModel(ctx, req.TenantID, req.ModelVersion)
	if err != nil {
		return nil, err
	}

	result, err := s.scorer.Score(ctx, bundle, model, req, traceID, start)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SaveScoreResult(ctx, req.TenantID, result); err != nil {
		return nil, fmt.Errorf("failed to save score result: %w", err)
	}

	metrics.ScoresTotal.WithLabelValues(req.TenantID).Inc()
	if s.cache != nil {
		// Per-tenant scoring-rate counter. Best effort, a cache outage must
		// not fail the score.
		_, _ = s.cache.IncrementCounter(ctx, req.TenantID, "score-rate", scoreRateWindow)
	}
	return result, nil
}

// resolveBundle fetches a bundle cache-first. A pinned version is served
// from cache when present; "latest" always goes to the repository since the
// latest pointer moves with each pipeline run.
func (s *Service) resolveBundle(ctx context.Context, tenantID, version string) (*domain.ArtifactBundle, error) {
	if version == "" {
		bundle, err := s.repo.LatestArtifactBundle(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("no artifact bundle available: %w", err)
		}
		s.cacheBundle(ctx, tenantID, bundle)
		return bundle, nil
	}

	if s.cache != nil {
		if bundle, err := s.cache.GetBundle(ctx, tenantID, version); err == nil && bundle != nil {
			return bundle, nil
		}
	}

	bundle, err := s.repo.GetArtifactBundle(ctx, tenantID, version)
	if err != nil {
		return nil, fmt.Errorf("artifact bundle %s: %w", version, err)
	}
	s.cacheBundle(ctx, tenantID, bundle)
	return bundle, nil
}

func (s *Service) cacheBundle(ctx context.Context, tenantID string, bundle *domain.ArtifactBundle) {
	if s.cache == nil || bundle == nil {
		return
	}
	_ = s.cache.SetBundle(ctx, tenantID, bundle.Version, bundle, bundleCacheTTL)
}

func (s *Service) resolveModel(ctx context.Context, tenantID, version string) (*domain.ModelParams, error) {
	if version == "" {
		model, err := s.repo.LatestModelParams(ctx, tenantID)
		if err != nil {
			return nil, fmt.Errorf("no model params available: %w", err)
		}
		return model, nil
	}

	model, err := s.repo.GetModelParams(ctx, tenantID, version)
	if err != nil {
		return nil, fmt.Errorf("model params %s: %w", version, err)
	}
	return model, nil
}
