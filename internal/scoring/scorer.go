// Package scoring turns a transformed feature row and an externally fitted
// logistic model into a default probability and a credit score.
package scoring

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/features"
)

// EngineVersion is stamped into score metadata.
const EngineVersion = "kestrel-1.0"

// Scorer is stateless: every call receives the frozen bundle and model
// explicitly, so concurrent scoring can never observe a partial re-fit.
type Scorer struct {
	// Points-to-double-the-odds scorecard mapping: BaseScore points at
	// BaseOdds (good:bad), PDO points added per doubling of the odds.
	BaseScore float64
	BaseOdds  float64
	PDO       float64

	// Score clamp range.
	MinScore int
	MaxScore int
}

// NewScorer creates a scorer with the standard 300-850 scale.
func NewScorer() *Scorer {
	return &Scorer{
		BaseScore: 650,
		BaseOdds:  19,
		PDO:       50,
		MinScore:  300,
		MaxScore:  850,
	}
}

// Score transforms the raw attributes with the frozen bundle, applies the
// logistic model, and maps the probability onto the score scale.
func (s *Scorer) Score(ctx context.Context, bundle *domain.ArtifactBundle, model *domain.ModelParams, req *domain.ScoreRequest, traceID string, start time.Time) (*domain.ScoreResult, error) {
	if req.CustomerID == "" {
		return nil, fmt.Errorf("%w: customerId is required", domain.ErrInvalidInput)
	}
	if model.BundleVersion != "" && model.BundleVersion != bundle.Version {
		return nil, fmt.Errorf("%w: model %s was fit against bundle %s, not %s",
			domain.ErrInvalidInput, model.Version, model.BundleVersion, bundle.Version)
	}

	transformStart := time.Now()
	row, err := features.ApplyRow(bundle, domain.RawRow{
		CustomerID: req.CustomerID,
		Values:     req.Attributes,
	})
	if err != nil {
		return nil, err
	}
	transformMs := time.Since(transformStart).Milliseconds()

	prob, err := s.Probability(model, row)
	if err != nil {
		return nil, err
	}

	return &domain.ScoreResult{
		ID:            uuid.New().String(),
		TenantID:      req.TenantID,
		CustomerID:    req.CustomerID,
		Probability:   prob,
		CreditScore:   s.CreditScore(prob),
		BundleVersion: bundle.Version,
		ModelVersion:  model.Version,
		Timestamp:     time.Now().UTC(),
		Metadata: domain.ScoreMetadata{
			TraceID:       traceID,
			TransformMs:   transformMs,
			TotalMs:       time.Since(start).Milliseconds(),
			EngineVersion: EngineVersion,
		},
	}, nil
}

// Probability evaluates the logistic link over the named coefficients.
// Every coefficient must find its column in the row; a miss means the model
// and bundle disagree and the result would be silently wrong.
func (s *Scorer) Probability(model *domain.ModelParams, row *domain.FeatureRow) (float64, error) {
	z := model.Intercept
	for col, coef := range model.Coefficients {
		v, ok := row.Value(col)
		if !ok {
			return 0, fmt.Errorf("%w: model coefficient %q has no matching feature column", domain.ErrInvalidInput, col)
		}
		z += coef * v
	}
	return 1 / (1 + math.Exp(-z)), nil
}

// CreditScore maps a default probability onto the score range with the
// points-to-double-the-odds transform. Monotonic: lower probability, higher
// score.
func (s *Scorer) CreditScore(probability float64) int {
	// Guard the odds against the open interval ends.
	p := math.Min(math.Max(probability, 1e-9), 1-1e-9)
	odds := (1 - p) / p

	factor := s.PDO / math.Ln2
	offset := s.BaseScore - factor*math.Log(s.BaseOdds)
	score := int(math.Round(offset + factor*math.Log(odds)))

	if score < s.MinScore {
		score = s.MinScore
	}
	if score > s.MaxScore {
		score = s.MaxScore
	}
	return score
}
