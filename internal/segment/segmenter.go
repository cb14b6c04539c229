// Package segment clusters customers on RFM features and designates the
// least-engaged cluster as high-risk, producing the proxy training label.
package segment

import (
	"fmt"
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/features"
)

// Segmenter groups customers into k behavioral clusters with a fixed seed.
type Segmenter struct {
	K    int
	Seed int64
}

// New creates a segmenter.
func New(k int, seed int64) *Segmenter {
	return &Segmenter{K: k, Seed: seed}
}

// rfmColumns is the fixed feature order fed to the clusterer.
var rfmColumns = []string{"recency", "frequency", "monetary"}

// Segment scales the RFM summaries, clusters them, and flags the high-risk
// cluster. It returns the fitted scaler params so inference can reuse the
// identical normalization.
//
// The high-risk designation is a policy over cluster centroids in original
// RFM units, never over individual customers: the cluster minimizing
// rank(frequency asc) + rank(monetary asc) + rank(recency desc) is flagged.
// Rank ties are broken toward the cluster with the highest recency, then the
// lowest cluster id.
func (s *Segmenter) Segment(summaries []domain.RFMSummary) (*domain.SegmentResult, domain.ScalerParams, error) {
	if s.K < 2 {
		return nil, domain.ScalerParams{}, fmt.Errorf("%w: k must be >= 2, got %d", domain.ErrInvalidInput, s.K)
	}
	if len(summaries) < s.K {
		return nil, domain.ScalerParams{}, fmt.Errorf("%w: %d customers for k=%d", domain.ErrDegenerate, len(summaries), s.K)
	}

	// Deterministic row order regardless of how the summaries arrived.
	rows := make([]domain.RFMSummary, len(summaries))
	copy(rows, summaries)
	sort.Slice(rows, func(i, j int) bool { return rows[i].CustomerID < rows[j].CustomerID })

	raw := make([][]float64, len(rows))
	for i := range rows {
		raw[i] = rows[i].Vector()
	}

	// Cluster quality is scale-sensitive: monetary sums dwarf day counts.
	// Standardize before clustering, tolerating flat columns (std treated
	// as 1) since a uniform recency is valid clustering input.
	scaler, err := features.FitScaler(rfmColumns, raw, false)
	if err != nil {
		return nil, domain.ScalerParams{}, err
	}
	scaled := features.ApplyScaler(scaler, raw)

	assignments, _, err := newKMeans(s.K, s.Seed).fit(scaled)
	if err != nil {
		return nil, domain.ScalerParams{}, err
	}

	centroids := originalCentroids(rows, assignments, s.K)
	highRisk := designateHighRisk(centroids)

	result := &domain.SegmentResult{
		Assignments:     make([]domain.SegmentAssignment, len(rows)),
		Centroids:       centroids,
		HighRiskCluster: highRisk,
		Seed:            s.Seed,
		K:               s.K,
	}
	for i := range rows {
		result.Assignments[i] = domain.SegmentAssignment{
			CustomerID: rows[i].CustomerID,
			TenantID:   rows[i].TenantID,
			ClusterID:  assignments[i],
			IsHighRisk: assignments[i] == highRisk,
		}
	}

	return result, scaler, nil
}

// originalCentroids computes member means in original RFM units. Because
// standardization is affine, these equal the inverse-transformed scaled
// centroids.
func originalCentroids(rows []domain.RFMSummary, assignments []int, k int) []domain.Centroid {
	centroids := make([]domain.Centroid, k)
	for c := range centroids {
		centroids[c].ClusterID = c
	}

	for i, row := range rows {
		c := &centroids[assignments[i]]
		c.Size++
		c.Recency += row.Recency
		c.Frequency += row.Frequency
		c.Monetary += row.Monetary
	}

	for c := range centroids {
		if centroids[c].Size == 0 {
			continue
		}
		n := float64(centroids[c].Size)
		centroids[c].Recency /= n
		centroids[c].Frequency /= n
		centroids[c].Monetary /= n
	}
	return centroids
}

// designateHighRisk flags the least-engaged centroid: lowest frequency and
// monetary, highest recency, combined by rank.
func designateHighRisk(centroids []domain.Centroid) int {
	riskScore := make([]int, len(centroids))
	for i := range centroids {
		riskScore[i] = rankOf(centroids, i, func(c domain.Centroid) float64 { return c.Frequency }, true) +
			rankOf(centroids, i, func(c domain.Centroid) float64 { return c.Monetary }, true) +
			rankOf(centroids, i, func(c domain.Centroid) float64 { return c.Recency }, false)
	}

	best := 0
	for i := 1; i < len(centroids); i++ {
		if riskScore[i] < riskScore[best] {
			best = i
			continue
		}
		if riskScore[i] == riskScore[best] {
			// Explicit tie-break: most recently inactive first, then the
			// lower cluster id. Cluster ids carry no semantic order, so the
			// rule must not lean on clustering-library output order.
			if centroids[i].Recency > centroids[best].Recency {
				best = i
			}
		}
	}
	return best
}

// rankOf returns the 1-based rank of centroid idx under the given key,
// ascending or descending. Equal keys share the lower rank, mirroring a
// minimum-rank convention.
func rankOf(centroids []domain.Centroid, idx int, key func(domain.Centroid) float64, ascending bool) int {
	rank := 1
	v := key(centroids[idx])
	for i := range centroids {
		if i == idx {
			continue
		}
		o := key(centroids[i])
		if (ascending && o < v) || (!ascending && o > v) {
			rank++
		}
	}
	return rank
}
