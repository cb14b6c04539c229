package domain

import "time"

// ArtifactBundle is the frozen, versioned output of a pipeline fit: every
// parameter needed to reproduce the feature transform on unseen data.
// Bundles are immutable after fitting; a re-fit produces a new version.
type ArtifactBundle struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId,omitempty"`
	Version  string `json:"version"`

	// Schema the bundle was fit against. Apply rejects rows that do not
	// match it.
	Schema FeatureSchema `json:"schema"`

	// RFMScaler standardizes RFM features before clustering.
	RFMScaler ScalerParams `json:"rfmScaler"`

	// Centroids of the segmentation run that produced the training label.
	Centroids       []Centroid `json:"centroids"`
	HighRiskCluster int        `json:"highRiskCluster"`
	Seed            int64      `json:"seed"`
	K               int        `json:"k"`

	// Per-feature fitted state, keyed by feature name.
	Imputers map[string]ImputerParams `json:"imputers"`
	Encoders map[string]EncoderMap    `json:"encoders"`
	Scaler   ScalerParams             `json:"scaler"`
	BinMaps  map[string]BinMap        `json:"binMaps"`

	// WeakFeatures lists features whose IV fell below the configured
	// threshold. Surfaced for review, never dropped automatically.
	WeakFeatures []string `json:"weakFeatures,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	Frozen    bool      `json:"frozen"`
}

// ScalerParams holds per-column standardization parameters (zero mean,
// unit variance) fit on the training population only.
type ScalerParams struct {
	Columns []string  `json:"columns"`
	Means   []float64 `json:"means"`
	Stds    []float64 `json:"stds"`
}

// ImputerParams holds the fitted fill value for one feature.
type ImputerParams struct {
	// Strategy is "median" for numeric features, "missing_category" for
	// categorical features.
	Strategy string `json:"strategy"`

	// NumericFill is the training median (median strategy).
	NumericFill float64 `json:"numericFill,omitempty"`

	// CategoryFill is the fallback category (missing_category strategy).
	CategoryFill string `json:"categoryFill,omitempty"`
}

// EncoderMap is a deterministic category-to-code mapping fit on the training
// vocabulary. Code 0 is reserved for unseen categories.
type EncoderMap struct {
	// Vocabulary maps known categories to codes >= 1, assigned in sorted
	// category order for determinism.
	Vocabulary map[string]int `json:"vocabulary"`
}

// Code returns the numeric code for a category, or 0 (the unknown bucket)
// when the category was not in the training vocabulary.
func (e EncoderMap) Code(category string) int {
	return e.Vocabulary[category]
}

// BinMap is an ordered, disjoint partition of a feature's range with the
// Weight-of-Evidence value fit against the proxy label for each bin.
type BinMap struct {
	Feature string `json:"feature"`

	// Kind is "numeric" (interval bins) or "categorical" (category groups).
	Kind string `json:"kind"`

	Bins []Bin `json:"bins"`

	// IV is the feature's total Information Value, the sum of per-bin
	// contributions.
	IV float64 `json:"iv"`
}

// Bin is one interval or category group with its fitted WoE.
type Bin struct {
	// Interval bounds for numeric bins: lower inclusive, upper exclusive.
	// The first bin's lower and the last bin's upper are -Inf/+Inf,
	// stored as nil so the map survives JSON round-trips.
	Lower *float64 `json:"lower,omitempty"`
	Upper *float64 `json:"upper,omitempty"`

	// Categories grouped into this bin (categorical bin maps only).
	Categories []string `json:"categories,omitempty"`

	WoE            float64 `json:"woe"`
	IVContribution float64 `json:"ivContribution"`
	CountGood      int     `json:"countGood"`
	CountBad       int     `json:"countBad"`
}

// ModelParams is an externally fitted logistic model consumed by the scorer:
// intercept plus one coefficient per transformed feature column.
type ModelParams struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId,omitempty"`
	Version  string `json:"version"`

	// BundleVersion ties the model to the artifact bundle whose feature
	// columns the coefficients index.
	BundleVersion string `json:"bundleVersion"`

	Intercept    float64            `json:"intercept"`
	Coefficients map[string]float64 `json:"coefficients"`

	CreatedAt time.Time `json:"createdAt"`
}
