package domain

import "time"

// ScoreRequest asks for a risk score for one customer's raw attributes. The
// attributes are run through the frozen transformer of the named bundle.
type ScoreRequest struct {
	TenantID   string                 `json:"tenantId"`
	CustomerID string                 `json:"customerId"`
	Attributes map[string]interface{} `json:"attributes"`

	// BundleVersion and ModelVersion select the frozen artifacts; empty
	// means latest.
	BundleVersion string `json:"bundleVersion,omitempty"`
	ModelVersion  string `json:"modelVersion,omitempty"`
}

// ScoreResult is the probability/score pair for one customer.
type ScoreResult struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenantId"`
	CustomerID string `json:"customerId"`

	// Probability of default in [0, 1].
	Probability float64 `json:"probability"`

	// CreditScore is the probability mapped onto the fixed score range via
	// the points-to-double-the-odds transform.
	CreditScore int `json:"creditScore"`

	BundleVersion string    `json:"bundleVersion"`
	ModelVersion  string    `json:"modelVersion"`
	Timestamp     time.Time `json:"timestamp"`

	Metadata ScoreMetadata `json:"metadata"`
}

// ScoreMetadata contains processing information for one scoring call.
type ScoreMetadata struct {
	TraceID       string `json:"traceId"`
	TransformMs   int64  `json:"transformMs"`
	TotalMs       int64  `json:"totalMs"`
	EngineVersion string `json:"engineVersion"`
}
