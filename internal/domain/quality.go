package domain

import "time"

// QualityRule defines a data-quality check over ledger rows, expressed as a
// CEL expression evaluated against each incoming transaction.
type QualityRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// Expression is the violation predicate: a row fails the rule when it
	// evaluates true (or to a positive numeric score).
	Expression string `json:"expression"`

	// Severity of a violation: "warn" rows are reported, "reject" rows are
	// kept out of the training ledger.
	Severity string `json:"severity"`

	// Weight of this rule in the batch quality gate.
	Weight float64 `json:"weight"`

	Enabled bool `json:"enabled"`
}

// Quality rule severities.
const (
	SeverityWarn   = "warn"
	SeverityReject = "reject"
)

// QualityResult is the outcome of one rule against one ledger row.
type QualityResult struct {
	RuleID     string  `json:"ruleId"`
	TenantID   string  `json:"tenantId"`
	TxID       string  `json:"txId"`
	CustomerID string  `json:"customerId"`
	Field      string  `json:"field,omitempty"`
	Passed     bool    `json:"passed"`
	Severity   string  `json:"severity"`
	Reason     string  `json:"reason"`
	Score      float64 `json:"score"`
	ProcessMs  int64   `json:"processMs"`
}

// QualityGate groups quality rules with weights; a batch whose weighted
// violation rate exceeds the gate threshold blocks the pipeline run so a
// corrupted label set is never fit.
type QualityGate struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	Rules []GateRuleWeight `json:"rules"`

	// BlockThreshold is the weighted violation rate (0.0-1.0) above which
	// the gate blocks a pipeline run.
	BlockThreshold float64 `json:"blockThreshold"`

	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// GateRuleWeight binds a quality rule and its weight within a gate.
type GateRuleWeight struct {
	RuleID string  `json:"ruleId"`
	Weight float64 `json:"weight"`
}

// GateResult is the aggregated outcome of a gate over one ledger batch.
type GateResult struct {
	GateID        string             `json:"gateId"`
	GateName      string             `json:"gateName"`
	Score         float64            `json:"score"`
	Threshold     float64            `json:"threshold"`
	Blocked       bool               `json:"blocked"`
	Contributions []RuleContribution `json:"contributions,omitempty"`
	ProcessMs     int64              `json:"processMs,omitempty"`
}

// RuleContribution shows how one rule contributed to a gate score.
type RuleContribution struct {
	RuleID        string  `json:"ruleId"`
	ViolationRate float64 `json:"violationRate"`
	Weight        float64 `json:"weight"`
	Contribution  float64 `json:"contribution"`
}

// QualityReport collects per-record defects found while building the RFM
// summaries, with enough context for upstream correction.
type QualityReport struct {
	Issues []QualityIssue `json:"issues"`
}

// QualityIssue names one defective ledger row.
type QualityIssue struct {
	TxID       string `json:"txId,omitempty"`
	CustomerID string `json:"customerId,omitempty"`
	Field      string `json:"field"`
	Reason     string `json:"reason"`
}

// Add appends an issue to the report.
func (r *QualityReport) Add(txID, customerID, field, reason string) {
	r.Issues = append(r.Issues, QualityIssue{
		TxID:       txID,
		CustomerID: customerID,
		Field:      field,
		Reason:     reason,
	})
}

// Empty reports whether no issues were recorded.
func (r *QualityReport) Empty() bool {
	return len(r.Issues) == 0
}
