package domain

import "time"

// RFMSummary holds the per-customer Recency/Frequency/Monetary statistics
// computed from the transaction ledger against a fixed snapshot date.
type RFMSummary struct {
	CustomerID string `json:"customerId"`
	TenantID   string `json:"tenantId,omitempty"`

	// Recency is whole days between the customer's most recent transaction
	// and the snapshot date.
	Recency float64 `json:"recency"`

	// Frequency is the transaction count inside the observation window.
	Frequency float64 `json:"frequency"`

	// Monetary is the signed sum of transaction amounts.
	Monetary float64 `json:"monetary"`

	// SnapshotDate anchors recency; identical for every row of one run.
	SnapshotDate time.Time `json:"snapshotDate"`
}

// Vector returns the summary as an ordered feature vector
// (recency, frequency, monetary). Order is part of the artifact contract.
func (s *RFMSummary) Vector() []float64 {
	return []float64{s.Recency, s.Frequency, s.Monetary}
}

// SegmentAssignment maps a customer to a behavioral cluster and carries the
// derived proxy label. The label is a function of the cluster centroid, never
// of the individual customer.
type SegmentAssignment struct {
	CustomerID string `json:"customerId"`
	TenantID   string `json:"tenantId,omitempty"`
	ClusterID  int    `json:"clusterId"`
	IsHighRisk bool   `json:"isHighRisk"`
}

// Centroid is a cluster center in original (unscaled) RFM units.
type Centroid struct {
	ClusterID int     `json:"clusterId"`
	Recency   float64 `json:"recency"`
	Frequency float64 `json:"frequency"`
	Monetary  float64 `json:"monetary"`
	Size      int     `json:"size"`
}

// SegmentResult is the full output of one segmentation run.
type SegmentResult struct {
	Assignments []SegmentAssignment `json:"assignments"`
	Centroids   []Centroid          `json:"centroids"`

	// HighRiskCluster is the centroid designated high-risk by the
	// lowest-engagement rule.
	HighRiskCluster int `json:"highRiskCluster"`

	// Seed and K record the configuration that produced the assignments,
	// so a run can be reproduced byte for byte.
	Seed int64 `json:"seed"`
	K    int   `json:"k"`
}
