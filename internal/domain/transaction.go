package domain

import (
	"time"
)

// Transaction represents one ledger row: a single customer purchase event
// from the e-commerce partner feed.
type Transaction struct {
	// Core identifiers
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	// Customer who made the transaction
	CustomerID string `json:"customerId"`

	// Financial details. Amount is signed: debits (spend) are positive,
	// refunds/credits negative.
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`

	// Product category and sales channel (categorical attributes)
	Category string `json:"category"`
	Channel  string `json:"channel"`

	// Temporal
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`

	// Optional metadata
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// IngestRequest is the API request payload for transaction ingestion.
type IngestRequest struct {
	TenantID   string                 `json:"tenantId"`
	CustomerID string                 `json:"customerId"`
	Amount     Amount                 `json:"amount"`
	Category   string                 `json:"category"`
	Channel    string                 `json:"channel"`
	Timestamp  *time.Time             `json:"timestamp,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Amount represents a monetary value.
type Amount struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}

// ToTransaction converts a request to a Transaction domain object.
func (r *IngestRequest) ToTransaction() *Transaction {
	now := time.Now().UTC()
	ts := now
	if r.Timestamp != nil {
		ts = r.Timestamp.UTC()
	}
	return &Transaction{
		TenantID:   r.TenantID,
		CustomerID: r.CustomerID,
		Amount:     r.Amount.Value,
		Currency:   r.Amount.Currency,
		Category:   r.Category,
		Channel:    r.Channel,
		Timestamp:  ts,
		CreatedAt:  now,
		Metadata:   r.Metadata,
	}
}
