// Package features builds the model-ready feature matrix: per-customer
// aggregates, time-derived fields, categorical encodings, and frozen WoE/IV
// binnings fit against the proxy label.
package features

import (
	"fmt"
	"math"
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Feature names produced from the ledger.
const (
	FeatAmountSum   = "amount_sum"
	FeatAmountMean  = "amount_mean"
	FeatAmountStd   = "amount_std"
	FeatAmountCount = "amount_count"
	FeatTxHour      = "tx_hour"
	FeatTxDay       = "tx_day"
	FeatTxMonth     = "tx_month"
	FeatTxYear      = "tx_year"
	FeatCategory    = "category"
	FeatChannel     = "channel"
)

// DefaultSchema declares the ledger-derived feature set. Every predictor
// gets a WoE-binned companion column except the raw calendar fields, whose
// binned versions rarely separate and mostly add audit noise.
func DefaultSchema() domain.FeatureSchema {
	return domain.FeatureSchema{
		Features: []domain.FeatureSpec{
			{Name: FeatAmountSum, Kind: domain.FeatureNumeric, WoE: true},
			{Name: FeatAmountMean, Kind: domain.FeatureNumeric, WoE: true},
			{Name: FeatAmountStd, Kind: domain.FeatureNumeric, WoE: true},
			{Name: FeatAmountCount, Kind: domain.FeatureNumeric, WoE: true},
			{Name: FeatTxHour, Kind: domain.FeatureNumeric, WoE: false},
			{Name: FeatTxDay, Kind: domain.FeatureNumeric, WoE: false},
			{Name: FeatTxMonth, Kind: domain.FeatureNumeric, WoE: false},
			{Name: FeatTxYear, Kind: domain.FeatureNumeric, WoE: false},
			{Name: FeatCategory, Kind: domain.FeatureCategorical, WoE: true},
			{Name: FeatChannel, Kind: domain.FeatureCategorical, WoE: true},
		},
	}
}

// BuildRawRows reduces the ledger to one raw attribute row per customer.
//
// Aggregates cover every valid transaction; the time and categorical fields
// come from the customer's most recent transaction (fixed customer-level
// policy). Rows failing basic validity are skipped here because the RFM
// aggregator has already reported them.
func BuildRawRows(ledger []*domain.Transaction) ([]domain.RawRow, error) {
	if len(ledger) == 0 {
		return nil, fmt.Errorf("%w: ledger is empty", domain.ErrInvalidInput)
	}

	byCustomer := make(map[string][]*domain.Transaction)
	for _, tx := range ledger {
		if tx.CustomerID == "" || tx.Timestamp.IsZero() || math.IsNaN(tx.Amount) || math.IsInf(tx.Amount, 0) {
			continue
		}
		byCustomer[tx.CustomerID] = append(byCustomer[tx.CustomerID], tx)
	}
	if len(byCustomer) == 0 {
		return nil, fmt.Errorf("%w: no valid transactions in ledger", domain.ErrDataQuality)
	}

	customers := make([]string, 0, len(byCustomer))
	for id := range byCustomer {
		customers = append(customers, id)
	}
	sort.Strings(customers)

	rows := make([]domain.RawRow, 0, len(customers))
	for _, id := range customers {
		rows = append(rows, buildCustomerRow(id, byCustomer[id]))
	}
	return rows, nil
}

func buildCustomerRow(customerID string, txs []*domain.Transaction) domain.RawRow {
	var (
		sum    float64
		latest = txs[0]
	)
	for _, tx := range txs {
		sum += tx.Amount
		if tx.Timestamp.After(latest.Timestamp) {
			latest = tx
		}
	}

	n := float64(len(txs))
	mean := sum / n

	// Population std; a single-transaction customer gets the defined
	// default of zero, never NaN.
	var sq float64
	for _, tx := range txs {
		d := tx.Amount - mean
		sq += d * d
	}
	std := math.Sqrt(sq / n)

	ts := latest.Timestamp.UTC()
	values := map[string]interface{}{
		FeatAmountSum:   sum,
		FeatAmountMean:  mean,
		FeatAmountStd:   std,
		FeatAmountCount: n,
		FeatTxHour:      float64(ts.Hour()),
		FeatTxDay:       float64(ts.Day()),
		FeatTxMonth:     float64(int(ts.Month())),
		FeatTxYear:      float64(ts.Year()),
	}
	if latest.Category != "" {
		values[FeatCategory] = latest.Category
	}
	if latest.Channel != "" {
		values[FeatChannel] = latest.Channel
	}

	return domain.RawRow{
		CustomerID: customerID,
		Values:     values,
	}
}
