// Package rfm computes per-customer Recency/Frequency/Monetary summaries
// from the transaction ledger.
package rfm

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Aggregator turns a transaction ledger into one RFM summary per customer.
// It is a pure function of its inputs: same ledger and snapshot date always
// produce the same summaries.
type Aggregator struct {
	workers int
}

// NewAggregator creates an aggregator with a bounded partition worker pool.
func NewAggregator(workers int) *Aggregator {
	if workers <= 0 {
		workers = 4
	}
	return &Aggregator{workers: workers}
}

// Aggregate computes RFM summaries for every distinct customer in the ledger.
//
// Defective rows (empty customer id, zero timestamp, non-finite amount) are
// recorded in the quality report and excluded; they are never silently
// dropped. Customers whose every transaction postdates the snapshot are
// excluded and reported, so downstream row-count invariants stay checkable.
func (a *Aggregator) Aggregate(ctx context.Context, ledger []*domain.Transaction, snapshot time.Time) ([]domain.RFMSummary, *domain.QualityReport, error) {
	if len(ledger) == 0 {
		return nil, nil, fmt.Errorf("%w: ledger is empty", domain.ErrInvalidInput)
	}
	if snapshot.IsZero() {
		return nil, nil, fmt.Errorf("%w: snapshot date is required", domain.ErrInvalidInput)
	}

	report := &domain.QualityReport{}

	// Group valid rows by customer. Grouping is single-pass; the per-customer
	// reductions below run in parallel.
	byCustomer := make(map[string][]*domain.Transaction)
	for _, tx := range ledger {
		if tx.CustomerID == "" {
			report.Add(tx.ID, "", "customer_id", "missing customer id")
			continue
		}
		if tx.Timestamp.IsZero() {
			report.Add(tx.ID, tx.CustomerID, "timestamp", "missing timestamp")
			continue
		}
		if math.IsNaN(tx.Amount) || math.IsInf(tx.Amount, 0) {
			report.Add(tx.ID, tx.CustomerID, "amount", "amount is not finite")
			continue
		}
		byCustomer[tx.CustomerID] = append(byCustomer[tx.CustomerID], tx)
	}

	if len(byCustomer) == 0 {
		return nil, report, fmt.Errorf("%w: no valid transactions in ledger", domain.ErrDataQuality)
	}

	customers := make([]string, 0, len(byCustomer))
	for id := range byCustomer {
		customers = append(customers, id)
	}
	sort.Strings(customers)

	// Each customer's reduction is independent and order-insensitive, so the
	// partitions share no mutable state. Results land in a preallocated
	// slice slot per customer.
	summaries := make([]*domain.RFMSummary, len(customers))
	reports := make([]*domain.QualityReport, len(customers))

	var wg sync.WaitGroup
	sem := make(chan struct{}, a.workers)

	for i, customerID := range customers {
		wg.Add(1)
		go func(idx int, id string) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			summary, rep := reduceCustomer(id, byCustomer[id], snapshot)
			summaries[idx] = summary
			reports[idx] = rep
		}(i, customerID)
	}

	wg.Wait()

	// Merge by concatenation in sorted customer order; customer ids are
	// unique by construction of the grouping map.
	out := make([]domain.RFMSummary, 0, len(customers))
	for i := range customers {
		if reports[i] != nil {
			report.Issues = append(report.Issues, reports[i].Issues...)
		}
		if summaries[i] != nil {
			out = append(out, *summaries[i])
		}
	}

	if len(out) == 0 {
		return nil, report, fmt.Errorf("%w: no customer has transactions before the snapshot date", domain.ErrDataQuality)
	}

	return out, report, ctx.Err()
}

// reduceCustomer computes one customer's summary. Returns a nil summary when
// the customer has no transactions at or before the snapshot.
func reduceCustomer(customerID string, txs []*domain.Transaction, snapshot time.Time) (*domain.RFMSummary, *domain.QualityReport) {
	var (
		count    int
		monetary float64
		last     time.Time
	)

	for _, tx := range txs {
		if tx.Timestamp.After(snapshot) {
			continue
		}
		count++
		monetary += tx.Amount
		if tx.Timestamp.After(last) {
			last = tx.Timestamp
		}
	}

	if count == 0 {
		rep := &domain.QualityReport{}
		rep.Add("", customerID, "timestamp", "no transactions at or before snapshot date")
		return nil, rep
	}

	return &domain.RFMSummary{
		CustomerID:   customerID,
		Recency:      recencyDays(snapshot, last),
		Frequency:    float64(count),
		Monetary:     monetary,
		SnapshotDate: snapshot,
	}, nil
}

// recencyDays is the whole number of days between the last transaction and
// the snapshot, truncated toward zero.
func recencyDays(snapshot, last time.Time) float64 {
	return math.Trunc(snapshot.Sub(last).Hours() / 24)
}

// DefaultSnapshot returns the day after the latest transaction timestamp,
// the convention used when no snapshot date is configured.
func DefaultSnapshot(ledger []*domain.Transaction) (time.Time, error) {
	var latest time.Time
	for _, tx := range ledger {
		if tx.Timestamp.After(latest) {
			latest = tx.Timestamp
		}
	}
	if latest.IsZero() {
		return time.Time{}, fmt.Errorf("%w: ledger has no parseable timestamps", domain.ErrDataQuality)
	}
	return latest.AddDate(0, 0, 1), nil
}
