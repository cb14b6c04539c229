// Benchmark tool for testing Kestrel against a labeled transaction ledger.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/ledger.csv -url http://localhost:8080
//
// This tool:
//  1. Reads ledger rows (customer_id, amount, currency, category, channel,
//     timestamp, optional is_default label per customer)
//  2. Ingests every row, then triggers a pipeline run to fit artifacts
//  3. Scores each customer and compares the probability against the actual
//     default labels when the CSV carries them
//  4. Calculates precision, recall, F1-score, and confusion matrix
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LedgerRow represents one CSV transaction row.
type LedgerRow struct {
	CustomerID string
	Amount     float64
	Currency   string
	Category   string
	Channel    string
	Timestamp  string
	IsDefault  bool
	HasLabel   bool
}

// IngestRequest is the Kestrel API request format.
type IngestRequest struct {
	CustomerID string `json:"customerId"`
	Amount     Amount `json:"amount"`
	Category   string `json:"category,omitempty"`
	Channel    string `json:"channel,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
}

type Amount struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}

// ScoreRequest asks for one customer's score.
type ScoreRequest struct {
	CustomerID string         `json:"customerId"`
	Attributes map[string]any `json:"attributes"`
}

// ScoreResponse is the Kestrel score result.
type ScoreResponse struct {
	ID          string  `json:"id"`
	Probability float64 `json:"probability"`
	CreditScore int     `json:"creditScore"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64 // Defaulters scored above threshold
	FalsePositives int64 // Non-defaulters scored above threshold
	TrueNegatives  int64 // Non-defaulters scored below threshold
	FalseNegatives int64 // Defaulters scored below threshold (missed!)

	TotalScored   int64
	TotalDefault  int64
	TotalHealthy  int64
	TotalErrors   int64
	ScoreSum      int64 // sum of credit scores, for the average
	ProcessTimeMs int64
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to ledger CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 0, "Maximum ledger rows to ingest (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	threshold := flag.Float64("threshold", 0.5, "Probability above which a customer counts as predicted default")
	verbose := flag.Bool("verbose", false, "Print each customer result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/ledger.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║          KESTREL BENCHMARK - Default Risk Scoring             ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Kestrel URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Printf("Threshold:   %.2f\n", *threshold)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	// Read ledger data
	fmt.Printf("\nReading ledger from %s...\n", *csvPath)
	rows, labels, err := readLedgerCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d ledger rows across %d customers\n", len(rows), len(labels))

	client := &http.Client{Timeout: 30 * time.Second}

	// Phase 1: ingest
	fmt.Printf("\nIngesting ledger with %d workers...\n", *workers)
	ingestStart := time.Now()
	errCount := ingestLedger(client, rows, *baseURL, *tenantID, *workers)
	fmt.Printf("✓ Ingest done in %v (%d errors)\n", time.Since(ingestStart).Round(time.Millisecond), errCount)

	// Phase 2: fit
	fmt.Println("\nRunning pipeline fit...")
	fitStart := time.Now()
	if err := runPipeline(client, *baseURL, *tenantID); err != nil {
		fmt.Printf("ERROR: Pipeline run failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Pipeline fit done in %v\n", time.Since(fitStart).Round(time.Millisecond))

	// Phase 3: score every customer
	fmt.Printf("\nScoring %d customers...\n", len(labels))
	scoreStart := time.Now()
	metrics := scoreCustomers(client, rows, labels, *baseURL, *tenantID, *workers, *threshold, *verbose)
	duration := time.Since(scoreStart)

	printResults(metrics, duration, *threshold)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// customerLabel tracks the known outcome for one customer.
type customerLabel struct {
	IsDefault bool
	HasLabel  bool
}

func readLedgerCSV(path string, limit int) ([]LedgerRow, map[string]customerLabel, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map column indices
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	if _, ok := colIndex["customer_id"]; !ok {
		return nil, nil, fmt.Errorf("csv missing customer_id column")
	}
	if _, ok := colIndex["amount"]; !ok {
		return nil, nil, fmt.Errorf("csv missing amount column")
	}
	_, hasLabelCol := colIndex["is_default"]

	var rows []LedgerRow
	labels := make(map[string]customerLabel)

	field := func(record []string, name string) string {
		if idx, ok := colIndex[name]; ok && idx < len(record) {
			return record[idx]
		}
		return ""
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		amount, _ := strconv.ParseFloat(field(record, "amount"), 64)
		row := LedgerRow{
			CustomerID: field(record, "customer_id"),
			Amount:     amount,
			Currency:   field(record, "currency"),
			Category:   field(record, "category"),
			Channel:    field(record, "channel"),
			Timestamp:  field(record, "timestamp"),
		}
		if row.Currency == "" {
			row.Currency = "UGX"
		}
		if hasLabelCol {
			row.HasLabel = true
			row.IsDefault = field(record, "is_default") == "1"
		}

		rows = append(rows, row)
		labels[row.CustomerID] = customerLabel{IsDefault: row.IsDefault, HasLabel: row.HasLabel}

		if limit > 0 && len(rows) >= limit {
			break
		}
	}

	return rows, labels, nil
}

func ingestLedger(client *http.Client, rows []LedgerRow, baseURL, tenantID string, numWorkers int) int64 {
	var errCount int64
	work := make(chan LedgerRow, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for row := range work {
				req := IngestRequest{
					CustomerID: row.CustomerID,
					Amount:     Amount{Value: row.Amount, Currency: row.Currency},
					Category:   row.Category,
					Channel:    row.Channel,
					Timestamp:  row.Timestamp,
				}
				if err := postJSON(client, baseURL+"/transactions", tenantID, req, nil); err != nil {
					atomic.AddInt64(&errCount, 1)
				}
			}
		}()
	}

	for _, row := range rows {
		work <- row
	}
	close(work)
	wg.Wait()

	return errCount
}

func runPipeline(client *http.Client, baseURL, tenantID string) error {
	return postJSON(client, baseURL+"/pipeline/run", tenantID, struct{}{}, nil)
}

func scoreCustomers(client *http.Client, rows []LedgerRow, labels map[string]customerLabel, baseURL, tenantID string, numWorkers int, threshold float64, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Rebuild each customer's raw attributes from their ledger rows, the same
	// aggregates the server fits on.
	type agg struct {
		sum, sq  float64
		count    float64
		category string
		channel  string
	}
	byCustomer := make(map[string]*agg)
	for _, row := range rows {
		a := byCustomer[row.CustomerID]
		if a == nil {
			a = &agg{}
			byCustomer[row.CustomerID] = a
		}
		a.sum += row.Amount
		a.sq += row.Amount * row.Amount
		a.count++
		a.category = row.Category
		a.channel = row.Channel
	}

	work := make(chan string, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for customerID := range work {
				a := byCustomer[customerID]
				mean := a.sum / a.count
				variance := a.sq/a.count - mean*mean
				if variance < 0 {
					variance = 0
				}

				req := ScoreRequest{
					CustomerID: customerID,
					Attributes: map[string]any{
						"amount_sum":   a.sum,
						"amount_mean":  mean,
						"amount_std":   sqrt(variance),
						"amount_count": a.count,
						"category":     a.category,
						"channel":      a.channel,
					},
				}

				start := time.Now()
				var result ScoreResponse
				err := postJSON(client, baseURL+"/score", tenantID, req, &result)
				atomic.AddInt64(&metrics.ProcessTimeMs, time.Since(start).Milliseconds())
				atomic.AddInt64(&metrics.TotalScored, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", customerID, err)
					}
					continue
				}
				atomic.AddInt64(&metrics.ScoreSum, int64(result.CreditScore))

				label := labels[customerID]
				if !label.HasLabel {
					continue
				}

				if label.IsDefault {
					atomic.AddInt64(&metrics.TotalDefault, 1)
				} else {
					atomic.AddInt64(&metrics.TotalHealthy, 1)
				}

				predicted := result.Probability >= threshold
				actual := label.IsDefault

				switch {
				case predicted && actual:
					atomic.AddInt64(&metrics.TruePositives, 1)
				case predicted && !actual:
					atomic.AddInt64(&metrics.FalsePositives, 1)
				case !predicted && !actual:
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				default:
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if predicted != actual {
						status = "✗"
					}
					fmt.Printf("%s %-16s | P(default): %.4f | Score: %4d | Actual default: %v\n",
						status, customerID, result.Probability, result.CreditScore, actual)
				}
			}
		}()
	}

	for customerID := range byCustomer {
		work <- customerID
	}
	close(work)
	wg.Wait()

	return metrics
}

func sqrt(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Sqrt(v)
}

func postJSON(client *http.Client, url, tenantID string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func printResults(m *Metrics, duration time.Duration, threshold float64) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Customers Scored: %d\n", m.TotalScored)
	fmt.Printf("   Known Defaults:   %d\n", m.TotalDefault)
	fmt.Printf("   Known Healthy:    %d\n", m.TotalHealthy)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)
	if m.TotalScored > m.TotalErrors {
		fmt.Printf("   Avg Credit Score: %d\n", m.ScoreSum/(m.TotalScored-m.TotalErrors))
	}

	labeled := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if labeled == 0 {
		fmt.Println("\n   CSV carried no is_default labels; skipping detection metrics.")
		printPerformance(m, duration)
		return
	}

	fmt.Printf("\n📈 CONFUSION MATRIX (threshold %.2f)\n", threshold)
	fmt.Println("                        Predicted")
	fmt.Println("                   Default     Healthy")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  D  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("           H  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	// Calculate metrics
	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(m.TruePositives+m.TrueNegatives) / float64(labeled)

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of predicted defaults, how many actually defaulted)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of actual defaults, how many we flagged)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	printPerformance(m, duration)
}

func printPerformance(m *Metrics, duration time.Duration) {
	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalScored > 0 {
		avgMs := float64(m.ProcessTimeMs) / float64(m.TotalScored)
		tps := float64(m.TotalScored) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f scores/sec\n", tps)
	}
	fmt.Println()
}
