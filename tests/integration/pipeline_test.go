//go:build integration
// +build integration

// Package integration provides end-to-end tests for the Kestrel scoring
// pipeline against a running server.
//
// These tests verify the COMPLETE fit-then-score flow:
//
//	Ledger ingest → Pipeline run (RFM → segments → frozen artifacts)
//	→ Model registration → Scoring
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// UNDERSTANDING THE DOMAIN:
//
//  1. TRANSACTION: One ledger row, a customer purchase event.
//
//  2. PIPELINE RUN: Aggregates RFM per customer, clusters them, designates
//     the least-engaged cluster high-risk, and freezes a versioned artifact
//     bundle with every fitted transform parameter.
//
//  3. MODEL: Externally fitted logistic coefficients registered against a
//     bundle version. The scorer never fits anything itself.
//
//  4. SCORE: Probability of default in (0,1) plus a credit score in
//     [300,850] via the points-to-double-the-odds mapping.
//
// The server must be running with an empty or disposable database; the test
// uses its own tenant so existing data is unaffected.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration.
type TestConfig struct {
	BaseURL  string
	TenantID string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("KESTREL_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return TestConfig{
		BaseURL:  baseURL,
		TenantID: fmt.Sprintf("itest-%d", time.Now().UnixNano()),
	}
}

// ============================================================================
// API Request/Response Types (matching Kestrel's API contract)
// ============================================================================

type IngestRequest struct {
	CustomerID string    `json:"customerId"`
	Amount     Amount    `json:"amount"`
	Category   string    `json:"category,omitempty"`
	Channel    string    `json:"channel,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type Amount struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}

type RunResult struct {
	TenantID      string    `json:"tenantId"`
	BundleVersion string    `json:"bundleVersion"`
	SnapshotDate  time.Time `json:"snapshotDate"`
	Customers     int       `json:"customers"`
	HighRisk      int       `json:"highRisk"`
}

type ArtifactBundle struct {
	Version string `json:"version"`
	Frozen  bool   `json:"frozen"`
	K       int    `json:"k"`
	Seed    int64  `json:"seed"`
	Schema  struct {
		Features []struct {
			Name string `json:"name"`
			Kind string `json:"kind"`
		} `json:"features"`
	} `json:"schema"`
}

type ScoreResult struct {
	ID            string  `json:"id"`
	CustomerID    string  `json:"customerId"`
	Probability   float64 `json:"probability"`
	CreditScore   int     `json:"creditScore"`
	BundleVersion string  `json:"bundleVersion"`
	ModelVersion  string  `json:"modelVersion"`
	Metadata      struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
	} `json:"metadata"`
}

// ============================================================================
// Test Helper Functions
// ============================================================================

func doRequest(t *testing.T, config TestConfig, method, path string, body any, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequest(method, config.BaseURL+path, reader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", config.TenantID)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}

	if out != nil && resp.StatusCode < 300 {
		if err := json.Unmarshal(respBody, out); err != nil {
			t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(respBody))
		}
	}
	return resp.StatusCode
}

// seedLedger ingests a ledger with a deliberate engagement spread: active
// customers with many recent transactions and dormant ones with a single
// old, small transaction.
func seedLedger(t *testing.T, config TestConfig) {
	t.Helper()

	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	for c := 0; c < 15; c++ {
		customerID := fmt.Sprintf("cust-%03d", c)
		txCount := 1 + c%5
		for i := 0; i < txCount; i++ {
			req := IngestRequest{
				CustomerID: customerID,
				Amount:     Amount{Value: 100 + float64(c*50+i*25), Currency: "UGX"},
				Category:   []string{"airtime", "data", "utility"}[c%3],
				Channel:    []string{"android", "web", "ios"}[c%3],
				Timestamp:  base.AddDate(0, 0, c*3+i),
			}
			code := doRequest(t, config, http.MethodPost, "/transactions", req, nil)
			if code != http.StatusCreated {
				t.Fatalf("Seed ingest failed with status %d", code)
			}
		}
	}
}

// ============================================================================
// SCENARIO 1: Full Fit-Then-Score Flow
// ============================================================================

func TestFullPipelineAndScore(t *testing.T) {
	config := getTestConfig()

	// Verify the server is up before seeding anything
	resp, err := http.Get(config.BaseURL + "/health")
	if err != nil {
		t.Skipf("Kestrel not reachable at %s: %v", config.BaseURL, err)
	}
	resp.Body.Close()

	seedLedger(t, config)

	// Run the pipeline: aggregate, segment, fit, freeze
	var run RunResult
	code := doRequest(t, config, http.MethodPost, "/pipeline/run", struct{}{}, &run)
	if code != http.StatusOK {
		t.Fatalf("Expected 200 from pipeline run, got %d", code)
	}
	if run.BundleVersion == "" {
		t.Fatal("Expected bundleVersion in run result")
	}
	if run.Customers != 15 {
		t.Errorf("Expected 15 customers, got %d", run.Customers)
	}
	if run.HighRisk <= 0 || run.HighRisk >= run.Customers {
		t.Errorf("Expected a proper high-risk subset, got %d of %d", run.HighRisk, run.Customers)
	}
	t.Logf("✓ Pipeline run: bundle=%s, customers=%d, high-risk=%d",
		run.BundleVersion, run.Customers, run.HighRisk)

	// The bundle must be frozen and carry the segmentation provenance
	var bundle ArtifactBundle
	code = doRequest(t, config, http.MethodGet, "/pipeline/artifacts/"+run.BundleVersion, nil, &bundle)
	if code != http.StatusOK {
		t.Fatalf("Expected 200 fetching artifact, got %d", code)
	}
	if !bundle.Frozen {
		t.Error("Expected artifact bundle to be frozen")
	}
	if bundle.K < 2 {
		t.Errorf("Expected k >= 2 recorded in bundle, got %d", bundle.K)
	}

	// Register a model against the bundle
	coefficients := make(map[string]float64)
	for _, f := range bundle.Schema.Features {
		coefficients[f.Name] = 0.25
	}
	model := map[string]any{
		"version":       "itest-m1",
		"bundleVersion": run.BundleVersion,
		"intercept":     -1.0,
		"coefficients":  coefficients,
	}
	code = doRequest(t, config, http.MethodPost, "/models", model, nil)
	if code != http.StatusCreated {
		t.Fatalf("Expected 201 registering model, got %d", code)
	}

	// Score a customer
	scoreReq := map[string]any{
		"customerId": "cust-001",
		"attributes": map[string]any{
			"amount_sum":   450.0,
			"amount_mean":  150.0,
			"amount_std":   25.0,
			"amount_count": 3.0,
			"category":     "data",
			"channel":      "web",
		},
	}
	var score ScoreResult
	code = doRequest(t, config, http.MethodPost, "/score", scoreReq, &score)
	if code != http.StatusOK {
		t.Fatalf("Expected 200 from score, got %d", code)
	}

	if score.Probability <= 0 || score.Probability >= 1 {
		t.Errorf("Probability out of range: %f", score.Probability)
	}
	if score.CreditScore < 300 || score.CreditScore > 850 {
		t.Errorf("Credit score out of range: %d", score.CreditScore)
	}
	if score.BundleVersion != run.BundleVersion {
		t.Errorf("Score used bundle %s, expected %s", score.BundleVersion, run.BundleVersion)
	}
	if score.ModelVersion != "itest-m1" {
		t.Errorf("Score used model %s, expected itest-m1", score.ModelVersion)
	}
	if score.Metadata.TraceID == "" {
		t.Error("Missing metadata.traceId")
	}
	t.Logf("✓ Scored cust-001: p=%.4f, score=%d", score.Probability, score.CreditScore)

	// The score event is retrievable afterwards
	var saved ScoreResult
	code = doRequest(t, config, http.MethodGet, "/scores/"+score.ID, nil, &saved)
	if code != http.StatusOK {
		t.Fatalf("Expected 200 fetching score event, got %d", code)
	}
	if saved.Probability != score.Probability {
		t.Errorf("Persisted probability %f differs from returned %f", saved.Probability, score.Probability)
	}
}

// ============================================================================
// SCENARIO 2: Reproducibility Across Runs
// ============================================================================

func TestPipelineRunsAreVersioned(t *testing.T) {
	config := getTestConfig()

	resp, err := http.Get(config.BaseURL + "/health")
	if err != nil {
		t.Skipf("Kestrel not reachable at %s: %v", config.BaseURL, err)
	}
	resp.Body.Close()

	seedLedger(t, config)

	var first RunResult
	if code := doRequest(t, config, http.MethodPost, "/pipeline/run", struct{}{}, &first); code != http.StatusOK {
		t.Fatalf("First run failed with %d", code)
	}

	// Bundle versions are second-resolution timestamps; space the runs out.
	time.Sleep(1100 * time.Millisecond)

	var second RunResult
	if code := doRequest(t, config, http.MethodPost, "/pipeline/run", struct{}{}, &second); code != http.StatusOK {
		t.Fatalf("Second run failed with %d", code)
	}

	if first.BundleVersion == second.BundleVersion {
		t.Errorf("Expected distinct bundle versions, both were %s", first.BundleVersion)
	}

	// Same ledger, same seed: the label split must be identical
	if first.HighRisk != second.HighRisk {
		t.Errorf("High-risk count changed between identical runs: %d vs %d",
			first.HighRisk, second.HighRisk)
	}

	t.Logf("✓ Two runs produced versions %s and %s with identical splits",
		first.BundleVersion, second.BundleVersion)
}

// ============================================================================
// SCENARIO 3: Input Validation
// ============================================================================

func TestValidationErrors(t *testing.T) {
	config := getTestConfig()

	resp, err := http.Get(config.BaseURL + "/health")
	if err != nil {
		t.Skipf("Kestrel not reachable at %s: %v", config.BaseURL, err)
	}
	resp.Body.Close()

	t.Run("PipelineRunOnEmptyLedger", func(t *testing.T) {
		// Fresh tenant, no ledger
		code := doRequest(t, config, http.MethodPost, "/pipeline/run", struct{}{}, nil)
		if code != http.StatusBadRequest {
			t.Errorf("Expected 400 for empty ledger, got %d", code)
		}
	})

	t.Run("IngestMissingCustomer", func(t *testing.T) {
		req := IngestRequest{Amount: Amount{Value: 100, Currency: "UGX"}}
		code := doRequest(t, config, http.MethodPost, "/transactions", req, nil)
		if code != http.StatusBadRequest {
			t.Errorf("Expected 400 for missing customerId, got %d", code)
		}
	})

	t.Run("ScoreBeforeAnyFit", func(t *testing.T) {
		scoreReq := map[string]any{
			"customerId": "cust-001",
			"attributes": map[string]any{"amount_sum": 100.0},
		}
		code := doRequest(t, config, http.MethodPost, "/score", scoreReq, nil)
		if code == http.StatusOK {
			t.Error("Expected score to fail before any artifact exists")
		}
	})

	t.Run("MissingTenantHeader", func(t *testing.T) {
		httpReq, _ := http.NewRequest(http.MethodPost, config.BaseURL+"/transactions", bytes.NewBufferString("{}"))
		httpReq.Header.Set("Content-Type", "application/json")
		// NO X-Tenant-ID header!

		client := &http.Client{Timeout: 10 * time.Second}
		resp, err := client.Do(httpReq)
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected 400 for missing tenant, got %d", resp.StatusCode)
		}
	})
}
