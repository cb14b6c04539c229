package quality

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(5)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	return engine
}

func testTx(id, customerID string, amount float64, currency string) *domain.Transaction {
	return &domain.Transaction{
		ID:         id,
		TenantID:   "tenant-001",
		CustomerID: customerID,
		Amount:     amount,
		Currency:   currency,
		Category:   "airtime",
		Channel:    "android",
		Timestamp:  time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC),
	}
}

func TestValidateRule(t *testing.T) {
	engine := newTestEngine(t)

	tests := []struct {
		name       string
		expression string
		wantErr    bool
	}{
		{"bool predicate", `amount > 1000000.0`, false},
		{"int score", `currency == "" ? 1 : 0`, false},
		{"double score", `amount < 0.0 ? 0.7 : 0.0`, false},
		{"tx map access", `tx.customer_id == ""`, false},
		{"calendar fields", `hour < 6 && day == 1`, false},
		{"syntax error", `amount >`, true},
		{"unknown variable", `no_such_field > 1`, true},
		{"string output", `currency`, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := engine.ValidateRule(&domain.QualityRule{
				ID:         "rule-1",
				Expression: tc.expression,
			})
			if tc.wantErr && err == nil {
				t.Errorf("expected error for %q", tc.expression)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error for %q: %v", tc.expression, err)
			}
		})
	}

	if err := engine.ValidateRule(nil); err == nil {
		t.Error("expected error for nil rule")
	}

	// Validation must not load anything.
	if engine.RulesCount() != 0 {
		t.Errorf("ValidateRule loaded a rule: count=%d", engine.RulesCount())
	}
}

func TestScreen(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	rules := []*domain.QualityRule{
		{
			ID:          "missing-currency",
			Name:        "Missing currency",
			Description: "currency code is required",
			Expression:  `currency == ""`,
			Severity:    domain.SeverityReject,
			Enabled:     true,
		},
		{
			ID:          "huge-amount",
			Name:        "Implausible amount",
			Description: "amount above plausibility ceiling",
			Expression:  `amount > 10000000.0`,
			Severity:    domain.SeverityWarn,
			Enabled:     true,
		},
		{
			ID:         "disabled-rule",
			Expression: `true`,
			Severity:   domain.SeverityReject,
			Enabled:    false,
		},
	}
	if err := engine.LoadRules(rules); err != nil {
		t.Fatalf("LoadRules failed: %v", err)
	}
	if engine.RulesCount() != 2 {
		t.Fatalf("expected 2 loaded rules (disabled skipped), got %d", engine.RulesCount())
	}

	t.Run("CleanRowPasses", func(t *testing.T) {
		results := engine.Screen(ctx, testTx("tx-1", "cust-001", 500, "UGX"))
		if len(results) != 2 {
			t.Fatalf("expected 2 results, got %d", len(results))
		}
		for _, res := range results {
			if !res.Passed {
				t.Errorf("rule %s failed a clean row: %s", res.RuleID, res.Reason)
			}
		}
	})

	t.Run("ViolationDetected", func(t *testing.T) {
		results := engine.Screen(ctx, testTx("tx-2", "cust-002", 500, ""))
		var violation *domain.QualityResult
		for i := range results {
			if results[i].RuleID == "missing-currency" {
				violation = &results[i]
			}
		}
		if violation == nil {
			t.Fatal("missing-currency rule produced no result")
		}
		if violation.Passed {
			t.Error("expected violation for empty currency")
		}
		if violation.Severity != domain.SeverityReject {
			t.Errorf("severity = %s, want reject", violation.Severity)
		}
		if violation.Reason != "currency code is required" {
			t.Errorf("reason = %q", violation.Reason)
		}
		if violation.TxID != "tx-2" || violation.CustomerID != "cust-002" {
			t.Errorf("violation not attributed to the row: %+v", violation)
		}
	})

	t.Run("NumericScoreAboveZeroFails", func(t *testing.T) {
		scored, err := NewEngine(2)
		if err != nil {
			t.Fatalf("failed to create engine: %v", err)
		}
		defer scored.Close()

		err = scored.LoadRule(&domain.QualityRule{
			ID:         "negative-amount",
			Expression: `amount < 0.0 ? 0.9 : 0.0`,
			Severity:   domain.SeverityWarn,
			Enabled:    true,
		})
		if err != nil {
			t.Fatalf("LoadRule failed: %v", err)
		}

		results := scored.Screen(ctx, testTx("tx-3", "cust-003", -50, "UGX"))
		if len(results) != 1 || results[0].Passed {
			t.Fatalf("expected scored violation, got %+v", results)
		}
		if results[0].Score != 0.9 {
			t.Errorf("score = %v, want 0.9", results[0].Score)
		}
	})

	t.Run("NoRulesNoResults", func(t *testing.T) {
		empty := newTestEngine(t)
		if results := empty.Screen(ctx, testTx("tx-4", "cust-004", 1, "UGX")); results != nil {
			t.Errorf("expected nil results with no rules, got %v", results)
		}
	})
}

func TestScreenBatch(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	err := engine.LoadRule(&domain.QualityRule{
		ID:         "missing-currency",
		Expression: `currency == ""`,
		Severity:   domain.SeverityWarn,
		Enabled:    true,
	})
	if err != nil {
		t.Fatalf("LoadRule failed: %v", err)
	}

	batch := []*domain.Transaction{
		testTx("tx-1", "cust-001", 100, "UGX"),
		testTx("tx-2", "cust-002", 200, ""),
		testTx("tx-3", "cust-003", 300, ""),
	}

	results, violations := engine.ScreenBatch(ctx, batch)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if violations["missing-currency"] != 2 {
		t.Errorf("violation count = %d, want 2", violations["missing-currency"])
	}
}

func TestReloadRules(t *testing.T) {
	engine := newTestEngine(t)

	err := engine.LoadRule(&domain.QualityRule{
		ID:         "old-rule",
		Expression: `true`,
		Enabled:    true,
	})
	if err != nil {
		t.Fatalf("LoadRule failed: %v", err)
	}

	err = engine.ReloadRules([]*domain.QualityRule{
		{ID: "new-rule", Expression: `amount > 100.0`, Enabled: true},
	})
	if err != nil {
		t.Fatalf("ReloadRules failed: %v", err)
	}

	loaded := engine.GetLoadedRules()
	if len(loaded) != 1 || loaded[0].ID != "new-rule" {
		t.Errorf("reload did not replace the rule set: %+v", loaded)
	}

	// A broken rule in the new set must fail the reload wholesale.
	err = engine.ReloadRules([]*domain.QualityRule{
		{ID: "broken", Expression: `amount >`, Enabled: true},
	})
	if err == nil {
		t.Error("expected reload to fail on a broken rule")
	}
}
