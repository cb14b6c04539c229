package quality

import (
	"math"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestEvaluateGates(t *testing.T) {
	engine := NewGateEngine()
	defer engine.Close()

	engine.LoadGates([]*domain.QualityGate{
		{
			ID:   "gate-strict",
			Name: "Strict training gate",
			Rules: []domain.GateRuleWeight{
				{RuleID: "missing-currency", Weight: 0.6},
				{RuleID: "huge-amount", Weight: 0.4},
			},
			BlockThreshold: 0.10,
			Enabled:        true,
		},
		{
			ID:   "gate-disabled",
			Rules: []domain.GateRuleWeight{
				{RuleID: "missing-currency", Weight: 1.0},
			},
			BlockThreshold: 0.01,
			Enabled:        false,
		},
	})

	if engine.GateCount() != 1 {
		t.Fatalf("expected 1 enabled gate, got %d", engine.GateCount())
	}

	t.Run("BelowThresholdPasses", func(t *testing.T) {
		// 5 of 100 rows missing currency: 0.05 * 0.6 = 0.03 < 0.10.
		results := engine.EvaluateGates(100, map[string]int{"missing-currency": 5})
		if len(results) != 1 {
			t.Fatalf("expected 1 gate result, got %d", len(results))
		}
		r := results[0]
		if r.Blocked {
			t.Errorf("gate blocked at score %v below threshold %v", r.Score, r.Threshold)
		}
		if math.Abs(r.Score-0.03) > 1e-12 {
			t.Errorf("score = %v, want 0.03", r.Score)
		}
		if AnyBlocked(results) {
			t.Error("AnyBlocked reported a block")
		}
	})

	t.Run("AboveThresholdBlocks", func(t *testing.T) {
		// 20% missing currency and 10% huge amounts:
		// 0.2*0.6 + 0.1*0.4 = 0.16 >= 0.10.
		results := engine.EvaluateGates(100, map[string]int{
			"missing-currency": 20,
			"huge-amount":      10,
		})
		r := results[0]
		if !r.Blocked {
			t.Errorf("gate passed at score %v above threshold %v", r.Score, r.Threshold)
		}
		if !AnyBlocked(results) {
			t.Error("AnyBlocked missed the block")
		}
	})

	t.Run("ContributionsBreakDownTheScore", func(t *testing.T) {
		results := engine.EvaluateGates(50, map[string]int{"missing-currency": 10})
		r := results[0]
		if len(r.Contributions) != 2 {
			t.Fatalf("expected 2 contributions, got %d", len(r.Contributions))
		}
		var sum float64
		for _, c := range r.Contributions {
			sum += c.Contribution
			if c.RuleID == "missing-currency" {
				if math.Abs(c.ViolationRate-0.2) > 1e-12 {
					t.Errorf("violation rate = %v, want 0.2", c.ViolationRate)
				}
			}
		}
		if math.Abs(sum-r.Score) > 1e-12 {
			t.Errorf("contributions sum to %v, score is %v", sum, r.Score)
		}
	})

	t.Run("EmptyBatch", func(t *testing.T) {
		if results := engine.EvaluateGates(0, nil); results != nil {
			t.Errorf("expected nil results for empty batch, got %v", results)
		}
	})

	t.Run("NoGates", func(t *testing.T) {
		empty := NewGateEngine()
		if results := empty.EvaluateGates(100, map[string]int{"x": 50}); results != nil {
			t.Errorf("expected nil results with no gates, got %v", results)
		}
	})
}

func TestReloadGates(t *testing.T) {
	engine := NewGateEngine()

	engine.LoadGates([]*domain.QualityGate{
		{ID: "gate-a", BlockThreshold: 0.5, Enabled: true},
	})
	engine.ReloadGates([]*domain.QualityGate{
		{ID: "gate-b", BlockThreshold: 0.2, Enabled: true},
		{ID: "gate-c", BlockThreshold: 0.3, Enabled: true},
	})

	loaded := engine.GetLoadedGates()
	if len(loaded) != 2 {
		t.Fatalf("expected 2 gates after reload, got %d", len(loaded))
	}
	for _, g := range loaded {
		if g.ID == "gate-a" {
			t.Error("reload kept a stale gate")
		}
	}
}
