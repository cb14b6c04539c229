package quality

import (
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// GateEngine evaluates quality gates over batch screening results.
// A gate aggregates weighted per-rule violation rates; a blocked gate stops
// the pipeline run before a corrupted label set can be fit.
type GateEngine struct {
	mu    sync.RWMutex
	gates map[string]*domain.QualityGate // key: gateID
}

// NewGateEngine creates a new gate evaluation engine.
func NewGateEngine() *GateEngine {
	return &GateEngine{
		gates: make(map[string]*domain.QualityGate),
	}
}

// LoadGates loads gate configurations into the engine.
func (e *GateEngine) LoadGates(gates []*domain.QualityGate) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.gates = make(map[string]*domain.QualityGate)
	for _, g := range gates {
		if g.Enabled {
			e.gates[g.ID] = g
		}
	}
}

// ReloadGates clears and reloads gates (hot reload).
func (e *GateEngine) ReloadGates(gates []*domain.QualityGate) {
	e.LoadGates(gates)
}

// GetLoadedGates returns currently loaded gates.
func (e *GateEngine) GetLoadedGates() []*domain.QualityGate {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := make([]*domain.QualityGate, 0, len(e.gates))
	for _, g := range e.gates {
		result = append(result, g)
	}
	return result
}

// GateCount returns the number of loaded gates.
func (e *GateEngine) GateCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.gates)
}

// EvaluateGates computes each gate's weighted violation score for a batch.
//
// Algorithm:
// 1. Convert per-rule violation counts into rates over the batch size
// 2. For each gate, sum (violation_rate * weight) for its member rules
// 3. Compare against the block threshold
func (e *GateEngine) EvaluateGates(batchSize int, violationsByRule map[string]int) []domain.GateResult {
	start := time.Now()

	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.gates) == 0 || batchSize == 0 {
		return nil
	}

	results := make([]domain.GateResult, 0, len(e.gates))

	for _, gate := range e.gates {
		result := e.evaluateGate(gate, batchSize, violationsByRule)
		result.ProcessMs = time.Since(start).Milliseconds()
		results = append(results, result)
	}

	return results
}

// evaluateGate calculates the score for a single gate.
func (e *GateEngine) evaluateGate(gate *domain.QualityGate, batchSize int, violationsByRule map[string]int) domain.GateResult {
	result := domain.GateResult{
		GateID:        gate.ID,
		GateName:      gate.Name,
		Threshold:     gate.BlockThreshold,
		Contributions: make([]domain.RuleContribution, 0, len(gate.Rules)),
	}

	var totalScore float64

	for _, ruleWeight := range gate.Rules {
		rate := float64(violationsByRule[ruleWeight.RuleID]) / float64(batchSize)
		contribution := rate * ruleWeight.Weight
		totalScore += contribution

		result.Contributions = append(result.Contributions, domain.RuleContribution{
			RuleID:        ruleWeight.RuleID,
			ViolationRate: rate,
			Weight:        ruleWeight.Weight,
			Contribution:  contribution,
		})
	}

	result.Score = totalScore
	result.Blocked = totalScore >= gate.BlockThreshold

	return result
}

// AnyBlocked reports whether any gate in the results blocked the batch.
func AnyBlocked(results []domain.GateResult) bool {
	for _, r := range results {
		if r.Blocked {
			return true
		}
	}
	return false
}

// Close cleans up the engine.
func (e *GateEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gates = make(map[string]*domain.QualityGate)
	return nil
}
