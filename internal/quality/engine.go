// Package quality provides the CEL-Go based data-quality rule engine.
// Rules are violation predicates evaluated against each ledger row before it
// can enter a training run.
package quality

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Engine is the CEL-based quality rule engine.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.QualityRule
	Program cel.Program
}

// NewEngine creates a new quality rule engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// Create CEL environment with ledger row variables
	env, err := cel.NewEnv(
		cel.Variable("tx", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("currency", cel.StringType),
		cel.Variable("customer_id", cel.StringType),
		cel.Variable("category", cel.StringType),
		cel.Variable("channel", cel.StringType),
		// Calendar fields of the transaction timestamp
		cel.Variable("hour", cel.IntType),
		cel.Variable("day", cel.IntType),
		cel.Variable("month", cel.IntType),
		cel.Variable("year", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded engine rules.
func (e *Engine) ValidateRule(cfg *domain.QualityRule) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.QualityRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled

	return nil
}

// LoadRules compiles and loads multiple rules.
func (e *Engine) LoadRules(configs []*domain.QualityRule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// Screen evaluates all loaded rules against one transaction in parallel.
// A rule whose violation predicate evaluates true (or to a positive score)
// fails the row.
func (e *Engine) Screen(ctx context.Context, tx *domain.Transaction) []domain.QualityResult {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil
	}

	activation := map[string]any{
		"tx": map[string]any{
			"id":          tx.ID,
			"customer_id": tx.CustomerID,
			"amount":      tx.Amount,
			"currency":    tx.Currency,
			"category":    tx.Category,
			"channel":     tx.Channel,
		},
		"amount":      tx.Amount,
		"currency":    tx.Currency,
		"customer_id": tx.CustomerID,
		"category":    tx.Category,
		"channel":     tx.Channel,
		"hour":        int64(tx.Timestamp.UTC().Hour()),
		"day":         int64(tx.Timestamp.UTC().Day()),
		"month":       int64(tx.Timestamp.UTC().Month()),
		"year":        int64(tx.Timestamp.UTC().Year()),
	}

	// Parallel evaluation using worker pool pattern
	results := make([]domain.QualityResult, len(rules))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx] = e.screenRule(r, activation, tx)
		}(i, rule)
	}

	wg.Wait()

	return results
}

// ScreenBatch screens a ledger batch and returns all results plus the
// violation count per rule, the input to gate evaluation.
func (e *Engine) ScreenBatch(ctx context.Context, txs []*domain.Transaction) ([]domain.QualityResult, map[string]int) {
	var all []domain.QualityResult
	violations := make(map[string]int)

	for _, tx := range txs {
		for _, res := range e.Screen(ctx, tx) {
			if !res.Passed {
				violations[res.RuleID]++
			}
			all = append(all, res)
		}
	}
	return all, violations
}

// screenRule evaluates a single rule against one row.
func (e *Engine) screenRule(rule *CompiledRule, activation map[string]any, tx *domain.Transaction) domain.QualityResult {
	start := time.Now()

	result := domain.QualityResult{
		RuleID:     rule.Config.ID,
		TenantID:   tx.TenantID,
		TxID:       tx.ID,
		CustomerID: tx.CustomerID,
		Severity:   rule.Config.Severity,
	}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		result.Passed = false
		result.Reason = fmt.Sprintf("evaluation error: %v", err)
		result.ProcessMs = time.Since(start).Milliseconds()
		return result
	}

	score := toScore(out)
	result.Score = score
	result.Passed = score == 0
	if !result.Passed {
		result.Reason = rule.Config.Description
	}
	result.ProcessMs = time.Since(start).Milliseconds()

	return result
}

// toScore converts a CEL value to a numeric violation score.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// ReloadRules clears all existing rules and loads new ones.
// This enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(configs []*domain.QualityRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules

	return nil
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []*domain.QualityRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.QualityRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.QualityRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
