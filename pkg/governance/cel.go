package governance

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/openintent-ai/openintent/pkg/model"
)

// CustomRuleEvaluator compiles and caches governance_policy.custom_rule
// CEL expressions (SPEC_FULL §11). Expressions see the intent's state,
// constraints and status as `intent` and must evaluate to bool: true
// means the custom rule is satisfied.
type CustomRuleEvaluator struct {
	env      *cel.Env
	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewCustomRuleEvaluator builds an evaluator with a fixed `intent`
// variable of dynamic type, matching the shape of model.Intent's
// JSON-visible fields.
func NewCustomRuleEvaluator() (*CustomRuleEvaluator, error) {
	env, err := cel.NewEnv(cel.Variable("intent", cel.DynType))
	if err != nil {
		return nil, fmt.Errorf("governance: create cel env: %w", err)
	}
	return &CustomRuleEvaluator{env: env, programs: make(map[string]cel.Program)}, nil
}

// Evaluate compiles (or reuses a cached compile of) expr and runs it
// against intent, returning the boolean result.
func (e *CustomRuleEvaluator) Evaluate(expr string, intent *model.Intent) (bool, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}
	input := map[string]any{
		"intent": map[string]any{
			"id":          intent.ID,
			"status":      string(intent.Status),
			"confidence":  intent.Confidence,
			"version":     intent.Version,
			"state":       intent.State,
			"constraints": intent.Constraints,
		},
	}
	out, _, err := prg.Eval(input)
	if err != nil {
		return false, fmt.Errorf("governance: eval custom rule: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("governance: custom rule %q did not evaluate to bool", expr)
	}
	return result, nil
}

func (e *CustomRuleEvaluator) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.programs[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if prg, ok = e.programs[expr]; ok {
		return prg, nil
	}
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("governance: compile custom rule: %w", issues.Err())
	}
	prg, err := e.env.Program(ast, cel.InterruptCheckFrequency(100), cel.CostLimit(10000))
	if err != nil {
		return nil, fmt.Errorf("governance: build cel program: %w", err)
	}
	e.programs[expr] = prg
	return prg, nil
}
