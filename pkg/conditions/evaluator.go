// Package conditions evaluates boolean gate expressions against business
// data. The evaluator never fails: any compile or runtime error, missing
// field, or non-boolean result is absorbed to false so that a bad expression
// degrades a gate to "closed" instead of crashing a conversation.
package conditions

import (
	"log/slog"
	"strings"

	"github.com/expr-lang/expr"
)

// Evaluator compiles and runs expr-lang expressions against a context map.
// Supported grammar: numeric/string comparisons, && and ||, dotted field
// access into the context, and simple arithmetic (cpl > targetCpl * 1.3).
type Evaluator struct {
	log *slog.Logger
}

// New returns an Evaluator. A nil logger falls back to slog.Default().
func New(log *slog.Logger) *Evaluator {
	if log == nil {
		log = slog.Default()
	}
	return &Evaluator{log: log}
}

// Evaluate runs expression against env and returns its boolean result.
// Empty expressions, parse errors, unknown identifiers, type mismatches and
// non-boolean results all evaluate to false.
func (e *Evaluator) Evaluate(expression string, env map[string]any) bool {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return false
	}
	if env == nil {
		env = map[string]any{}
	}

	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
	if err != nil {
		e.log.Debug("condition compile failed", "expression", expression, "error", err)
		return false
	}
	output, err := expr.Run(program, env)
	if err != nil {
		e.log.Debug("condition eval failed", "expression", expression, "error", err)
		return false
	}
	result, ok := output.(bool)
	if !ok {
		e.log.Debug("condition returned non-bool", "expression", expression, "value", output)
		return false
	}
	return result
}
