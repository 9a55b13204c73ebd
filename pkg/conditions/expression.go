package conditions

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ExpressionEvaluator evaluates boolean expr-lang expressions against a scope.
// Compiled programs are cached and safe to share across runs.
type ExpressionEvaluator struct {
	logger *slog.Logger
	mu     sync.RWMutex
	cache  map[string]*vm.Program
}

func NewExpressionEvaluator(logger *slog.Logger) *ExpressionEvaluator {
	return &ExpressionEvaluator{
		logger: logger.With("module", "expression_evaluator"),
		cache:  make(map[string]*vm.Program),
	}
}

// Compile checks that expression parses and yields a boolean.
func (e *ExpressionEvaluator) Compile(expression string) error {
	_, err := e.program(expression)

	return err
}

// Evaluate runs expression against data. Compile errors are returned; runtime
// errors and non-boolean results evaluate to false.
func (e *ExpressionEvaluator) Evaluate(expression string, data map[string]any) (bool, error) {
	prg, err := e.program(expression)
	if err != nil {
		return false, err
	}

	if data == nil {
		data = map[string]any{}
	}

	out, err := vm.Run(prg, data)
	if err != nil {
		e.logger.Warn("Expression evaluation failed", "expression", expression, "error", err)

		return false, nil
	}

	result, ok := out.(bool)
	if !ok {
		e.logger.Warn("Expression did not return a boolean", "expression", expression, "result", out)

		return false, nil
	}

	return result, nil
}

func (e *ExpressionEvaluator) program(expression string) (*vm.Program, error) {
	e.mu.RLock()
	prg, ok := e.cache[expression]
	e.mu.RUnlock()

	if ok {
		return prg, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if prg, ok := e.cache[expression]; ok {
		return prg, nil
	}

	prg, err := expr.Compile(expression,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("compiling expression %q: %w", expression, err)
	}

	e.cache[expression] = prg

	return prg, nil
}
