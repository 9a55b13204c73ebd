// Package conditions evaluates structured field conditions and boolean expressions
// against runtime data.
package conditions

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/dukex/bizflow/pkg/models"
	"github.com/dukex/bizflow/pkg/template"
)

// OperatorFunc compares the value found at a field path with the condition operand.
// present is false when the path did not resolve.
type OperatorFunc func(actual any, present bool, expected any) bool

// Evaluator holds the operator table. The zero value is not usable; use New.
type Evaluator struct {
	mu        sync.RWMutex
	operators map[models.Operator]OperatorFunc
}

// New returns an evaluator with the built-in operators registered.
func New() *Evaluator {
	e := &Evaluator{operators: make(map[models.Operator]OperatorFunc)}

	e.Register(models.OperatorEquals, present(looseEqual))
	e.Register(models.OperatorNotEquals, present(func(a, b any) bool { return !looseEqual(a, b) }))
	e.Register(models.OperatorGreaterThan, present(ordered(func(c int) bool { return c > 0 })))
	e.Register(models.OperatorGreaterThanOrEqual, present(ordered(func(c int) bool { return c >= 0 })))
	e.Register(models.OperatorLessThan, present(ordered(func(c int) bool { return c < 0 })))
	e.Register(models.OperatorLessThanOrEqual, present(ordered(func(c int) bool { return c <= 0 })))
	e.Register(models.OperatorContains, present(contains))
	e.Register(models.OperatorNotContains, present(func(a, b any) bool { return !contains(a, b) }))
	e.Register(models.OperatorStartsWith, present(func(a, b any) bool {
		return strings.HasPrefix(template.Stringify(a), template.Stringify(b))
	}))
	e.Register(models.OperatorEndsWith, present(func(a, b any) bool {
		return strings.HasSuffix(template.Stringify(a), template.Stringify(b))
	}))
	e.Register(models.OperatorIn, present(func(a, b any) bool { return contains(b, a) }))
	e.Register(models.OperatorExists, func(actual any, isPresent bool, expected any) bool {
		want := true
		if b, ok := expected.(bool); ok {
			want = b
		}

		return isPresent == want
	})

	return e
}

// Register adds or replaces an operator.
func (e *Evaluator) Register(op models.Operator, fn OperatorFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.operators[op] = fn
}

// Supports reports whether op is registered.
func (e *Evaluator) Supports(op models.Operator) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	_, ok := e.operators[op]

	return ok
}

// Evaluate ANDs every condition against data and stops at the first failing entry.
// An empty mapping is true. Unknown operators fail.
func (e *Evaluator) Evaluate(conditions map[string]models.Condition, data map[string]any) bool {
	for path, condition := range conditions {
		if !e.EvaluateOne(path, condition, data) {
			return false
		}
	}

	return true
}

// EvaluateOne checks a single field condition.
func (e *Evaluator) EvaluateOne(path string, condition models.Condition, data map[string]any) bool {
	e.mu.RLock()
	fn, ok := e.operators[condition.Operator]
	e.mu.RUnlock()

	if !ok {
		return false
	}

	actual, isPresent := template.Lookup(data, path)

	return fn(actual, isPresent, condition.Value)
}

var defaultEvaluator = New()

// Evaluate uses the package-level evaluator with the built-in operators.
func Evaluate(conditions map[string]models.Condition, data map[string]any) bool {
	return defaultEvaluator.Evaluate(conditions, data)
}

// Supports reports whether the built-in evaluator knows op.
func Supports(op models.Operator) bool {
	return defaultEvaluator.Supports(op)
}

// ValidateConditions rejects conditions using operators the built-in evaluator does
// not know.
func ValidateConditions(conditions map[string]models.Condition) error {
	for path, condition := range conditions {
		if !Supports(condition.Operator) {
			return fmt.Errorf("unsupported operator %q for field %q", condition.Operator, path)
		}
	}

	return nil
}

func present(fn func(actual, expected any) bool) OperatorFunc {
	return func(actual any, isPresent bool, expected any) bool {
		if !isPresent {
			return false
		}

		return fn(actual, expected)
	}
}

func ordered(accept func(int) bool) func(a, b any) bool {
	return func(a, b any) bool {
		cmp, ok := compare(a, b)

		return ok && accept(cmp)
	}
}

// toFloat converts numbers and numeric strings.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)

		return f, err == nil
	default:
		return 0, false
	}
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}

// compare orders a and b numerically when both are numeric, otherwise as strings.
func compare(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}

	if fa, okA := toFloat(a); okA {
		if fb, okB := toFloat(b); okB {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			default:
				return 0, true
			}
		}
	}

	return strings.Compare(template.Stringify(a), template.Stringify(b)), true
}

func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if isNumber(a) || isNumber(b) {
		fa, okA := toFloat(a)
		fb, okB := toFloat(b)

		if okA && okB {
			return fa == fb
		}
	}

	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			return ba == bb
		}

		if s, ok := b.(string); ok {
			parsed, err := strconv.ParseBool(s)

			return err == nil && parsed == ba
		}
	}

	if reflect.TypeOf(a) == reflect.TypeOf(b) && reflect.TypeOf(a).Comparable() {
		return a == b
	}

	if isScalar(a) && isScalar(b) {
		return template.Stringify(a) == template.Stringify(b)
	}

	return reflect.DeepEqual(a, b)
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool:
		return true
	default:
		return isNumber(v)
	}
}

// contains checks substring, slice membership or map key presence.
func contains(container, item any) bool {
	switch c := container.(type) {
	case string:
		return strings.Contains(c, template.Stringify(item))
	case []any:
		for _, element := range c {
			if looseEqual(element, item) {
				return true
			}
		}

		return false
	case []string:
		needle := template.Stringify(item)
		for _, element := range c {
			if element == needle {
				return true
			}
		}

		return false
	case map[string]any:
		_, ok := c[template.Stringify(item)]

		return ok
	default:
		return false
	}
}
