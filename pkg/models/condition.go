package models

// Operator names a comparison performed by the condition evaluator.
type Operator string

const (
	OperatorEquals             Operator = "equals"
	OperatorNotEquals          Operator = "not_equals"
	OperatorGreaterThan        Operator = "greater_than"
	OperatorGreaterThanOrEqual Operator = "greater_than_or_equal"
	OperatorLessThan           Operator = "less_than"
	OperatorLessThanOrEqual    Operator = "less_than_or_equal"
	OperatorContains           Operator = "contains"
	OperatorNotContains        Operator = "not_contains"
	OperatorStartsWith         Operator = "starts_with"
	OperatorEndsWith           Operator = "ends_with"
	OperatorIn                 Operator = "in"
	OperatorExists             Operator = "exists"
)

// Condition compares the value found at a field path with an operand.
// Conditions are stored as a mapping of field path to Condition.
type Condition struct {
	Operator Operator `json:"operator" validate:"required"`
	Value    any      `json:"value,omitempty"`
}
