package tool

import (
	"context"
	"fmt"
	"strconv"

	"prizmagent/internal/domain"
)

// CalculatorTool performs basic arithmetic on two operands. Structured
// operands avoid fragile expression-string parsing.
type CalculatorTool struct{}

var _ domain.Tool = (*CalculatorTool)(nil)

func NewCalculatorTool() *CalculatorTool { return &CalculatorTool{} }

func (t *CalculatorTool) Name() string { return "calculate" }
func (t *CalculatorTool) Description() string {
	return "Perform a basic arithmetic calculation (add, subtract, multiply, divide) on two numbers."
}
func (t *CalculatorTool) Parameters() map[string]any {
	return ToolParameters(
		map[string]Param{
			"operand1": {Type: "number", Description: "The first number"},
			"operator": {Type: "string", Description: "One of '+', '-', '*', '/'"},
			"operand2": {Type: "number", Description: "The second number"},
		},
		[]string{"operand1", "operator", "operand2"},
	)
}

func (t *CalculatorTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	a, ok := numArg(args, "operand1")
	if !ok {
		return "", domain.Failf(domain.InvalidArguments, "calculate: missing or non-numeric operand1")
	}
	b, ok := numArg(args, "operand2")
	if !ok {
		return "", domain.Failf(domain.InvalidArguments, "calculate: missing or non-numeric operand2")
	}
	op := ArgsString(args, "operator")

	var result float64
	switch op {
	case "+":
		result = a + b
	case "-":
		result = a - b
	case "*":
		result = a * b
	case "/":
		if b == 0 {
			return "", domain.Failf(domain.InvalidArguments, "calculate: division by zero")
		}
		result = a / b
	default:
		return "", domain.Failf(domain.InvalidArguments, "calculate: unsupported operator %q", op)
	}

	return fmt.Sprintf("%g", result), nil
}

// numArg accepts float64/int64 values as well as numeric strings, since the
// call parser may deliver quoted numbers.
func numArg(args map[string]any, key string) (float64, bool) {
	if f, ok := ArgsFloat(args, key); ok {
		return f, true
	}
	if s := ArgsString(args, key); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
