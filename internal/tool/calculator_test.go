package tool

import (
	"context"
	"testing"

	"prizmagent/internal/domain"
)

func TestCalculator_Operations(t *testing.T) {
	calc := NewCalculatorTool()

	cases := []struct {
		name string
		a, b float64
		op   string
		want string
	}{
		{"add", 2, 3, "+", "5"},
		{"subtract", 10, 4, "-", "6"},
		{"multiply", 2.5, 4, "*", "10"},
		{"divide", 9, 2, "/", "4.5"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := calc.Execute(context.Background(), map[string]any{
				"operand1": tc.a, "operator": tc.op, "operand2": tc.b,
			})
			if err != nil {
				t.Fatalf("execute: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestCalculator_DivisionByZero(t *testing.T) {
	calc := NewCalculatorTool()
	_, err := calc.Execute(context.Background(), map[string]any{
		"operand1": 1.0, "operator": "/", "operand2": 0.0,
	})
	if !domain.IsKind(err, domain.InvalidArguments) {
		t.Fatalf("expected InvalidArguments, got %v", err)
	}
}

func TestCalculator_MissingOperand(t *testing.T) {
	calc := NewCalculatorTool()
	_, err := calc.Execute(context.Background(), map[string]any{"operator": "+"})
	if !domain.IsKind(err, domain.InvalidArguments) {
		t.Fatalf("expected InvalidArguments, got %v", err)
	}
}

func TestCalculator_NumericStrings(t *testing.T) {
	// The call parser may deliver quoted numbers.
	calc := NewCalculatorTool()
	got, err := calc.Execute(context.Background(), map[string]any{
		"operand1": "6", "operator": "*", "operand2": "7",
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got != "42" {
		t.Fatalf("expected 42, got %q", got)
	}
}
