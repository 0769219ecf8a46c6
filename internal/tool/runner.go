package tool

import (
	"context"

	"prizmagent/internal/domain"
)

// SafeExecute runs a tool and converts an unexpected panic into an
// ExecutionFailure instead of letting it propagate. Tools are black boxes to
// the engine; a faulty one must never crash an invocation.
func SafeExecute(ctx context.Context, t domain.Tool, args map[string]any) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = ""
			err = domain.Failf(domain.ExecutionFailure, "tool %s panicked: %v", t.Name(), r)
		}
	}()

	result, err = t.Execute(ctx, args)
	if err != nil {
		if _, ok := err.(*domain.Failure); !ok {
			err = domain.WrapFailure(domain.ExecutionFailure, err)
		}
	}
	return result, err
}
