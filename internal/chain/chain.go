// Package chain provides composite executables: ordered sequences of tools
// and nested chains, with conditional and branching variants.
package chain

import (
	"context"

	"prizmagent/internal/domain"
	"prizmagent/internal/tool"
)

// Chain is a sequential composite: step i's output becomes step i+1's input,
// the invocation context is threaded by reference through every step, and
// execution stops at the first step failure. The step sequence is immutable
// after construction.
type Chain struct {
	name  string
	desc  string
	steps []domain.Executable
}

var _ domain.Executable = (*Chain)(nil)

// New builds a sequential chain. Construction fails with CyclicChain if the
// steps directly or transitively contain the chain being built or any other
// cycle.
func New(name, desc string, steps ...domain.Executable) (*Chain, error) {
	c := &Chain{name: name, desc: desc, steps: steps}
	if err := checkAcyclic(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Chain) Name() string        { return c.name }
func (c *Chain) Description() string { return c.desc }

// Members exposes the step sequence for cycle detection.
func (c *Chain) Members() []domain.Executable { return c.steps }

func (c *Chain) Run(ctx context.Context, input string, ic *domain.InvocationContext) (domain.RunResult, error) {
	current := input
	for i, step := range c.steps {
		res, err := step.Run(ctx, current, ic)
		if err != nil {
			return domain.RunResult{}, domain.WrapFailure(domain.ExecutionFailure, err).AtStep(i)
		}
		// A skipped or no-branch step passes its input through unchanged.
		if res.Status == domain.RunOK {
			current = res.Output
		}
	}
	return domain.RunResult{Output: current, Status: domain.RunOK}, nil
}

// ToolStep adapts a Tool into an Executable so tools and chains compose
// uniformly. Fixed args are merged with the step input, which is bound to
// inputKey (default "input") unless the fixed args already set that key.
type ToolStep struct {
	tool     domain.Tool
	args     map[string]any
	inputKey string
}

var _ domain.Executable = (*ToolStep)(nil)

func NewToolStep(t domain.Tool, args map[string]any, inputKey string) *ToolStep {
	if inputKey == "" {
		inputKey = "input"
	}
	return &ToolStep{tool: t, args: args, inputKey: inputKey}
}

func (s *ToolStep) Name() string        { return s.tool.Name() }
func (s *ToolStep) Description() string { return s.tool.Description() }

func (s *ToolStep) Run(ctx context.Context, input string, ic *domain.InvocationContext) (domain.RunResult, error) {
	merged := make(map[string]any, len(s.args)+1)
	for k, v := range s.args {
		merged[k] = v
	}
	if input != "" {
		if _, fixed := merged[s.inputKey]; !fixed {
			merged[s.inputKey] = input
		}
	}
	out, err := tool.SafeExecute(ctx, s.tool, merged)
	if err != nil {
		return domain.RunResult{}, err
	}
	return domain.RunResult{Output: out, Status: domain.RunOK}, nil
}
