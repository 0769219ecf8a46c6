package chain

import (
	"context"
	"regexp"
	"strings"

	"prizmagent/internal/domain"
)

// Predicate gates conditional execution and branch selection. It is evaluated
// once per invocation against the step input and the shared context.
type Predicate func(input string, ic *domain.InvocationContext) bool

// ContainsAny matches when the input contains any of the keywords,
// case-insensitively. Keywords are lowered once at construction.
func ContainsAny(keywords ...string) Predicate {
	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}
	return func(input string, _ *domain.InvocationContext) bool {
		lower := strings.ToLower(input)
		for _, kw := range lowered {
			if kw != "" && strings.Contains(lower, kw) {
				return true
			}
		}
		return false
	}
}

// MatchesPattern matches the input against a pre-compiled regular expression.
func MatchesPattern(re *regexp.Regexp) Predicate {
	return func(input string, _ *domain.InvocationContext) bool {
		return re.MatchString(input)
	}
}

// Always matches everything; useful as a default branch predicate.
func Always() Predicate {
	return func(string, *domain.InvocationContext) bool { return true }
}

// Conditional wraps a sequence that executes only when its predicate holds at
// invocation time. A false predicate yields a Skipped result, distinct from
// both success and failure, with no step executed. The predicate is checked
// once, never re-checked mid-chain.
type Conditional struct {
	name  string
	desc  string
	cond  Predicate
	inner *Chain
}

var _ domain.Executable = (*Conditional)(nil)

func NewConditional(name, desc string, cond Predicate, steps ...domain.Executable) (*Conditional, error) {
	inner := &Chain{name: name + ".body", steps: steps}
	c := &Conditional{name: name, desc: desc, cond: cond, inner: inner}
	if err := checkAcyclic(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Conditional) Name() string        { return c.name }
func (c *Conditional) Description() string { return c.desc }

func (c *Conditional) Members() []domain.Executable { return c.inner.steps }

func (c *Conditional) Run(ctx context.Context, input string, ic *domain.InvocationContext) (domain.RunResult, error) {
	if !c.cond(input, ic) {
		return domain.RunResult{Status: domain.RunSkipped}, nil
	}
	return c.inner.Run(ctx, input, ic)
}
