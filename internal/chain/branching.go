package chain

import (
	"context"

	"prizmagent/internal/domain"
)

// Branch is one (name, predicate, executable) triple of a branching chain.
type Branch struct {
	Name string
	When Predicate
	Exec domain.Executable
}

// Branching selects at most one branch per invocation: predicates are
// evaluated in registration order and the first match wins. When none
// matches, the default branch (if set) executes; otherwise the chain reports
// NoBranchMatched, a legitimate terminal outcome rather than an error.
type Branching struct {
	name        string
	desc        string
	branches    []Branch
	defaultName string
}

var _ domain.Executable = (*Branching)(nil)

func NewBranching(name, desc string, branches []Branch, defaultName string) (*Branching, error) {
	if defaultName != "" && findBranch(branches, defaultName) == nil {
		return nil, domain.Failf(domain.InvalidArguments,
			"branching chain %s: default branch %q is not a registered branch", name, defaultName)
	}
	b := &Branching{name: name, desc: desc, branches: branches, defaultName: defaultName}
	if err := checkAcyclic(b); err != nil {
		return nil, err
	}
	return b, nil
}

func findBranch(branches []Branch, name string) *Branch {
	for i := range branches {
		if branches[i].Name == name {
			return &branches[i]
		}
	}
	return nil
}

func (b *Branching) Name() string        { return b.name }
func (b *Branching) Description() string { return b.desc }

func (b *Branching) Members() []domain.Executable {
	members := make([]domain.Executable, 0, len(b.branches))
	for _, br := range b.branches {
		members = append(members, br.Exec)
	}
	return members
}

func (b *Branching) Run(ctx context.Context, input string, ic *domain.InvocationContext) (domain.RunResult, error) {
	for _, br := range b.branches {
		if br.When(input, ic) {
			return br.Exec.Run(ctx, input, ic)
		}
	}
	if b.defaultName != "" {
		return findBranch(b.branches, b.defaultName).Exec.Run(ctx, input, ic)
	}
	return domain.RunResult{Status: domain.RunNoBranch}, nil
}
