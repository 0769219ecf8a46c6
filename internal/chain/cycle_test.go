package chain

import (
	"context"
	"testing"

	"prizmagent/internal/domain"
)

// loopExec is a composite whose member list is set after construction, which
// is the only way a cycle can form.
type loopExec struct {
	name    string
	members []domain.Executable
}

func (l *loopExec) Name() string                 { return l.name }
func (l *loopExec) Description() string          { return l.name }
func (l *loopExec) Members() []domain.Executable { return l.members }
func (l *loopExec) Run(context.Context, string, *domain.InvocationContext) (domain.RunResult, error) {
	return domain.RunResult{}, nil
}

func TestCheckAcyclic_DirectCycle(t *testing.T) {
	self := &loopExec{name: "self"}
	self.members = []domain.Executable{self}

	err := checkAcyclic(self)
	if err == nil {
		t.Fatal("expected direct cycle to be rejected")
	}
	if !domain.IsKind(err, domain.CyclicChain) {
		t.Fatalf("expected CyclicChain, got %v", err)
	}
}

func TestCheckAcyclic_TransitiveCycle(t *testing.T) {
	a := &loopExec{name: "a"}
	b := &loopExec{name: "b"}
	a.members = []domain.Executable{b}
	b.members = []domain.Executable{a}

	if err := checkAcyclic(a); !domain.IsKind(err, domain.CyclicChain) {
		t.Fatalf("expected CyclicChain, got %v", err)
	}
}

func TestCheckAcyclic_DiamondIsFine(t *testing.T) {
	leaf := &loopExec{name: "leaf"}
	left := &loopExec{name: "left", members: []domain.Executable{leaf}}
	right := &loopExec{name: "right", members: []domain.Executable{leaf}}
	root := &loopExec{name: "root", members: []domain.Executable{left, right}}

	if err := checkAcyclic(root); err != nil {
		t.Fatalf("sharing a sub-chain is not a cycle: %v", err)
	}
}

func TestRegistry_RejectsCyclicChain(t *testing.T) {
	reg := NewRegistry(testLogger())
	self := &loopExec{name: "self"}
	self.members = []domain.Executable{self}

	if err := reg.Register(self); !domain.IsKind(err, domain.CyclicChain) {
		t.Fatalf("expected CyclicChain, got %v", err)
	}
	if reg.Has("self") {
		t.Fatal("rejected chain must not be registered")
	}
}
