package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"

	"prizmagent/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubTool transforms its input with fn.
type stubTool struct {
	name string
	fn   func(args map[string]any) (string, error)
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub: " + s.name }
func (s *stubTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
func (s *stubTool) Execute(_ context.Context, args map[string]any) (string, error) {
	return s.fn(args)
}

func wrapTool(name string) *stubTool {
	return &stubTool{name: name, fn: func(args map[string]any) (string, error) {
		s, _ := args["input"].(string)
		return name + "(" + s + ")", nil
	}}
}

func testIC() *domain.InvocationContext {
	return domain.NewInvocationContext("inv-1", "conv-1", "test")
}

func TestChain_SequentialComposition(t *testing.T) {
	c, err := New("pipeline", "",
		NewToolStep(wrapTool("a"), nil, ""),
		NewToolStep(wrapTool("b"), nil, ""),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	res, err := c.Run(context.Background(), "x", testIC())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	// Step order matters: b receives a's output.
	if res.Output != "b(a(x))" {
		t.Fatalf("expected b(a(x)), got %q", res.Output)
	}
	if res.Status != domain.RunOK {
		t.Fatalf("unexpected status %v", res.Status)
	}
}

func TestChain_StepFailureAbortsWithIndex(t *testing.T) {
	boom := &stubTool{name: "boom", fn: func(map[string]any) (string, error) {
		return "", errors.New("exploded")
	}}
	after := wrapTool("after")
	ran := false
	afterWrapped := &stubTool{name: "after", fn: func(args map[string]any) (string, error) {
		ran = true
		return after.fn(args)
	}}

	c, err := New("fragile", "",
		NewToolStep(wrapTool("first"), nil, ""),
		NewToolStep(boom, nil, ""),
		NewToolStep(afterWrapped, nil, ""),
	)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	_, err = c.Run(context.Background(), "x", testIC())
	if err == nil {
		t.Fatal("expected chain to fail")
	}
	var f *domain.Failure
	if !errors.As(err, &f) {
		t.Fatalf("expected Failure, got %T", err)
	}
	if f.Step != 1 {
		t.Fatalf("expected failing step 1, got %d", f.Step)
	}
	if ran {
		t.Fatal("steps after a failure must not run")
	}
}

func TestChain_NestedChains(t *testing.T) {
	inner, err := New("inner", "", NewToolStep(wrapTool("i"), nil, ""))
	if err != nil {
		t.Fatalf("inner: %v", err)
	}
	outer, err := New("outer", "",
		NewToolStep(wrapTool("pre"), nil, ""),
		inner,
		NewToolStep(wrapTool("post"), nil, ""),
	)
	if err != nil {
		t.Fatalf("outer: %v", err)
	}

	res, err := outer.Run(context.Background(), "x", testIC())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Output != "post(i(pre(x)))" {
		t.Fatalf("got %q", res.Output)
	}
}

func TestChain_ContextThreadedThroughSteps(t *testing.T) {
	setter := &contextTool{name: "setter", fn: func(ic *domain.InvocationContext, input string) string {
		ic.Set("seen", input)
		return input
	}}
	reader := &contextTool{name: "reader", fn: func(ic *domain.InvocationContext, _ string) string {
		return "seen=" + ic.GetString("seen")
	}}

	c, err := New("ctx", "", setter, reader)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	res, err := c.Run(context.Background(), "hello", testIC())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Output != "seen=hello" {
		t.Fatalf("context not threaded: %q", res.Output)
	}
}

// contextTool is an Executable that reads/writes the invocation context.
type contextTool struct {
	name string
	fn   func(ic *domain.InvocationContext, input string) string
}

func (c *contextTool) Name() string        { return c.name }
func (c *contextTool) Description() string { return c.name }
func (c *contextTool) Run(_ context.Context, input string, ic *domain.InvocationContext) (domain.RunResult, error) {
	return domain.RunResult{Output: c.fn(ic, input), Status: domain.RunOK}, nil
}

func TestToolStep_FixedArgsBeatInputBinding(t *testing.T) {
	echo := &stubTool{name: "echo", fn: func(args map[string]any) (string, error) {
		return fmt.Sprintf("%v|%v", args["input"], args["mode"]), nil
	}}
	step := NewToolStep(echo, map[string]any{"input": "fixed", "mode": "strict"}, "")

	res, err := step.Run(context.Background(), "runtime", testIC())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Output != "fixed|strict" {
		t.Fatalf("fixed args must not be overwritten, got %q", res.Output)
	}
}

func TestToolStep_CustomInputKey(t *testing.T) {
	echo := &stubTool{name: "echo", fn: func(args map[string]any) (string, error) {
		return fmt.Sprintf("%v", args["query"]), nil
	}}
	step := NewToolStep(echo, nil, "query")

	res, err := step.Run(context.Background(), "cats", testIC())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Output != "cats" {
		t.Fatalf("input must bind to the custom key, got %q", res.Output)
	}
}

func TestConditional_SkipsWhenPredicateFalse(t *testing.T) {
	ran := false
	spy := &stubTool{name: "spy", fn: func(map[string]any) (string, error) {
		ran = true
		return "ran", nil
	}}
	c, err := NewConditional("gated", "", func(input string, _ *domain.InvocationContext) bool {
		return strings.Contains(input, "go")
	}, NewToolStep(spy, nil, ""))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	res, err := c.Run(context.Background(), "nothing relevant", testIC())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != domain.RunSkipped {
		t.Fatalf("expected skipped, got %v", res.Status)
	}
	if ran {
		t.Fatal("skipped conditional must not execute its body")
	}

	res, err = c.Run(context.Background(), "go now", testIC())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != domain.RunOK || res.Output != "ran" {
		t.Fatalf("expected body to run, got %v %q", res.Status, res.Output)
	}
}

func TestChain_SkippedStepPassesInputThrough(t *testing.T) {
	skipper, err := NewConditional("skipper", "", func(string, *domain.InvocationContext) bool {
		return false
	}, NewToolStep(wrapTool("never"), nil, ""))
	if err != nil {
		t.Fatalf("conditional: %v", err)
	}
	c, err := New("seq", "", skipper, NewToolStep(wrapTool("b"), nil, ""))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	res, err := c.Run(context.Background(), "x", testIC())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Output != "b(x)" {
		t.Fatalf("skipped step must pass input through, got %q", res.Output)
	}
}

func TestBranching_FirstMatchWins(t *testing.T) {
	b, err := NewBranching("route", "", []Branch{
		{Name: "one", When: ContainsAny("alpha"), Exec: NewToolStep(wrapTool("one"), nil, "")},
		{Name: "two", When: ContainsAny("alpha", "beta"), Exec: NewToolStep(wrapTool("two"), nil, "")},
	}, "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	res, err := b.Run(context.Background(), "alpha beta", testIC())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Output != "one(alpha beta)" {
		t.Fatalf("first matching branch must win, got %q", res.Output)
	}
}

func TestBranching_DefaultBranch(t *testing.T) {
	b, err := NewBranching("route", "", []Branch{
		{Name: "url", When: ContainsAny("http"), Exec: NewToolStep(wrapTool("url"), nil, "")},
		{Name: "fallback", When: ContainsAny("never-matches-xyz"), Exec: NewToolStep(wrapTool("fb"), nil, "")},
	}, "fallback")
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	res, err := b.Run(context.Background(), "plain text", testIC())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Output != "fb(plain text)" {
		t.Fatalf("expected default branch, got %q", res.Output)
	}
}

func TestBranching_NoBranchMatched(t *testing.T) {
	b, err := NewBranching("route", "", []Branch{
		{Name: "only", When: ContainsAny("zzz"), Exec: NewToolStep(wrapTool("only"), nil, "")},
	}, "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	res, err := b.Run(context.Background(), "nothing", testIC())
	if err != nil {
		t.Fatalf("no match is not an error: %v", err)
	}
	if res.Status != domain.RunNoBranch {
		t.Fatalf("expected NoBranch, got %v", res.Status)
	}
}

func TestBranching_UnknownDefaultRejected(t *testing.T) {
	_, err := NewBranching("route", "", []Branch{
		{Name: "only", When: Always(), Exec: NewToolStep(wrapTool("only"), nil, "")},
	}, "ghost")
	if err == nil {
		t.Fatal("expected construction to fail")
	}
	if !domain.IsKind(err, domain.InvalidArguments) {
		t.Fatalf("expected InvalidArguments, got %v", err)
	}
}

func TestPredicates(t *testing.T) {
	ic := testIC()

	p := ContainsAny("Weather", "forecast")
	if !p("what's the WEATHER like", ic) {
		t.Fatal("ContainsAny must be case-insensitive")
	}
	if p("unrelated", ic) {
		t.Fatal("ContainsAny must not match unrelated input")
	}

	if !Always()("anything", ic) {
		t.Fatal("Always must match")
	}
}
