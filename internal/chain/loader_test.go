package chain

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"prizmagent/internal/domain"
	"prizmagent/internal/tool"
)

func writeChainFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func loaderRegistries(t *testing.T) (*tool.Registry, *Registry) {
	t.Helper()
	logger := testLogger()
	tools := tool.NewRegistry(logger)
	tools.MustRegister(&stubTool{name: "shout", fn: func(args map[string]any) (string, error) {
		s, _ := args["input"].(string)
		return s + "!", nil
	}})
	return tools, NewRegistry(logger)
}

func TestLoadDirectory_Sequential(t *testing.T) {
	dir := t.TempDir()
	writeChainFile(t, dir, "greet.yaml", `
name: greet
description: shouts twice
steps:
  - tool: shout
  - tool: shout
`)
	tools, chains := loaderRegistries(t)
	if err := LoadDirectory(dir, tools, chains, testLogger()); err != nil {
		t.Fatalf("load: %v", err)
	}

	c, err := chains.Get("greet")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	res, err := c.Run(context.Background(), "hey", testIC())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Output != "hey!!" {
		t.Fatalf("got %q", res.Output)
	}
}

func TestLoadDirectory_NameDefaultsToFilename(t *testing.T) {
	dir := t.TempDir()
	writeChainFile(t, dir, "unnamed.yml", `
steps:
  - tool: shout
`)
	tools, chains := loaderRegistries(t)
	if err := LoadDirectory(dir, tools, chains, testLogger()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if !chains.Has("unnamed") {
		t.Fatal("chain name should default to the file name")
	}
}

func TestLoadDirectory_SkipsBadDefinitions(t *testing.T) {
	dir := t.TempDir()
	writeChainFile(t, dir, "broken.yaml", "steps: [not a step")
	writeChainFile(t, dir, "unknown.yaml", `
name: unknown
steps:
  - tool: no_such_tool
`)
	writeChainFile(t, dir, "good.yaml", `
name: good
steps:
  - tool: shout
`)
	tools, chains := loaderRegistries(t)
	if err := LoadDirectory(dir, tools, chains, testLogger()); err != nil {
		t.Fatalf("bad files must be skipped, not fatal: %v", err)
	}
	if chains.Has("broken") || chains.Has("unknown") {
		t.Fatal("bad definitions must not be registered")
	}
	if !chains.Has("good") {
		t.Fatal("good definition must still load")
	}
}

func TestLoadDirectory_MissingDirIsFine(t *testing.T) {
	tools, chains := loaderRegistries(t)
	if err := LoadDirectory(filepath.Join(t.TempDir(), "nope"), tools, chains, testLogger()); err != nil {
		t.Fatalf("missing directory is not an error: %v", err)
	}
}

func TestBuild_Conditional(t *testing.T) {
	tools, chains := loaderRegistries(t)
	c, err := Build(Definition{
		Name: "maybe",
		Kind: "conditional",
		Condition: &TriggerDef{
			Contains: []string{"loud"},
		},
		Steps: []StepDef{{Tool: "shout"}},
	}, tools, chains)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	res, err := c.Run(context.Background(), "quiet please", testIC())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Status != domain.RunSkipped {
		t.Fatalf("expected skipped, got %v", res.Status)
	}
	res, _ = c.Run(context.Background(), "be loud", testIC())
	if res.Output != "be loud!" {
		t.Fatalf("got %q", res.Output)
	}
}

func TestBuild_Branching(t *testing.T) {
	tools, chains := loaderRegistries(t)
	c, err := Build(Definition{
		Name: "route",
		Kind: "branching",
		Branches: []BranchDef{
			{Name: "url", When: TriggerDef{Pattern: `^https?://`}, Steps: []StepDef{{Tool: "shout"}}},
			{Name: "other", When: TriggerDef{Contains: []string{"please"}}, Steps: []StepDef{{Tool: "shout"}}},
		},
		Default: "other",
	}, tools, chains)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	res, err := c.Run(context.Background(), "https://example.com", testIC())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Output != "https://example.com!" {
		t.Fatalf("got %q", res.Output)
	}
}

func TestBuild_UnknownKind(t *testing.T) {
	tools, chains := loaderRegistries(t)
	if _, err := Build(Definition{Name: "x", Kind: "parallel"}, tools, chains); err == nil {
		t.Fatal("unknown kind must be rejected")
	}
}

func TestRegisterBuiltins(t *testing.T) {
	logger := testLogger()
	tools := tool.NewRegistry(logger)
	tools.MustRegister(&stubTool{name: "web_search", fn: func(args map[string]any) (string, error) {
		q, _ := args["query"].(string)
		return "results for " + q, nil
	}})
	tools.MustRegister(&stubTool{name: "web_fetch", fn: func(args map[string]any) (string, error) {
		u, _ := args["url"].(string)
		return "page at " + u, nil
	}})
	chains := NewRegistry(logger)

	RegisterBuiltins(tools, chains, logger)

	if !chains.Has("research") || !chains.Has("lookup") {
		t.Fatal("expected research and lookup builtins")
	}
	if chains.Has("current_time") {
		t.Fatal("current_time needs the datetime tool, which is absent")
	}

	lookup, _ := chains.Get("lookup")
	res, err := lookup.Run(context.Background(), "https://example.com/a", testIC())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Output != "page at https://example.com/a" {
		t.Fatalf("URL input must route to web_fetch, got %q", res.Output)
	}
	res, _ = lookup.Run(context.Background(), "golang generics", testIC())
	if res.Output != "results for golang generics" {
		t.Fatalf("plain input must route to web_search, got %q", res.Output)
	}
}
