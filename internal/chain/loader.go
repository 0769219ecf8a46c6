package chain

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"prizmagent/internal/domain"
	"prizmagent/internal/tool"
)

// Definition is the YAML schema for a user-defined chain.
type Definition struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Kind        string       `yaml:"kind"` // sequential (default) | conditional | branching
	Condition   *TriggerDef  `yaml:"condition,omitempty"`
	Steps       []StepDef    `yaml:"steps,omitempty"`
	Branches    []BranchDef  `yaml:"branches,omitempty"`
	Default     string       `yaml:"default,omitempty"`
}

// StepDef references a tool or an already-registered chain.
type StepDef struct {
	Tool     string         `yaml:"tool,omitempty"`
	Chain    string         `yaml:"chain,omitempty"`
	InputKey string         `yaml:"input_key,omitempty"`
	Args     map[string]any `yaml:"args,omitempty"`
}

// TriggerDef builds a predicate from keywords and/or a regex pattern.
type TriggerDef struct {
	Contains []string `yaml:"contains,omitempty"`
	Pattern  string   `yaml:"pattern,omitempty"`
}

type BranchDef struct {
	Name  string     `yaml:"name"`
	When  TriggerDef `yaml:"when"`
	Steps []StepDef  `yaml:"steps"`
}

// LoadDirectory loads chain definitions from .yaml/.yml files in dir and
// registers them. Files that fail to parse or reference unknown tools are
// skipped with a warning so one bad definition does not block startup.
func LoadDirectory(dir string, tools *tool.Registry, chains *Registry, logger *slog.Logger) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.Debug("chains directory does not exist, skipping", "dir", dir)
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read chains dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("cannot read chain file", "path", path, "err", err)
			continue
		}

		var def Definition
		if err := yaml.Unmarshal(data, &def); err != nil {
			logger.Warn("cannot parse chain file", "path", path, "err", err)
			continue
		}
		if def.Name == "" {
			def.Name = strings.TrimSuffix(name, filepath.Ext(name))
		}

		c, err := Build(def, tools, chains)
		if err != nil {
			logger.Warn("cannot build chain", "path", path, "name", def.Name, "err", err)
			continue
		}
		if err := chains.Register(c); err != nil {
			logger.Warn("cannot register chain", "name", def.Name, "err", err)
			continue
		}
		logger.Info("loaded user chain", "name", def.Name, "path", path)
	}

	return nil
}

// Build constructs an executable from a definition, resolving tool and chain
// references against the registries.
func Build(def Definition, tools *tool.Registry, chains *Registry) (domain.Executable, error) {
	switch def.Kind {
	case "", "sequential":
		steps, err := buildSteps(def.Steps, tools, chains)
		if err != nil {
			return nil, fmt.Errorf("chain %s: %w", def.Name, err)
		}
		return New(def.Name, def.Description, steps...)

	case "conditional":
		if def.Condition == nil {
			return nil, fmt.Errorf("chain %s: conditional chain requires a condition", def.Name)
		}
		cond, err := buildPredicate(*def.Condition)
		if err != nil {
			return nil, fmt.Errorf("chain %s: %w", def.Name, err)
		}
		steps, err := buildSteps(def.Steps, tools, chains)
		if err != nil {
			return nil, fmt.Errorf("chain %s: %w", def.Name, err)
		}
		return NewConditional(def.Name, def.Description, cond, steps...)

	case "branching":
		branches := make([]Branch, 0, len(def.Branches))
		for _, bd := range def.Branches {
			when, err := buildPredicate(bd.When)
			if err != nil {
				return nil, fmt.Errorf("chain %s branch %s: %w", def.Name, bd.Name, err)
			}
			steps, err := buildSteps(bd.Steps, tools, chains)
			if err != nil {
				return nil, fmt.Errorf("chain %s branch %s: %w", def.Name, bd.Name, err)
			}
			inner, err := New(def.Name+"."+bd.Name, "", steps...)
			if err != nil {
				return nil, err
			}
			branches = append(branches, Branch{Name: bd.Name, When: when, Exec: inner})
		}
		return NewBranching(def.Name, def.Description, branches, def.Default)

	default:
		return nil, fmt.Errorf("chain %s: unknown kind %q", def.Name, def.Kind)
	}
}

func buildSteps(defs []StepDef, tools *tool.Registry, chains *Registry) ([]domain.Executable, error) {
	steps := make([]domain.Executable, 0, len(defs))
	for i, sd := range defs {
		switch {
		case sd.Tool != "":
			t, err := tools.Get(sd.Tool)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", i, err)
			}
			steps = append(steps, NewToolStep(t, sd.Args, sd.InputKey))
		case sd.Chain != "":
			c, err := chains.Get(sd.Chain)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", i, err)
			}
			steps = append(steps, c)
		default:
			return nil, fmt.Errorf("step %d: needs either tool or chain", i)
		}
	}
	return steps, nil
}

func buildPredicate(td TriggerDef) (Predicate, error) {
	var preds []Predicate
	if len(td.Contains) > 0 {
		preds = append(preds, ContainsAny(td.Contains...))
	}
	if td.Pattern != "" {
		re, err := regexp.Compile(td.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", td.Pattern, err)
		}
		preds = append(preds, MatchesPattern(re))
	}
	if len(preds) == 0 {
		return nil, fmt.Errorf("empty condition: needs contains or pattern")
	}
	return func(input string, ic *domain.InvocationContext) bool {
		for _, p := range preds {
			if p(input, ic) {
				return true
			}
		}
		return false
	}, nil
}
