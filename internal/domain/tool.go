package domain

import "context"

// Tool is the interface for atomic agent capabilities (search, calculation,
// data lookup, etc). A tool validates its own arguments against its parameter
// schema before acting and fails with an InvalidArguments error rather than
// crashing the invocation.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// DescriptorKind distinguishes tools from chains in discovery listings.
type DescriptorKind string

const (
	KindTool  DescriptorKind = "tool"
	KindChain DescriptorKind = "chain"
)

// ToolDefinition is the discovery descriptor for a registered tool or chain,
// rendered by the web layer as the tool catalog and sent to LLM providers.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Kind        DescriptorKind `json:"kind,omitempty"`
}

// RunStatus classifies the terminal state of one executable run.
// RunSkipped and RunNoBranch are legitimate outcomes, not errors: a
// conditional chain whose predicate is false reports RunSkipped, a branching
// chain with no matching branch and no default reports RunNoBranch.
type RunStatus string

const (
	RunOK       RunStatus = "ok"
	RunSkipped  RunStatus = "skipped"
	RunNoBranch RunStatus = "no_branch"
)

// RunResult is the value produced by an Executable.
type RunResult struct {
	Output string
	Status RunStatus
}

// Executable is the common capability of tools and chains: anything the
// invoker can run with an input string and a shared invocation context.
// Chains implement it directly; tools are adapted through chain.ToolStep so
// a chain step may itself be a nested chain.
type Executable interface {
	Name() string
	Description() string
	Run(ctx context.Context, input string, ic *InvocationContext) (RunResult, error)
}
