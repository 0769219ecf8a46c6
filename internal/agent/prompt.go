package agent

import (
	"strings"

	"prizmagent/internal/chain"
	"prizmagent/internal/domain"
	"prizmagent/internal/tool"
)

// PromptBuilder assembles the message list for a provider call: a system
// prompt describing the assistant and its tool catalog, prior conversation
// turns, then the current user message.
type PromptBuilder struct {
	tools  *tool.Registry
	chains *chain.Registry
	filter *ToolFilter
	extra  string
}

func NewPromptBuilder(tools *tool.Registry, chains *chain.Registry, filter *ToolFilter, extra string) *PromptBuilder {
	return &PromptBuilder{tools: tools, chains: chains, filter: filter, extra: extra}
}

// SystemPrompt renders the system message. The catalog lists tools and
// chains by name so the model can target either; chains take a single free
// text input.
func (p *PromptBuilder) SystemPrompt() string {
	var sb strings.Builder
	sb.WriteString("You are PrizmAgent, a helpful assistant that can invoke tools and chains to answer questions.\n")
	sb.WriteString("Call a tool only when it is needed; answer directly when you already know the answer.\n")

	defs := p.Definitions()
	if len(defs) > 0 {
		sb.WriteString("\nAvailable tools and chains:\n")
		for _, d := range defs {
			sb.WriteString("- ")
			sb.WriteString(d.Name)
			if d.Kind == domain.KindChain {
				sb.WriteString(" (chain)")
			}
			if d.Description != "" {
				sb.WriteString(": ")
				sb.WriteString(d.Description)
			}
			sb.WriteString("\n")
		}
	}

	if p.extra != "" {
		sb.WriteString("\n")
		sb.WriteString(p.extra)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Definitions returns the filtered tool and chain descriptors advertised to
// the provider.
func (p *PromptBuilder) Definitions() []domain.ToolDefinition {
	var defs []domain.ToolDefinition
	if p.tools != nil {
		defs = append(defs, p.tools.List()...)
	}
	if p.chains != nil {
		defs = append(defs, p.chains.List()...)
	}
	if p.filter != nil {
		defs = p.filter.FilterDefinitions(defs)
	}
	return defs
}

// BuildMessages produces the provider message list for one turn.
func (p *PromptBuilder) BuildMessages(history []domain.Message, content string) []domain.Message {
	messages := make([]domain.Message, 0, len(history)+2)
	messages = append(messages, domain.Message{Role: "system", Content: p.SystemPrompt()})
	messages = append(messages, history...)
	messages = append(messages, domain.Message{Role: "user", Content: content})
	return messages
}
