// Package agent runs the conversation loop: receive message, call the
// provider, invoke requested tools and chains, respond.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"prizmagent/internal/domain"
	"prizmagent/internal/invoke"
	"prizmagent/internal/session"
)

const (
	defaultMaxIterations    = 10
	defaultHistoryLimit     = 50
	defaultLLMMaxTokens     = 4096
	defaultTemperature      = 0.7
	defaultConcurrency      = 3
	defaultMaxParallelTools = 5
	defaultRateBurst        = 5
	defaultRatePerMinute    = 30.0
)

// Loop is the agent engine: it consumes inbound messages, drives the
// provider, and routes every tool call through the invoker.
type Loop struct {
	provider      domain.Provider
	invoker       *invoke.Invoker
	prompt        *PromptBuilder
	filter        *ToolFilter
	store         *session.Store // nil disables persistence
	bus           domain.MessageBus
	logger        *slog.Logger
	maxIterations int
	concurrency   int
	invokeOpts    invoke.Options
	rateLimiter   *RateLimiter
}

// LoopConfig holds all dependencies and tuning parameters for the agent loop.
type LoopConfig struct {
	Provider      domain.Provider
	Invoker       *invoke.Invoker
	Prompt        *PromptBuilder
	Filter        *ToolFilter
	Store         *session.Store
	Bus           domain.MessageBus
	Logger        *slog.Logger
	MaxIterations int
	Concurrency   int // max parallel messages (default 3)
	InvokeOpts    invoke.Options
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Loop{
		provider:      cfg.Provider,
		invoker:       cfg.Invoker,
		prompt:        cfg.Prompt,
		filter:        cfg.Filter,
		store:         cfg.Store,
		bus:           cfg.Bus,
		logger:        cfg.Logger,
		maxIterations: cfg.MaxIterations,
		concurrency:   cfg.Concurrency,
		invokeOpts:    cfg.InvokeOpts,
		rateLimiter:   NewRateLimiter(defaultRateBurst, defaultRatePerMinute),
	}
}

// Run consumes inbound messages and processes them with bounded concurrency.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("agent loop started", "concurrency", l.concurrency)

	sem := make(chan struct{}, l.concurrency)
	inbound := l.bus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("agent loop stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				l.logger.Info("inbound channel closed, agent loop stopping")
				return
			}
			sem <- struct{}{}
			go func(m domain.InboundMessage) {
				defer func() { <-sem }()
				l.processMessage(ctx, m)
			}(msg)
		}
	}
}

// ProcessDirect processes a message synchronously and returns the response.
// Used by the CLI and HTTP handlers that need a blocking reply.
func (l *Loop) ProcessDirect(ctx context.Context, content, channel, chatID string) (string, error) {
	return l.handleMessage(ctx, domain.InboundMessage{
		Channel:   channel,
		ChatID:    chatID,
		SenderID:  "user",
		Content:   content,
		Timestamp: time.Now(),
	})
}

func (l *Loop) processMessage(ctx context.Context, msg domain.InboundMessage) {
	l.logger.Info("processing message",
		"channel", msg.Channel,
		"sender", msg.SenderID,
		"content_len", len(msg.Content),
	)

	response, err := l.handleMessage(ctx, msg)
	if err != nil {
		l.logger.Error("message processing failed", "error", err)
		response = fmt.Sprintf("Sorry, I encountered an error: %s", err.Error())
	}

	l.bus.SendOutbound(domain.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: response,
		Format:  "markdown",
	})
}

// handleMessage is the main agent logic: build prompt, call the provider,
// invoke tool calls until the model stops asking for them, return text.
func (l *Loop) handleMessage(ctx context.Context, msg domain.InboundMessage) (string, error) {
	convID := fmt.Sprintf("%s:%s", msg.Channel, msg.ChatID)

	history := l.loadHistory(ctx, convID, msg)
	messages := l.prompt.BuildMessages(history, msg.Content)
	toolDefs := l.prompt.Definitions()

	toolSem := make(chan struct{}, defaultMaxParallelTools)

	var finalContent string
	for iteration := 0; iteration < l.maxIterations; iteration++ {
		l.logger.Debug("agent iteration", "iteration", iteration+1, "messages", len(messages))

		if err := l.rateLimiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit: %w", err)
		}

		start := time.Now()
		resp, err := l.provider.Chat(ctx, domain.ChatRequest{
			Messages:    messages,
			Tools:       toolDefs,
			MaxTokens:   defaultLLMMaxTokens,
			Temperature: defaultTemperature,
		})
		if err != nil {
			return "", fmt.Errorf("LLM error: %w", err)
		}
		resp.LatencyMs = time.Since(start).Milliseconds()

		// Models without native tool calling embed the call in the text.
		if !resp.HasToolCalls() && resp.Content != "" {
			if tcr, err := invoke.Parse(resp.Content); err == nil && tcr.Name != "" {
				resp.ToolCalls = []domain.ToolCall{{
					ID:        uuid.NewString(),
					Name:      tcr.Name,
					Arguments: tcr.Args,
				}}
				resp.Content = ""
				l.logger.Info("extracted tool call from content text", "target", tcr.Name)
			}
		}

		// No tool calls: the model's text is the final answer.
		if !resp.HasToolCalls() {
			finalContent = resp.Content
			break
		}

		messages = append(messages, domain.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		// Invoke tool calls in parallel with bounded concurrency; each call
		// is an independent invocation with its own context.
		results := make([]string, len(resp.ToolCalls))
		var wg sync.WaitGroup
		for i, tc := range resp.ToolCalls {
			wg.Add(1)
			go func(idx int, tc domain.ToolCall) {
				defer wg.Done()
				toolSem <- struct{}{}
				defer func() { <-toolSem }()
				results[idx] = l.invokeCall(ctx, tc, convID, msg.Channel)
			}(i, tc)
		}
		wg.Wait()

		for i, tc := range resp.ToolCalls {
			messages = append(messages, domain.Message{
				Role:       "tool",
				Content:    results[i],
				ToolCallID: tc.ID,
				ToolName:   tc.Name,
			})
		}
	}

	if finalContent == "" {
		finalContent = "I've completed processing but have no additional response."
	}

	l.persistTurns(ctx, convID, msg, finalContent)
	return finalContent, nil
}

// invokeCall runs one tool call through the invoker and renders its outcome
// as the tool-role message content handed back to the model.
func (l *Loop) invokeCall(ctx context.Context, tc domain.ToolCall, convID, channel string) string {
	if l.filter != nil && !l.filter.IsAllowed(tc.Name) {
		l.logger.Warn("tool call blocked by filter", "target", tc.Name)
		return fmt.Sprintf("Tool %s is not available.", tc.Name)
	}

	ic := domain.NewInvocationContext(uuid.NewString(), convID, channel)
	outcome := l.invoker.Invoke(ctx, invoke.Request{
		Target: tc.Name,
		Args:   tc.Arguments,
	}, ic, l.invokeOpts)

	return renderOutcome(tc.Name, outcome)
}

// renderOutcome turns an invocation outcome into text the model can read.
// Skipped and no-branch outcomes are spelled out so the model does not
// mistake them for empty results.
func renderOutcome(target string, o domain.Outcome) string {
	switch o.Status {
	case domain.StatusCompleted:
		return o.Result
	case domain.StatusSkipped:
		return fmt.Sprintf("Chain %s was skipped: its condition did not match the input.", target)
	case domain.StatusNoBranchMatched:
		return fmt.Sprintf("Chain %s matched no branch for this input.", target)
	case domain.StatusTimeout:
		return fmt.Sprintf("Invocation of %s timed out.", target)
	default:
		return fmt.Sprintf("Error invoking %s: %s", target, o.ErrorMessage())
	}
}

func (l *Loop) loadHistory(ctx context.Context, convID string, msg domain.InboundMessage) []domain.Message {
	if l.store == nil {
		return nil
	}

	if err := l.store.CreateConversation(ctx, session.Conversation{
		ID:      convID,
		Title:   truncateTitle(msg.Content),
		Channel: msg.Channel,
	}); err != nil {
		l.logger.Warn("cannot ensure conversation", "conversation", convID, "err", err)
	}

	turns, err := l.store.GetTurns(ctx, convID, defaultHistoryLimit)
	if err != nil {
		l.logger.Warn("failed to load history, continuing without it", "error", err)
		return nil
	}

	history := make([]domain.Message, 0, len(turns))
	for _, t := range turns {
		history = append(history, domain.Message{
			Role:     t.Role,
			Content:  t.Content,
			ToolName: t.Target,
		})
	}
	return history
}

func (l *Loop) persistTurns(ctx context.Context, convID string, msg domain.InboundMessage, response string) {
	if l.store == nil {
		return
	}
	if err := l.store.AddTurn(ctx, session.Turn{
		ConversationID: convID, Role: "user", Content: msg.Content,
	}); err != nil {
		l.logger.Warn("failed to save user turn", "error", err, "conversation", convID)
	}
	if err := l.store.AddTurn(ctx, session.Turn{
		ConversationID: convID, Role: "assistant", Content: response,
	}); err != nil {
		l.logger.Warn("failed to save assistant turn", "error", err, "conversation", convID)
	}
}

func truncateTitle(s string) string {
	const max = 60
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
