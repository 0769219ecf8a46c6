package channel

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"prizmagent/internal/bus"
	"prizmagent/internal/chain"
	"prizmagent/internal/domain"
	"prizmagent/internal/tool"
)

// syncBuffer guards the output buffer against the spinner goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestCLI_SlashCommandsListRegistries(t *testing.T) {
	logger := testLogger()
	tools := tool.NewRegistry(logger)
	chains := chain.NewRegistry(logger)
	tools.MustRegister(&stubTool{name: "upper", fn: func(_ context.Context, args map[string]any) (string, error) {
		return "", nil
	}})

	out := &syncBuffer{}
	c := NewCLI(CLIConfig{
		Logger: logger,
		In:     strings.NewReader("/tools\n/chains\n/quit\n"),
		Out:    out,
		Tools:  tools,
		Chains: chains,
	})

	b := bus.New(16, logger)
	defer b.Close()

	if err := c.Start(context.Background(), b); err != nil {
		t.Fatalf("start: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "upper") {
		t.Errorf("output missing tool listing:\n%s", got)
	}
	if !strings.Contains(got, "No chains registered.") {
		t.Errorf("output missing empty chain listing:\n%s", got)
	}
}

func TestCLI_PublishesUserMessages(t *testing.T) {
	logger := testLogger()
	b := bus.New(16, logger)
	defer b.Close()

	received := make(chan domain.InboundMessage, 1)
	go func() {
		received <- <-b.Subscribe()
	}()

	c := NewCLI(CLIConfig{
		Logger: logger,
		In:     strings.NewReader("hello there\n/quit\n"),
		Out:    &syncBuffer{},
	})
	if err := c.Start(context.Background(), b); err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case msg := <-received:
		if msg.Channel != "cli" || msg.ChatID != "direct" || msg.Content != "hello there" {
			t.Errorf("unexpected message: %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message published on the bus")
	}
}

func TestCLI_ExitsOnEOF(t *testing.T) {
	logger := testLogger()
	b := bus.New(16, logger)
	defer b.Close()

	c := NewCLI(CLIConfig{
		Logger: logger,
		In:     strings.NewReader(""),
		Out:    &syncBuffer{},
	})
	done := make(chan error, 1)
	go func() { done <- c.Start(context.Background(), b) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("start: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("CLI did not exit on EOF")
	}
}
