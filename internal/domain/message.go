package domain

import (
	"context"
	"time"
)

// InboundMessage is a user message arriving from a channel (web, websocket, cli).
type InboundMessage struct {
	Channel   string
	ChatID    string
	SenderID  string
	Content   string
	Timestamp time.Time
}

// OutboundMessage is the agent's reply routed back to the originating channel.
type OutboundMessage struct {
	Channel string
	ChatID  string
	Content string
	Format  string // text | markdown
}

// MessageBus routes messages between channels and the agent loop.
type MessageBus interface {
	Publish(msg InboundMessage)
	Subscribe() <-chan InboundMessage
	SendOutbound(msg OutboundMessage)
	OnOutbound(channelName string, handler func(OutboundMessage))
	Close()
}

// Channel is a user-facing surface (web UI, websocket, terminal REPL).
type Channel interface {
	Name() string
	Start(ctx context.Context, bus MessageBus) error
}
