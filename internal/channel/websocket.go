package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"prizmagent/internal/domain"
	"prizmagent/internal/invoke"
)

// WSConfig configures the WebSocket channel.
type WSConfig struct {
	Port       int
	Path       string // endpoint path (default: /ws)
	Logger     *slog.Logger
	Invoker    *invoke.Invoker
	InvokeOpts invoke.Options
}

// WebSocketChannel provides real-time bidirectional communication. Besides
// chat messages it accepts direct "invoke" frames that run a tool or chain
// without going through the agent loop.
type WebSocketChannel struct {
	port       int
	path       string
	bus        domain.MessageBus
	logger     *slog.Logger
	server     *http.Server
	invoker    *invoke.Invoker
	invokeOpts invoke.Options

	mu      sync.RWMutex
	clients map[string]*wsClient
}

// wsClient tracks a connected WebSocket client.
type wsClient struct {
	conn   *websocket.Conn
	chatID string
	mu     sync.Mutex
}

// WSMessage is the JSON frame protocol.
type WSMessage struct {
	Type    string         `json:"type"` // "message" | "invoke" | "outcome" | "status"
	Content string         `json:"content,omitempty"`
	ChatID  string         `json:"chat_id,omitempty"`
	UserID  string         `json:"user_id,omitempty"`
	Target  string         `json:"target,omitempty"`
	Args    map[string]any `json:"args,omitempty"`
	Status  string         `json:"status,omitempty"`
	Cached  bool           `json:"cached,omitempty"`
	Error   string         `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // configure CORS upstream for production
	},
}

// NewWebSocketChannel creates a new WebSocket channel.
func NewWebSocketChannel(cfg WSConfig) *WebSocketChannel {
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	if cfg.Port == 0 {
		cfg.Port = 8081
	}
	return &WebSocketChannel{
		port:       cfg.Port,
		path:       cfg.Path,
		logger:     cfg.Logger,
		invoker:    cfg.Invoker,
		invokeOpts: cfg.InvokeOpts,
		clients:    make(map[string]*wsClient),
	}
}

func (ws *WebSocketChannel) Name() string { return "websocket" }

// Start begins the WebSocket server and blocks until ctx is cancelled.
func (ws *WebSocketChannel) Start(ctx context.Context, bus domain.MessageBus) error {
	ws.bus = bus

	mux := http.NewServeMux()
	mux.HandleFunc(ws.path, ws.handleUpgrade)

	ws.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", ws.port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	bus.OnOutbound("websocket", func(msg domain.OutboundMessage) {
		ws.broadcastToChat(msg.ChatID, WSMessage{
			Type:    "message",
			Content: msg.Content,
			ChatID:  msg.ChatID,
		})
	})

	ws.logger.Info("websocket server starting", "port", ws.port, "path", ws.path)

	errCh := make(chan error, 1)
	go func() {
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		ws.closeAllClients()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return ws.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (ws *WebSocketChannel) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Error("websocket upgrade failed", "err", err)
		return
	}

	chatID := r.URL.Query().Get("chat_id")
	if chatID == "" {
		chatID = fmt.Sprintf("ws-%d", time.Now().UnixNano())
	}

	client := &wsClient{
		conn:   conn,
		chatID: chatID,
	}

	clientID := fmt.Sprintf("%s-%p", chatID, conn)
	ws.mu.Lock()
	ws.clients[clientID] = client
	ws.mu.Unlock()

	ws.logger.Info("websocket client connected", "client_id", clientID, "chat_id", chatID)

	client.send(WSMessage{Type: "status", Content: "connected", ChatID: chatID})

	defer func() {
		ws.mu.Lock()
		delete(ws.clients, clientID)
		ws.mu.Unlock()
		conn.Close()
		ws.logger.Info("websocket client disconnected", "client_id", clientID)
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ws.logger.Error("websocket read error", "err", err)
			}
			return
		}

		var wsMsg WSMessage
		if err := json.Unmarshal(message, &wsMsg); err != nil {
			ws.logger.Warn("invalid websocket message", "err", err)
			continue
		}

		switch wsMsg.Type {
		case "message":
			ws.bus.Publish(domain.InboundMessage{
				Channel:   "websocket",
				ChatID:    chatID,
				SenderID:  wsMsg.UserID,
				Content:   wsMsg.Content,
				Timestamp: time.Now(),
			})

		case "invoke":
			go ws.handleInvoke(r.Context(), client, chatID, wsMsg)
		}
	}
}

// handleInvoke runs a direct invocation and sends the outcome back on the
// same connection.
func (ws *WebSocketChannel) handleInvoke(ctx context.Context, client *wsClient, chatID string, msg WSMessage) {
	if ws.invoker == nil {
		client.send(WSMessage{Type: "outcome", ChatID: chatID, Status: "failed", Error: "invoker not available"})
		return
	}

	ic := domain.NewInvocationContext(uuid.NewString(), "websocket:"+chatID, "websocket")
	outcome := ws.invoker.Invoke(ctx, invoke.Request{
		Raw:    msg.Content,
		Target: msg.Target,
		Args:   msg.Args,
	}, ic, ws.invokeOpts)

	reply := WSMessage{
		Type:    "outcome",
		ChatID:  chatID,
		Target:  outcome.Target,
		Content: outcome.Result,
		Status:  string(outcome.Status),
		Cached:  outcome.Cached,
	}
	if outcome.Failure != nil {
		reply.Error = outcome.Failure.Error()
	}
	client.send(reply)
}

func (ws *WebSocketChannel) broadcastToChat(chatID string, msg WSMessage) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	for _, client := range ws.clients {
		if client.chatID == chatID || chatID == "" {
			client.mu.Lock()
			err := client.conn.WriteMessage(websocket.TextMessage, data)
			client.mu.Unlock()
			if err != nil {
				ws.logger.Debug("websocket write failed", "err", err)
			}
		}
	}
}

func (c *wsClient) send(msg WSMessage) {
	data, _ := json.Marshal(msg)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.WriteMessage(websocket.TextMessage, data)
}

func (ws *WebSocketChannel) closeAllClients() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for id, client := range ws.clients {
		client.conn.Close()
		delete(ws.clients, id)
	}
}
