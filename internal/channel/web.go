package channel

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"prizmagent/internal/chain"
	"prizmagent/internal/config"
	"prizmagent/internal/domain"
	"prizmagent/internal/invoke"
	"prizmagent/internal/metrics"
	"prizmagent/internal/tool"
)

const (
	maxBodySize       = 1 << 20
	requestTimeout    = 120 * time.Second
	sessionCookieName = "prizm_session"
	sessionMaxAge     = 86400 * 30 // 30 days
)

//go:embed web_templates/*.html
var templateFS embed.FS

// Web implements domain.Channel for the browser UI and JSON API.
type Web struct {
	host    string
	port    int
	bus     domain.MessageBus
	logger  *slog.Logger
	server  *http.Server
	tmpl    *htmltemplate.Template
	version string

	tools      *tool.Registry
	chains     *chain.Registry
	invoker    *invoke.Invoker
	invokeOpts invoke.Options

	// Config reference for the settings API (protected by cfgMu)
	cfg     *config.Config
	cfgPath string
	cfgMu   sync.RWMutex

	authEnabled  bool
	authUser     string
	authPassHash string

	// SSE clients keyed by session ID for targeted delivery
	sseClients   map[string]chan string
	sseClientsMu sync.RWMutex

	// Pending responses keyed by session ID
	pendingResponses   map[string]chan string
	pendingResponsesMu sync.Mutex
}

type WebConfig struct {
	Host       string
	Port       int
	Logger     *slog.Logger
	Config     *config.Config
	ConfigPath string
	Version    string
	Tools      *tool.Registry
	Chains     *chain.Registry
	Invoker    *invoke.Invoker
	InvokeOpts invoke.Options
}

func NewWeb(cfg WebConfig) *Web {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	tmpl := htmltemplate.Must(htmltemplate.ParseFS(templateFS, "web_templates/*.html"))

	w := &Web{
		host:             cfg.Host,
		port:             cfg.Port,
		logger:           cfg.Logger,
		tmpl:             tmpl,
		version:          cfg.Version,
		tools:            cfg.Tools,
		chains:           cfg.Chains,
		invoker:          cfg.Invoker,
		invokeOpts:       cfg.InvokeOpts,
		cfg:              cfg.Config,
		cfgPath:          cfg.ConfigPath,
		sseClients:       make(map[string]chan string),
		pendingResponses: make(map[string]chan string),
	}

	if cfg.Config != nil && cfg.Config.Server.Web.Auth.Enabled {
		w.authEnabled = true
		w.authUser = cfg.Config.Server.Web.Auth.Username
		w.authPassHash = cfg.Config.Server.Web.Auth.PasswordHash
	}

	return w
}

func (w *Web) Name() string { return "web" }

// Start starts the web server and blocks until ctx is cancelled.
func (w *Web) Start(ctx context.Context, bus domain.MessageBus) error {
	w.attach(bus)

	mux := w.routes()

	addr := fmt.Sprintf("%s:%d", w.host, w.port)
	w.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	w.logger.Info("web server started", "addr", "http://"+addr, "auth", w.authEnabled)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		w.server.Shutdown(shutdownCtx)
	}()

	if err := w.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// attach wires the bus and routes agent responses back to the session that
// asked.
func (w *Web) attach(bus domain.MessageBus) {
	w.bus = bus
	bus.OnOutbound("web", func(msg domain.OutboundMessage) {
		w.pendingResponsesMu.Lock()
		ch, ok := w.pendingResponses[msg.ChatID]
		w.pendingResponsesMu.Unlock()
		if ok {
			select {
			case ch <- msg.Content:
			default:
			}
		}
		w.sendSSE(msg.ChatID, msg.Content)
	})
}

func (w *Web) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /", w.requireAuth(w.handleIndex))
	mux.HandleFunc("GET /healthz", w.handleHealthz) // public endpoint
	mux.HandleFunc("GET /api/stream", w.requireAuth(w.handleSSE))

	mux.HandleFunc("POST /api/chat", w.requireAuth(w.handleChat))
	mux.HandleFunc("POST /api/chat/clear", w.requireAuth(w.handleClear))
	mux.HandleFunc("GET /api/tools", w.requireAuth(w.handleTools))
	mux.HandleFunc("GET /api/chains", w.requireAuth(w.handleChains))
	mux.HandleFunc("POST /api/invoke", w.requireAuth(w.handleInvoke))

	mux.HandleFunc("GET /api/config", w.requireAuth(w.handleGetConfig))
	mux.HandleFunc("PUT /api/config", w.requireAuth(w.handleUpdateConfig))
	mux.HandleFunc("POST /api/config/save", w.requireAuth(w.handleSaveConfig))

	if w.cfg == nil || w.cfg.Metrics.Enabled {
		endpoint := "/metrics"
		if w.cfg != nil && w.cfg.Metrics.Endpoint != "" {
			endpoint = w.cfg.Metrics.Endpoint
		}
		mux.HandleFunc("GET "+endpoint, metrics.Collector.Handler())
	}

	return mux
}

// requireAuth wraps a handler with HTTP Basic Auth when auth is enabled.
func (w *Web) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !w.authEnabled {
			next(rw, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || !w.checkCredentials(user, pass) {
			rw.Header().Set("WWW-Authenticate", `Basic realm="prizmagent"`)
			http.Error(rw, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(rw, r)
	}
}

// checkCredentials verifies the username and password against the stored
// SHA-256 hex hash in constant time.
func (w *Web) checkCredentials(user, pass string) bool {
	if subtle.ConstantTimeCompare([]byte(user), []byte(w.authUser)) != 1 {
		return false
	}
	hash := sha256.Sum256([]byte(pass))
	got := hex.EncodeToString(hash[:])
	return subtle.ConstantTimeCompare([]byte(got), []byte(w.authPassHash)) == 1
}

func (w *Web) Stop() error {
	if w.server != nil {
		return w.server.Close()
	}
	return nil
}

// getOrCreateSession returns a persistent session ID from cookies, creating
// one when the request carries none.
func (w *Web) getOrCreateSession(r *http.Request, rw http.ResponseWriter) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		return cookie.Value
	}

	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		sessionID := fmt.Sprintf("web_%d", time.Now().UnixNano())
		w.logger.Warn("rand.Read failed, using fallback session ID", "err", err)
		http.SetCookie(rw, &http.Cookie{
			Name: sessionCookieName, Value: sessionID, Path: "/",
			MaxAge: sessionMaxAge, HttpOnly: true, SameSite: http.SameSiteLaxMode,
		})
		return sessionID
	}
	sessionID := "web_" + hex.EncodeToString(b)

	http.SetCookie(rw, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sessionID
}

func (w *Web) handleIndex(rw http.ResponseWriter, r *http.Request) {
	w.getOrCreateSession(r, rw)
	if err := w.tmpl.ExecuteTemplate(rw, "index.html", map[string]any{
		"Title":   "prizmagent",
		"Version": w.version,
	}); err != nil {
		w.logger.Error("template error", "template", "index", "err", err)
	}
}

func (w *Web) handleHealthz(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": w.version,
		"time":    time.Now().Format(time.RFC3339),
	})
}

// handleChat publishes a user message on the bus and waits for the agent's
// reply for this session.
func (w *Web) handleChat(rw http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil || req.Message == "" {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "empty message"})
		return
	}

	// Persistent session ID doubles as the ChatID so conversation history
	// survives across requests.
	sessionID := w.getOrCreateSession(r, rw)

	responseCh := make(chan string, 1)
	w.pendingResponsesMu.Lock()
	// A previous request still pending for this session is superseded.
	if oldCh, exists := w.pendingResponses[sessionID]; exists {
		close(oldCh)
	}
	w.pendingResponses[sessionID] = responseCh
	w.pendingResponsesMu.Unlock()
	defer func() {
		w.pendingResponsesMu.Lock()
		if ch, ok := w.pendingResponses[sessionID]; ok && ch == responseCh {
			delete(w.pendingResponses, sessionID)
		}
		w.pendingResponsesMu.Unlock()
	}()

	w.bus.Publish(domain.InboundMessage{
		Channel:   "web",
		ChatID:    sessionID,
		SenderID:  "web_user",
		Content:   req.Message,
		Timestamp: time.Now(),
	})

	timeout := time.NewTimer(requestTimeout)
	defer timeout.Stop()
	select {
	case resp, ok := <-responseCh:
		if ok {
			writeJSON(rw, http.StatusOK, map[string]string{"content": resp})
		} else {
			writeJSON(rw, http.StatusConflict, map[string]string{"error": "superseded by new request"})
		}
	case <-timeout.C:
		writeJSON(rw, http.StatusGatewayTimeout, map[string]string{"error": "request timed out"})
	case <-r.Context().Done():
		w.logger.Info("web client disconnected", "session", sessionID)
	}
}

func (w *Web) handleClear(rw http.ResponseWriter, r *http.Request) {
	// Expire the cookie; the next request starts a fresh session.
	http.SetCookie(rw, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	writeJSON(rw, http.StatusOK, map[string]string{"status": "session cleared"})
}

func (w *Web) handleTools(rw http.ResponseWriter, r *http.Request) {
	defs := []domain.ToolDefinition{}
	if w.tools != nil {
		defs = w.tools.List()
	}
	writeJSON(rw, http.StatusOK, map[string]any{"tools": defs, "count": len(defs)})
}

func (w *Web) handleChains(rw http.ResponseWriter, r *http.Request) {
	defs := []domain.ToolDefinition{}
	if w.chains != nil {
		defs = w.chains.List()
	}
	writeJSON(rw, http.StatusOK, map[string]any{"chains": defs, "count": len(defs)})
}

// handleInvoke runs a single tool or chain directly, bypassing the agent
// loop. Either a structured target+args or a raw call expression.
func (w *Web) handleInvoke(rw http.ResponseWriter, r *http.Request) {
	if w.invoker == nil {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]string{"error": "invoker not available"})
		return
	}

	var req struct {
		Target string         `json:"target"`
		Args   map[string]any `json:"args"`
		Raw    string         `json:"raw"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "invalid request: " + err.Error()})
		return
	}
	if req.Target == "" && req.Raw == "" {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "target or raw is required"})
		return
	}

	sessionID := w.getOrCreateSession(r, rw)
	ic := domain.NewInvocationContext(uuid.NewString(), "web:"+sessionID, "web")

	outcome := w.invoker.Invoke(r.Context(), invoke.Request{
		Raw:    req.Raw,
		Target: req.Target,
		Args:   req.Args,
	}, ic, w.invokeOpts)

	resp := map[string]any{
		"status":     string(outcome.Status),
		"target":     outcome.Target,
		"result":     outcome.Result,
		"cached":     outcome.Cached,
		"elapsed_ms": outcome.Elapsed.Milliseconds(),
	}
	if outcome.Failure != nil {
		resp["error"] = outcome.Failure.Error()
		resp["error_kind"] = string(outcome.Failure.Kind)
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (w *Web) handleSSE(rw http.ResponseWriter, r *http.Request) {
	flusher, ok := rw.(http.Flusher)
	if !ok {
		http.Error(rw, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// Session ID filters the stream so each client only sees its own
	// responses.
	sessionID := w.getOrCreateSession(r, rw)

	rw.Header().Set("Content-Type", "text/event-stream")
	rw.Header().Set("Cache-Control", "no-cache")
	rw.Header().Set("Connection", "keep-alive")

	ch := make(chan string, 10)

	w.sseClientsMu.Lock()
	w.sseClients[sessionID] = ch
	w.sseClientsMu.Unlock()

	defer func() {
		w.sseClientsMu.Lock()
		if existing, ok := w.sseClients[sessionID]; ok && existing == ch {
			delete(w.sseClients, sessionID)
		}
		w.sseClientsMu.Unlock()
	}()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ch:
			data, _ := json.Marshal(map[string]string{"content": msg})
			fmt.Fprintf(rw, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (w *Web) handleGetConfig(rw http.ResponseWriter, r *http.Request) {
	w.cfgMu.RLock()
	cfg := w.cfg
	w.cfgMu.RUnlock()

	if cfg == nil {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]string{"error": "config not loaded"})
		return
	}
	writeJSON(rw, http.StatusOK, config.Sanitize(cfg))
}

func (w *Web) handleUpdateConfig(rw http.ResponseWriter, r *http.Request) {
	w.cfgMu.Lock()
	defer w.cfgMu.Unlock()

	if w.cfg == nil {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]string{"error": "config not loaded"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "read body: " + err.Error()})
		return
	}
	defer r.Body.Close()

	// Partial update: { "path": "invoke.timeoutSeconds", "value": 90 }
	var partial struct {
		Path  string `json:"path"`
		Value any    `json:"value"`
	}
	if err := json.Unmarshal(body, &partial); err == nil && partial.Path != "" {
		if err := config.SetByPath(w.cfg, partial.Path, partial.Value); err != nil {
			writeJSON(rw, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if err := config.Validate(w.cfg); err != nil {
			writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "validation: " + err.Error()})
			return
		}
		w.logger.Info("config updated via path", "path", partial.Path, "value", partial.Value)
		writeJSON(rw, http.StatusOK, map[string]string{"status": "updated", "path": partial.Path})
		return
	}

	// Full config update goes through a temporary copy so a bad payload
	// never clobbers the live config.
	var candidate config.Config
	if err := json.Unmarshal(body, &candidate); err != nil {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "invalid config: " + err.Error()})
		return
	}
	if err := config.Validate(&candidate); err != nil {
		writeJSON(rw, http.StatusBadRequest, map[string]string{"error": "validation: " + err.Error()})
		return
	}
	*w.cfg = candidate

	w.logger.Info("config updated (full)")
	writeJSON(rw, http.StatusOK, map[string]string{"status": "updated"})
}

func (w *Web) handleSaveConfig(rw http.ResponseWriter, r *http.Request) {
	w.cfgMu.RLock()
	cfg := w.cfg
	cfgPath := w.cfgPath
	w.cfgMu.RUnlock()

	if cfg == nil || cfgPath == "" {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]string{"error": "config not available"})
		return
	}

	if err := config.Save(cfgPath, cfg); err != nil {
		writeJSON(rw, http.StatusInternalServerError, map[string]string{"error": "save failed: " + err.Error()})
		return
	}

	w.logger.Info("config saved to disk", "path", cfgPath)
	writeJSON(rw, http.StatusOK, map[string]string{"status": "saved", "path": cfgPath})
}

// sendSSE delivers a message to the SSE client owning the session, dropping
// it when the client is gone or slow.
func (w *Web) sendSSE(sessionID string, content string) {
	w.sseClientsMu.RLock()
	ch, ok := w.sseClients[sessionID]
	w.sseClientsMu.RUnlock()
	if ok {
		select {
		case ch <- content:
		default:
		}
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(v)
}
