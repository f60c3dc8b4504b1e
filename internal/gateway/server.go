// Package gateway serves the sprintbot WebSocket RPC API together with the
// HTTP health and metrics endpoints.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/sprintbot/internal/agent"
	"github.com/soyeahso/sprintbot/internal/channel"
	"github.com/soyeahso/sprintbot/internal/config"
	"github.com/soyeahso/sprintbot/internal/directory"
	"github.com/soyeahso/sprintbot/internal/domain"
	"github.com/soyeahso/sprintbot/internal/hooks"
	"github.com/soyeahso/sprintbot/internal/logging"
	"github.com/soyeahso/sprintbot/internal/metrics"
	"github.com/soyeahso/sprintbot/internal/scheduler"
	"github.com/soyeahso/sprintbot/internal/version"
)

const (
	maxPayloadBytes  = 1 << 20
	handshakeTimeout = 10 * time.Second
	shutdownTimeout  = 10 * time.Second
)

// Chatter answers one utterance. *agent.Router implements it.
type Chatter interface {
	Handle(ctx context.Context, key domain.SessionKey, utterance string) (*agent.Reply, error)
}

// SessionLister reports known session ids. agent.SessionStore implements it.
type SessionLister interface {
	List() []string
}

// Schedule exposes scheduled jobs. *scheduler.Scheduler implements it.
type Schedule interface {
	Jobs() []scheduler.JobStatus
	RunNow(ctx context.Context, name string) (*agent.Reply, error)
}

// Server is the gateway HTTP + WebSocket server.
type Server struct {
	cfg      config.GatewayConfig
	auth     ResolvedAuth
	log      *logging.Logger
	clients  *ClientRegistry
	handlers map[string]RequestHandler
	limiter  *authRateLimiter
	upgrader websocket.Upgrader
	eventSeq atomic.Int64

	chat     Chatter
	sessions SessionLister
	boards   directory.Source
	channels *channel.Registry
	schedule Schedule
	hooks    *hooks.Manager
	metrics  *metrics.Recorder

	mu        sync.RWMutex
	configRaw map[string]any
	addr      string
	startedAt time.Time
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithChat enables chat.send.
func WithChat(c Chatter) ServerOption {
	return func(s *Server) { s.chat = c }
}

// WithSessions enables session counts in status and sessions.list.
func WithSessions(l SessionLister) ServerOption {
	return func(s *Server) { s.sessions = l }
}

// WithBoards enables teams.list.
func WithBoards(src directory.Source) ServerOption {
	return func(s *Server) { s.boards = src }
}

// WithChannels sets the channel registry for status reporting.
func WithChannels(ch *channel.Registry) ServerOption {
	return func(s *Server) { s.channels = ch }
}

// WithSchedule enables schedule.list and schedule.run.
func WithSchedule(sc Schedule) ServerOption {
	return func(s *Server) { s.schedule = sc }
}

// WithHooks sets the hook manager for lifecycle events.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) { s.hooks = hm }
}

// WithMetrics exposes the recorder on GET /metrics.
func WithMetrics(m *metrics.Recorder) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithConfigRaw sets the raw config map read by config.get.
func WithConfigRaw(raw map[string]any) ServerOption {
	return func(s *Server) { s.configRaw = raw }
}

// New creates a gateway server.
func New(cfg config.GatewayConfig, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:       cfg,
		auth:      ResolveAuth(cfg.Auth),
		log:       log.Sub("gateway"),
		clients:   NewClientRegistry(log.Sub("clients")),
		handlers:  make(map[string]RequestHandler),
		limiter:   newAuthRateLimiter(),
		configRaw: make(map[string]any),
		startedAt: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.AllowedOrigins),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRPCHandlers()
	return s
}

// checkWebSocketOrigin accepts requests without an Origin header and those
// whose Origin is listed (or "*" is listed).
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || isOriginAllowed(origin, allowed)
	}
}

// Handle registers an RPC method handler.
func (s *Server) Handle(method string, handler RequestHandler) {
	s.handlers[method] = handler
}

// Methods returns the registered RPC method names in sorted order.
func (s *Server) Methods() []string {
	methods := make([]string, 0, len(s.handlers))
	for m := range s.handlers {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.GatewayConfig) string {
	host := "127.0.0.1"
	if cfg.Bind == "lan" {
		host = "0.0.0.0"
	}
	return net.JoinHostPort(host, fmt.Sprint(cfg.Port))
}

// Handler returns the full HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)
	return withMiddleware(mux, s.log, s.cfg.AllowedOrigins)
}

// Start listens and serves until ctx is cancelled or serving fails.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", resolveBindAddr(s.cfg))
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.startedAt = time.Now()
	s.mu.Unlock()

	if s.cfg.Bind == "lan" {
		s.log.Warn().Msg("gateway bound to all interfaces without TLS")
	}
	s.log.Info().
		Str("addr", s.Addr()).
		Str("auth", s.auth.Mode).
		Int("methods", len(s.handlers)).
		Msg("gateway server ready")
	s.hooks.Emit(ctx, hooks.EventGatewayStart, map[string]any{"addr": s.Addr()})

	go s.limiter.run(ctx)
	s.broadcastScheduleRuns()

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		s.log.Info().Msg("shutting down gateway server")
		s.hooks.Emit(context.Background(), hooks.EventGatewayStop, map[string]any{"addr": s.Addr()})
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.clients.CloseAll()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("gateway shutdown")
		}
	}()

	err = httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		<-done
		return nil
	}
	return err
}

// broadcastScheduleRuns forwards schedule_run hook events to every
// connected client as "schedule.run" events.
func (s *Server) broadcastScheduleRuns() {
	if s.hooks == nil {
		return
	}
	s.hooks.On(hooks.EventScheduleRun, "gateway-broadcast", func(_ context.Context, p hooks.Payload) error {
		s.clients.Broadcast("schedule.run", p.Data, s.eventSeq.Add(1))
		return nil
	})
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// handleWebSocket upgrades the request and serves the connection until the
// client disconnects.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.allow(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("too many failed auth attempts")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxPayloadBytes)

	client, err := s.handshake(conn)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("handshake failed")
		s.limiter.recordFailure(r.RemoteAddr)
		conn.Close()
		return
	}

	s.clients.Add(client)
	defer func() {
		s.clients.Remove(client.ConnID)
		client.Close()
	}()
	s.readLoop(r.Context(), client)
}

// handshake sends a challenge, reads the connect request and authorizes it.
func (s *Server) handshake(conn *websocket.Conn) (*Client, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	challenge, err := NewEvent("connect.challenge", map[string]any{
		"nonce": uuid.New().String(),
		"ts":    time.Now().UnixMilli(),
	}, 0)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteJSON(challenge); err != nil {
		return nil, fmt.Errorf("sending challenge: %w", err)
	}

	var frame Frame
	if err := conn.ReadJSON(&frame); err != nil {
		return nil, fmt.Errorf("reading connect: %w", err)
	}
	if frame.Type != FrameTypeRequest || frame.Method != "connect" {
		rejectAndClose(conn, frame.ID, CodeProtocol, "expected connect request")
		return nil, fmt.Errorf("expected connect request, got type=%s method=%s", frame.Type, frame.Method)
	}

	var params ConnectParams
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		rejectAndClose(conn, frame.ID, CodeInvalidParams, "invalid connect params")
		return nil, fmt.Errorf("parsing connect params: %w", err)
	}
	if params.Protocol != 0 && params.Protocol != ProtocolVersion {
		rejectAndClose(conn, frame.ID, CodeProtocol, fmt.Sprintf("unsupported protocol %d", params.Protocol))
		return nil, fmt.Errorf("unsupported protocol %d", params.Protocol)
	}

	auth := Authorize(s.auth, params.Auth)
	if !auth.OK {
		rejectAndClose(conn, frame.ID, CodeUnauthorized, auth.Reason)
		return nil, fmt.Errorf("auth failed: %s", auth.Reason)
	}
	conn.SetReadDeadline(time.Time{})

	client := newClient(conn, params.Client, auth.Method)
	hello := Hello{
		Protocol:   ProtocolVersion,
		Server:     ServerInfo{Version: version.Version, Commit: version.Commit, ConnID: client.ConnID},
		Methods:    s.Methods(),
		MaxPayload: maxPayloadBytes,
	}
	if err := client.Respond(frame.ID, hello); err != nil {
		return nil, fmt.Errorf("sending hello: %w", err)
	}

	s.log.Info().
		Str("connId", client.ConnID).
		Str("clientId", params.Client.ID).
		Str("authMethod", auth.Method).
		Msg("client authenticated")
	return client, nil
}

// readLoop dispatches request frames in order until the connection fails.
func (s *Server) readLoop(ctx context.Context, client *Client) {
	for {
		frame, err := client.readFrame()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Str("connId", client.ConnID).Msg("client closed connection")
			} else {
				s.log.Debug().Err(err).Str("connId", client.ConnID).Msg("read error")
			}
			return
		}
		if frame.Type != FrameTypeRequest {
			continue
		}
		s.dispatch(ctx, client, frame)
	}
}

func (s *Server) dispatch(ctx context.Context, client *Client, frame Frame) {
	handler, ok := s.handlers[frame.Method]
	if !ok {
		client.RespondError(frame.ID, CodeMethodNotFound, "unknown method: "+frame.Method)
		return
	}
	handler(&RequestContext{Ctx: ctx, Client: client, Frame: frame, Server: s})
}

func rejectAndClose(conn *websocket.Conn, reqID, code, message string) {
	conn.WriteJSON(NewErrorResponse(reqID, code, message))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message))
}
