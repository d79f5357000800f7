// Package server exposes a tree backend to flocksync clients: JSON-RPC over
// WebSocket at /ws and a small read-only HTTP API.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/brianly1003/flocksync/internal/authn"
	"github.com/brianly1003/flocksync/internal/domain"
	"github.com/brianly1003/flocksync/internal/rpc"
	"github.com/brianly1003/flocksync/internal/rpc/handler"
	"github.com/brianly1003/flocksync/internal/rpc/handler/methods"
	"github.com/brianly1003/flocksync/internal/rpc/message"
	"github.com/brianly1003/flocksync/internal/rpc/transport"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// ShutdownTimeout bounds a graceful HTTP shutdown.
const ShutdownTimeout = 5 * time.Second

// Options configures a Server.
type Options struct {
	Host string
	Port int

	// RequireAuth makes every tree call and HTTP read need a signed-in user.
	RequireAuth bool
	// AllowedOrigins limits browser WebSocket origins; "*.example.com"
	// matches subdomains. Empty allows any origin, or only loopback origins
	// when Host is a loopback address.
	AllowedOrigins []string
	// RateLimit is requests per minute per client IP. Zero disables it.
	RateLimit  int
	TrustProxy bool

	Logger *slog.Logger
}

// Server is the tree server.
type Server struct {
	opts     Options
	store    methods.Backend
	accounts *authn.Service
	tree     *methods.TreeService
	rpc      *rpc.Server
	limiter  *RateLimiter
	upgrader websocket.Upgrader
	logger   *slog.Logger
	handler  http.Handler
}

// New wires the RPC methods and HTTP routes around store and accounts.
func New(store methods.Backend, accounts *authn.Service, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		opts:     opts,
		store:    store,
		accounts: accounts,
		tree:     methods.NewTreeService(store, opts.RequireAuth),
		logger:   opts.Logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     newOriginChecker(opts.AllowedOrigins, opts.Host).check,
	}

	registry := handler.NewRegistry()
	registry.Use(handler.Recover)
	registry.RegisterService(s.tree)
	registry.RegisterService(methods.NewAuthService(accounts))
	s.rpc = rpc.NewServer(handler.NewDispatcher(registry))

	if opts.RateLimit > 0 {
		s.limiter = NewRateLimiter(WithMaxRequests(opts.RateLimit), WithWindow(time.Minute))
	}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	limit := func(h http.Handler) http.Handler { return h }
	if s.limiter != nil {
		limit = RateLimitMiddleware(s.limiter, IPKeyExtractor(s.opts.TrustProxy))
	}

	api := router.PathPrefix("/v1").Subrouter()
	api.Use(limit, s.authMiddleware)
	api.HandleFunc("/tree", s.handleTreeGet).Methods(http.MethodGet)
	api.HandleFunc("/tree/{path:.*}", s.handleTreeGet).Methods(http.MethodGet)

	router.Handle("/ws", limit(http.HandlerFunc(s.handleWebSocket)))

	return s.logRequests(router)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.opts.Host, fmt.Sprint(s.opts.Port))
}

// Run listens on Addr and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then closes every connection.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	hs := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- hs.Serve(ln) }()
	s.logger.Info("tree server listening", "addr", ln.Addr().String(), "auth", s.opts.RequireAuth)

	select {
	case err := <-errc:
		s.Close()
		return err
	case <-ctx.Done():
	}

	s.logger.Info("tree server stopping", "connections", s.rpc.ConnCount())
	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ServeTransport serves one connection over t, e.g. stdin/stdout.
func (s *Server) ServeTransport(ctx context.Context, t transport.Transport) error {
	return s.rpc.ServeTransport(ctx, t)
}

// Close drops every RPC connection.
func (s *Server) Close() {
	_ = s.rpc.Stop()
	if s.limiter != nil {
		s.limiter.Close()
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	t := transport.NewWebSocketTransport(conn)
	s.logger.Info("client connected", "conn_id", t.ID(), "remote", r.RemoteAddr)

	// The request context ends with the handler, so the connection gets its own.
	if err := s.rpc.ServeTransport(context.Background(), t); err != nil {
		s.logger.Warn("client connection ended", "conn_id", t.ID(), "error", err)
		return
	}
	s.logger.Info("client disconnected", "conn_id", t.ID())
}

type healthResponse struct {
	Status        string    `json:"status"`
	Connections   int       `json:"connections"`
	Subscriptions int       `json:"subscriptions"`
	Time          time.Time `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		Connections:   s.rpc.ConnCount(),
		Subscriptions: s.tree.Subscriptions(),
		Time:          time.Now().UTC(),
	})
}

func (s *Server) handleTreeGet(w http.ResponseWriter, r *http.Request) {
	path := mux.Vars(r)["path"]
	v, err := s.store.Get(r.Context(), path)
	if err != nil {
		s.logger.Error("tree read failed", "path", path, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, message.ValueResult{Value: v})
}

// authMiddleware checks the bearer token when auth is required.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.opts.RequireAuth {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeError(w, domain.ErrNotAuthenticated)
			return
		}
		user, err := s.accounts.Verify(strings.TrimSpace(token))
		if err != nil {
			writeError(w, err)
			return
		}
		s.logger.Debug("http read authorized", "uid", user.UID, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

type errorBody struct {
	Error string `json:"error"`
	Code  int    `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	rpcErr := message.FromError(err)
	status := http.StatusInternalServerError
	switch rpcErr.Code {
	case message.NotFound:
		status = http.StatusNotFound
	case message.NotAuthenticated, message.InvalidCredentials:
		status = http.StatusUnauthorized
	case message.InvalidParams, message.InvalidPayload:
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errorBody{Error: rpcErr.Message, Code: rpcErr.Code})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack lets the WebSocket upgrade through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"remote", r.RemoteAddr,
			"duration", time.Since(start))
	})
}
