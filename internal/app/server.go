package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/brianly1003/flocksync/internal/authn"
	"github.com/brianly1003/flocksync/internal/config"
	"github.com/brianly1003/flocksync/internal/remote"
	"github.com/brianly1003/flocksync/internal/rpc/transport"
	"github.com/brianly1003/flocksync/internal/server"
	"github.com/rs/zerolog/log"
)

// Server serves a stored tree to sync clients.
type Server struct {
	cfg      *config.Config
	store    remote.Backend
	accounts *authn.Service
	srv      *server.Server
}

// NewServer opens the configured store and builds the tree server on it.
// Accounts live in the store when it can hold them, in memory otherwise.
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, err := remote.Open(ctx, cfg.Store.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", remote.Redact(cfg.Store.DSN), err)
	}

	var users authn.UserStore = authn.NewMemoryUsers()
	if u, ok := store.(authn.UserStore); ok {
		users = u
	} else {
		log.Warn().Str("store", remote.Redact(cfg.Store.DSN)).Msg("store cannot hold accounts, keeping them in memory")
	}
	accounts, err := newAccounts(users, cfg.Auth)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	srv := server.New(store, accounts, server.Options{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		RequireAuth:    cfg.Server.AuthRequired,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimit:      cfg.Server.RateLimit,
		TrustProxy:     cfg.Server.TrustProxy,
		Logger:         logger,
	})
	return &Server{cfg: cfg, store: store, accounts: accounts, srv: srv}, nil
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.srv.Addr()
}

// Run serves HTTP and websocket clients until ctx is cancelled, then closes
// the store.
func (s *Server) Run(ctx context.Context) error {
	log.Info().
		Str("addr", s.srv.Addr()).
		Str("store", remote.Redact(s.cfg.Store.DSN)).
		Bool("auth_required", s.cfg.Server.AuthRequired).
		Msg("tree server starting")
	err := s.srv.Run(ctx)
	if closeErr := s.store.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("close store: %w", closeErr)
	}
	return err
}

// ServeStdio serves a single JSON-RPC client over r and w until ctx is
// cancelled or r reaches EOF, then closes the store.
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	log.Info().Str("store", remote.Redact(s.cfg.Store.DSN)).Msg("tree server on stdio")
	err := s.srv.ServeTransport(ctx, transport.NewStdioTransportWithIO(r, w))
	s.srv.Close()
	if closeErr := s.store.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("close store: %w", closeErr)
	}
	return err
}

// Accounts returns the account service.
func (s *Server) Accounts() *authn.Service {
	return s.accounts
}
