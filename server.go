// server.go
// HTTP side of the relay: upgrade /ws requests, hand each socket to the
// manager, and report occupancy on /healthz.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"support-relay/internal/config"
)

type Server struct {
	cfg            *config.Config
	manager        *Manager
	upgrader       websocket.Upgrader
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	log            *slog.Logger
}

func NewServer(cfg *config.Config, manager *Manager, log *slog.Logger) *Server {
	s := &Server{
		cfg:            cfg,
		manager:        manager,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		log:            log,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}

	for _, origin := range cfg.Server.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}
	return s
}

func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Server.Path, s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		s.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := newClient(conn, s.cfg.Client, s.log)
	client.log.Debug("websocket connected", "remote", r.RemoteAddr)

	go client.write()
	if err := s.manager.Register(client); err != nil {
		client.log.Warn("rejecting connection", "error", err)
		client.Close()
		return
	}
	go client.read(s.manager)
}

type healthResponse struct {
	Status    string `json:"status"`
	Agent     bool   `json:"agent"`
	Customers int    `json:"customers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, err := s.manager.Status(r.Context())
	if err != nil {
		http.Error(w, "relay not running", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	err = json.NewEncoder(w).Encode(healthResponse{
		Status:    "ok",
		Agent:     status.Agent,
		Customers: status.Customers,
	})
	if err != nil {
		s.log.Debug("healthz write failed", "remote", r.RemoteAddr, "error", err)
	}
}

// checkOrigin allows any origin when no allow-list is configured.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.allowedOrigins) == 0 {
		return true
	}
	if s.allowedOrigins[origin] {
		return true
	}
	if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
		return s.allowedHosts[parsed.Host]
	}
	return false
}

// Serve runs the manager loop and the HTTP listener until ctx is cancelled.
func Serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	manager := NewManager(log)
	server := NewServer(cfg, manager, log)
	httpServer := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: server.Routes(),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return manager.Run(ctx)
	})
	g.Go(func() error {
		log.Info("relay listening", "addr", cfg.Server.Listen, "path", cfg.Server.Path)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch cfg.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}
