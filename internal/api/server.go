package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tradecast/internal/broadcaster"
	"tradecast/internal/confirm"
	"tradecast/internal/delivery"
	"tradecast/internal/storage"
)

// Server represents the HTTP API server
// Provides the broadcast/decision endpoints, the operational queries, the
// websocket attach point for push delivery, and Prometheus metrics
type Server struct {
	httpServer  *http.Server
	mux         *http.ServeMux
	repository  storage.Repository
	broadcaster *broadcaster.Broadcaster
	machine     *confirm.Machine
	channel     *delivery.Channel
	port        int
}

// NewServer creates a new API server instance
func NewServer(port int, repository storage.Repository, bc *broadcaster.Broadcaster, machine *confirm.Machine, channel *delivery.Channel) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		mux:         mux,
		repository:  repository,
		broadcaster: bc,
		machine:     machine,
		channel:     channel,
		port:        port,
	}

	s.registerRoutes()

	return s
}

// registerRoutes sets up all HTTP routes
func (s *Server) registerRoutes() {
	// Core endpoints
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", s.handleMetrics())

	// Pipeline endpoints
	s.mux.HandleFunc("/broadcasts", s.handleBroadcasts)
	s.mux.HandleFunc("/confirmations/", s.handleConfirmationRoutes)
	s.mux.HandleFunc("/generators/", s.handleGeneratorRoutes)
	s.mux.HandleFunc("/consumers/", s.handleConsumerRoutes)
	s.mux.HandleFunc("/queue-depth", s.handleQueueDepth)

	// Push delivery attach point
	s.mux.HandleFunc("/ws", s.handleWebSocket)
}

// handleBroadcasts routes POST /broadcasts
func (s *Server) handleBroadcasts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.handleCreateBroadcast(w, r)
}

// handleConfirmationRoutes routes confirmation sub-endpoints
func (s *Server) handleConfirmationRoutes(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/confirmations/")
	parts := strings.Split(path, "/")

	// POST /confirmations/{id}/decision
	if len(parts) == 2 && parts[1] == "decision" && r.Method == http.MethodPost {
		s.handleDecision(w, r, parts[0])
		return
	}

	// GET /confirmations/{id}
	if len(parts) == 1 && r.Method == http.MethodGet {
		s.handleGetConfirmation(w, r, parts[0])
		return
	}

	s.sendError(w, "Endpoint not found", http.StatusNotFound)
}

// handleGeneratorRoutes routes generator sub-endpoints
func (s *Server) handleGeneratorRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/generators/")
	parts := strings.Split(path, "/")

	// GET /generators/{id}/broadcasts
	if len(parts) == 2 && parts[1] == "broadcasts" {
		s.handleBroadcastHistory(w, r, parts[0])
		return
	}

	// GET /generators/{id}/stats
	if len(parts) == 2 && parts[1] == "stats" {
		s.handleBroadcastStats(w, r, parts[0])
		return
	}

	s.sendError(w, "Endpoint not found", http.StatusNotFound)
}

// handleConsumerRoutes routes consumer sub-endpoints
func (s *Server) handleConsumerRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/consumers/")
	parts := strings.Split(path, "/")

	// GET /consumers/{id}/confirmations
	if len(parts) == 2 && parts[1] == "confirmations" {
		s.handleListConfirmations(w, r, parts[0])
		return
	}

	// GET /consumers/{id}/delivery-health
	if len(parts) == 2 && parts[1] == "delivery-health" {
		s.handleDeliveryHealth(w, r, parts[0])
		return
	}

	s.sendError(w, "Endpoint not found", http.StatusNotFound)
}

// Start starts the HTTP server in a goroutine
// Returns immediately after starting the server
func (s *Server) Start() error {
	go func() {
		slog.Info("API server starting",
			"port", s.port,
			"endpoints", []string{"/", "/health", "/metrics", "/broadcasts", "/ws"},
		)

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("API server error", "error", err)
		}
	}()

	// Give the server a moment to start
	time.Sleep(100 * time.Millisecond)

	return nil
}

// Shutdown gracefully shuts down the HTTP server
// Waits for active connections to close or context to timeout
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("API server shutting down...")
	return s.httpServer.Shutdown(ctx)
}
