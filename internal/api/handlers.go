package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"tradecast/internal/faults"
	"tradecast/internal/models"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// handleIndex returns basic service information
// GET / - Returns service info and available endpoints
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	info := map[string]interface{}{
		"service":     "tradecast",
		"version":     "1.0.0",
		"description": "Copy-trade broadcast, confirmation and delivery pipeline",
		"endpoints": map[string]string{
			"POST /broadcasts":                      "Fan a strategy action out to subscribed consumers",
			"POST /confirmations/{id}/decision":     "Accept or reject a pending confirmation",
			"GET /confirmations/{id}":               "Get one confirmation",
			"GET /consumers/{id}/confirmations":     "List confirmations (supports ?status=, ?limit=, ?offset=)",
			"GET /consumers/{id}/delivery-health":   "Delivery health for a consumer",
			"GET /generators/{id}/broadcasts":       "Broadcast history (supports ?limit=, ?offset=)",
			"GET /generators/{id}/stats":            "Broadcast statistics for a generator",
			"GET /queue-depth":                      "Global delivery queue depth",
			"GET /ws?consumer={id}&since={RFC3339}": "Websocket attach for push delivery",
			"GET /health":                           "Health check endpoint",
			"GET /metrics":                          "Prometheus metrics for monitoring",
		},
	}

	s.sendJSON(w, info, http.StatusOK)
}

// handleHealth returns health status
// GET /health - Health check for monitoring systems
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := "healthy"
	code := http.StatusOK
	if err := s.repository.Ping(ctx); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	s.sendJSON(w, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"service":   "tradecast",
	}, code)
}

// handleMetrics returns Prometheus metrics
// GET /metrics - Prometheus scraping endpoint
func (s *Server) handleMetrics() http.Handler {
	return promhttp.Handler()
}

// handleCreateBroadcast fans an action out to the generator's subscribers
// POST /broadcasts
func (s *Server) handleCreateBroadcast(w http.ResponseWriter, r *http.Request) {
	var req models.BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := s.broadcaster.Broadcast(r.Context(), &req)
	if err != nil {
		s.sendFault(w, err)
		return
	}

	s.sendJSON(w, resp, http.StatusCreated)
}

// handleDecision applies a consumer's accept/reject
// POST /confirmations/{id}/decision
func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		s.sendError(w, "Invalid confirmation id", http.StatusBadRequest)
		return
	}

	var req models.DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.ConfirmationID = id

	confirmation, err := s.machine.Decide(r.Context(), &req)
	if err != nil {
		s.sendFault(w, err)
		return
	}

	s.sendJSON(w, confirmation, http.StatusOK)
}

// handleGetConfirmation returns one confirmation
// GET /confirmations/{id}
func (s *Server) handleGetConfirmation(w http.ResponseWriter, r *http.Request, idStr string) {
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		s.sendError(w, "Invalid confirmation id", http.StatusBadRequest)
		return
	}

	confirmation, err := s.repository.GetConfirmation(r.Context(), id)
	if err != nil {
		s.sendFault(w, err)
		return
	}

	s.sendJSON(w, confirmation, http.StatusOK)
}

// handleListConfirmations lists a consumer's confirmations
// GET /consumers/{id}/confirmations?status=PENDING&limit=50&offset=0
func (s *Server) handleListConfirmations(w http.ResponseWriter, r *http.Request, consumerID string) {
	limit, offset := pagination(r)

	filter := models.ConfirmationFilter{
		ConsumerID: consumerID,
		Status:     models.ConfirmationStatus(r.URL.Query().Get("status")),
		Limit:      limit,
		Offset:     offset,
	}

	confirmations, total, err := s.repository.ListConfirmations(r.Context(), filter)
	if err != nil {
		s.sendFault(w, err)
		return
	}

	s.sendJSON(w, models.ConfirmationListResponse{
		Confirmations: confirmations,
		Total:         total,
		Limit:         limit,
		Offset:        offset,
	}, http.StatusOK)
}

// handleDeliveryHealth reports a consumer's push-delivery state
// GET /consumers/{id}/delivery-health
func (s *Server) handleDeliveryHealth(w http.ResponseWriter, r *http.Request, consumerID string) {
	health, err := s.channel.Health(r.Context(), consumerID)
	if err != nil {
		s.sendFault(w, err)
		return
	}

	s.sendJSON(w, health, http.StatusOK)
}

// handleBroadcastHistory lists a generator's broadcasts
// GET /generators/{id}/broadcasts?limit=50&offset=0
func (s *Server) handleBroadcastHistory(w http.ResponseWriter, r *http.Request, generatorID string) {
	limit, offset := pagination(r)

	history, err := s.broadcaster.History(r.Context(), generatorID, limit, offset)
	if err != nil {
		s.sendFault(w, err)
		return
	}

	s.sendJSON(w, history, http.StatusOK)
}

// handleBroadcastStats aggregates a generator's outcomes
// GET /generators/{id}/stats
func (s *Server) handleBroadcastStats(w http.ResponseWriter, r *http.Request, generatorID string) {
	stats, err := s.broadcaster.Stats(r.Context(), generatorID)
	if err != nil {
		s.sendFault(w, err)
		return
	}

	s.sendJSON(w, stats, http.StatusOK)
}

// handleQueueDepth reports the global delivery backlog
// GET /queue-depth
func (s *Server) handleQueueDepth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	queued, failed, err := s.repository.QueueDepth(r.Context())
	if err != nil {
		s.sendFault(w, err)
		return
	}

	s.sendJSON(w, map[string]int{
		"queued": queued,
		"failed": failed,
	}, http.StatusOK)
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

func (s *Server) sendJSON(w http.ResponseWriter, payload interface{}, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, ErrorResponse{Error: http.StatusText(code), Message: message, Code: code}, code)
}

// sendFault maps the error taxonomy onto HTTP statuses, keeping the stable
// error kind visible to callers.
func (s *Server) sendFault(w http.ResponseWriter, err error) {
	kind := faults.KindOf(err)

	code := http.StatusInternalServerError
	switch kind {
	case faults.NotFound:
		code = http.StatusNotFound
	case faults.Unauthorized:
		code = http.StatusForbidden
	case faults.InvalidState:
		code = http.StatusConflict
	case faults.Expired:
		code = http.StatusGone
	case faults.ValidationFailed:
		code = http.StatusBadRequest
	case faults.ExecutionFailed, faults.ProviderUnavailable:
		code = http.StatusBadGateway
	}

	label := string(kind)
	if label == "" {
		label = http.StatusText(code)
	}

	s.sendJSON(w, ErrorResponse{Error: label, Message: err.Error(), Code: code}, code)
}

func pagination(r *http.Request) (limit, offset int) {
	limit = 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	offset = 0
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	return limit, offset
}
