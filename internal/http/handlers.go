package http

import (
	"context"
	"net/http"
	"time"

	"matchfund/internal/cache"
	"matchfund/internal/log"
	"matchfund/internal/middleware/ratelimit"
	"matchfund/internal/middleware/security"
	"matchfund/internal/middleware/trace"
	"matchfund/internal/storage"
)

// fail writes the mapped error response. Server errors are logged with the
// underlying cause, which never reaches the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, kind opKind, op, msg string) {
	resp := errorResponse(err, kind, msg)
	logger := log.FromContext(r.Context())
	if resp.statusCode >= http.StatusInternalServerError {
		log.NewStructuredLogger(logger).LogError(r.Context(), msg, err, log.ErrorTypeInternal, op, nil)
	} else {
		logger.DebugContext(r.Context(), "Request rejected",
			log.FieldOperation, op,
			log.FieldStatusCode, resp.statusCode,
			log.FieldError, err.Error())
	}
	resp.Write(w)
}

type messageResponse struct {
	Message string `json:"message"`
}

// handleAPIHealth is the liveness probe the web client polls.
func (s *Server) handleAPIHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}).Write(w)
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := map[string]string{}

	if s.ready == nil {
		checks["storage"] = "not_configured"
	} else if err := s.ready(ctx); err != nil {
		checks["storage"] = "failed: " + err.Error()
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["storage"] = "ok"
	}

	if s.gate == nil {
		checks["auth"] = "disabled"
	} else {
		checks["auth"] = "ok"
	}

	NewJSONResponse().Status(httpStatus).Body(map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

type metricsResponse struct {
	UptimeSeconds int64                     `json:"uptimeSeconds"`
	Requests      trace.Metrics             `json:"requests"`
	RateLimit     ratelimit.Metrics         `json:"rateLimit"`
	Security      security.DetectionMetrics `json:"security"`
	SummaryCache  cache.Stats               `json:"summaryCache"`
	Exports       *storage.ExportStats      `json:"exports,omitempty"`
}

// handleMetrics reports request, rate limit, security, cache and export
// queue counters.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	resp := metricsResponse{
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Requests:      s.tracer.GetMetrics(),
		RateLimit:     s.limiter.GetMetrics(),
		Security:      s.detector.GetMetrics(),
		SummaryCache:  s.ledger.CacheStats(),
	}
	if s.exports != nil {
		stats, err := s.exports.ExportStats(r.Context())
		if err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Failed to read export stats", log.FieldError, err.Error())
		} else {
			resp.Exports = &stats
		}
	}
	NewJSONResponse().Body(resp).Write(w)
}
