package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/nicktill/kpiengine/pkg/config"
	"github.com/nicktill/kpiengine/pkg/engine"
	"github.com/nicktill/kpiengine/pkg/formula"
	"github.com/nicktill/kpiengine/pkg/httpx"
	"github.com/nicktill/kpiengine/pkg/server/monitor"
)

var startTime = time.Now()

// Invalidator drops cached knowledge-base answers for a KPI
type Invalidator interface {
	Invalidate(name string) error
}

// Handler serves the compile, plan, health and real-time endpoints
type Handler struct {
	engine        *engine.Engine
	hub           *SessionHub
	sourceMonitor *monitor.SourceMonitor
	cacheMonitor  *monitor.CacheMonitor
	invalidator   Invalidator
}

// NewHandler creates a handler around e. The engine reports to the handler's
// knowledge-base monitor.
func NewHandler(e *engine.Engine, hub *SessionHub) *Handler {
	sourceMonitor := &monitor.SourceMonitor{}
	e.SetMonitor(sourceMonitor)

	return &Handler{
		engine:        e,
		hub:           hub,
		sourceMonitor: sourceMonitor,
		cacheMonitor:  monitor.NewCacheMonitor("", nil),
	}
}

// SetCache enables cache statistics in health checks and the invalidation endpoint
func (h *Handler) SetCache(invalidator Invalidator, cacheMonitor *monitor.CacheMonitor) {
	h.invalidator = invalidator
	h.cacheMonitor = cacheMonitor
}

// SourceMonitor returns the knowledge-base monitor
func (h *Handler) SourceMonitor() *monitor.SourceMonitor {
	return h.sourceMonitor
}

// CompileRequest is the body of POST /v1/kpi/compile
type CompileRequest struct {
	Name    string `json:"name"`
	Variant string `json:"variant,omitempty"`
}

// FormulasRequest is the body of POST /v1/formulas/compile
type FormulasRequest struct {
	Formulas *formula.FormulaSet `json:"formulas"`
	Variant  string              `json:"variant,omitempty"`
}

// HandleCompile compiles a knowledge-base KPI
func (h *Handler) HandleCompile(w http.ResponseWriter, r *http.Request) {
	var req CompileRequest
	if err := httpx.DecodeJSON(w, r, config.MaxRequestBodySize, &req); err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}
	if req.Name == "" {
		httpx.RespondErrorString(w, http.StatusBadRequest, "name is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.CompileTimeout)
	defer cancel()

	plan, err := h.engine.Prepare(ctx, req.Name, req.Variant)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	httpx.RespondJSON(w, http.StatusOK, plan)
}

// HandleCompileFormulas compiles a formula set posted directly, bypassing the knowledge base
func (h *Handler) HandleCompileFormulas(w http.ResponseWriter, r *http.Request) {
	var req FormulasRequest
	if err := httpx.DecodeJSON(w, r, config.MaxRequestBodySize, &req); err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}
	if req.Formulas == nil {
		httpx.RespondErrorString(w, http.StatusBadRequest, "formulas is required")
		return
	}
	if req.Formulas.Len() > config.MaxFormulaVariants {
		httpx.RespondErrorString(w, http.StatusBadRequest, "too many formula variants")
		return
	}

	var (
		compiled *formula.CompiledFormula
		err      error
	)
	if req.Variant == "" {
		compiled, err = formula.Compile(req.Formulas)
	} else {
		compiled, err = formula.CompileVariant(req.Formulas, req.Variant)
	}
	if err != nil {
		respondEngineError(w, err)
		return
	}

	httpx.RespondJSON(w, http.StatusOK, compiled)
}

// HandlePlan validates a KPIRequest and returns what the evaluator must fetch
func (h *Handler) HandlePlan(w http.ResponseWriter, r *http.Request) {
	var req engine.KPIRequest
	if err := httpx.DecodeJSON(w, r, config.MaxRequestBodySize, &req); err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.CompileTimeout)
	defer cancel()

	plan, err := h.engine.PlanRequest(ctx, req)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	httpx.RespondJSON(w, http.StatusOK, plan)
}

// HandleInvalidate drops cached answers for a KPI and tells real-time sessions to re-plan
func (h *Handler) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	if h.invalidator == nil {
		httpx.RespondErrorString(w, http.StatusNotImplemented, "formula cache is disabled")
		return
	}
	if err := h.invalidator.Invalidate(name); err != nil {
		httpx.RespondError(w, http.StatusInternalServerError, err)
		return
	}

	if err := h.hub.Broadcast(RealTimeMessage{Type: MessageInvalidated, KPI: name}); err != nil {
		log.Printf("Failed to broadcast invalidation of %q: %v", name, err)
	}

	w.WriteHeader(http.StatusNoContent)
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status   string               `json:"status"`
	Version  string               `json:"version"`
	Uptime   string               `json:"uptime"`
	Source   monitor.SourceStatus `json:"knowledge_base"`
	Cache    *monitor.CacheUsage  `json:"cache,omitempty"`
	Sessions int                  `json:"realtime_sessions"`
}

// HandleHealth returns service health status.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	overallStatus := "healthy"
	statusCode := http.StatusOK

	source := h.sourceMonitor.Status()
	if !source.Healthy {
		overallStatus = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:   overallStatus,
		Version:  "1.0.0",
		Uptime:   time.Since(startTime).Round(time.Second).String(),
		Source:   source,
		Sessions: h.hub.Count(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.CacheStatsTimeout)
	defer cancel()

	usage, err := h.cacheMonitor.Usage(ctx)
	if err != nil {
		log.Printf("Failed to read cache usage: %v", err)
	} else if usage.Enabled {
		response.Cache = &usage
	}

	httpx.RespondJSON(w, statusCode, response)
}

// statusFor maps engine and compiler errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, formula.ErrFormulaNotFound):
		return http.StatusNotFound
	case errors.Is(err, formula.ErrReferenceNotFound), errors.Is(err, formula.ErrMalformedFormula):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, engine.ErrSourceUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondEngineError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("KPI request failed: %v", err)
	}
	httpx.RespondError(w, status, err)
}

// SetupRoutes configures all HTTP routes for the server.
func SetupRoutes(router *mux.Router, h *Handler, port string) {
	// CORS middleware for API access
	router.Use(corsMiddleware(port))

	api := router.PathPrefix("/v1").Subrouter()

	// Compilation
	api.HandleFunc("/kpi/compile", h.HandleCompile).Methods("POST")
	api.HandleFunc("/kpi/plan", h.HandlePlan).Methods("POST")
	api.HandleFunc("/kpi/{name}/cache", h.HandleInvalidate).Methods("DELETE")
	api.HandleFunc("/formulas/compile", h.HandleCompileFormulas).Methods("POST")

	// Health
	api.HandleFunc("/health", h.HandleHealth).Methods("GET")

	// WebSocket for real-time evaluators
	api.HandleFunc("/realtime", h.HandleRealTime).Methods("GET")
}

// corsMiddleware creates CORS middleware that restricts to localhost origins only.
func corsMiddleware(port string) func(http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:" + port: true,
		"http://127.0.0.1:" + port: true,
		"http://localhost:3000":    true,
		"http://127.0.0.1:3000":    true,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); allowedOrigins[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
