package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"gitlab.com/proxygrid.net/internal/core/ports/primary"
	"gitlab.com/proxygrid.net/internal/core/ports/secondary"
	"gitlab.com/proxygrid.net/internal/core/services/pool"
	"gitlab.com/proxygrid.net/internal/domain"
)

const (
	defaultFetchLimit = 500
	defaultProxyLimit = 50
)

// Handler serves the coordinator's management API
type Handler struct {
	pool       pool.IJobPoolService
	store      secondary.ProxyStore
	workingSet secondary.WorkingSet
	batchSize  int
	logger     primary.Logger
}

func NewHandler(
	poolService pool.IJobPoolService,
	store secondary.ProxyStore,
	workingSet secondary.WorkingSet,
	batchSize int,
	logger primary.Logger,
) *Handler {
	return &Handler{
		pool:       poolService,
		store:      store,
		workingSet: workingSet,
		batchSize:  batchSize,
		logger:     logger,
	}
}

// RegisterRoutes registers the API routes for Handler. The auth
// middleware is applied to the job-creating route only; read endpoints
// stay open for dashboards and probes.
func (h *Handler) RegisterRoutes(router *mux.Router, mw *MiddlewareProvider) {
	submit := http.Handler(http.HandlerFunc(h.SubmitValidation))
	if mw != nil {
		submit = mw.JWTMiddleware(submit)
	}
	router.Handle("/api/v1/validate", submit).Methods("POST")
	router.HandleFunc("/api/v1/stats", h.GetStats).Methods("GET")
	router.HandleFunc("/api/v1/proxies", h.GetWorkingProxies).Methods("GET")
	router.HandleFunc("/healthz", h.Health).Methods("GET")
}

// SubmitValidation fetches candidates from the store and queues them as
// validation jobs.
func (h *Handler) SubmitValidation(w http.ResponseWriter, r *http.Request) {
	var req SubmitValidationRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.logger.Error("Failed to decode request", "error", err)
			writeError(w, ErrorMessage{Message: "Invalid request body", StatusCode: http.StatusBadRequest})
			return
		}
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultFetchLimit
	}
	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = h.batchSize
	}

	filter := domain.CandidateFilter{
		Status:     req.Status,
		Protocol:   domain.Protocol(req.Protocol),
		Country:    req.Country,
		AgeMinutes: req.AgeMinutes,
	}

	candidates, err := h.store.FetchCandidates(r.Context(), filter, limit)
	if err != nil {
		h.logger.Error("Failed to fetch candidates", "error", err)
		writeError(w, ErrorMessage{Message: "Failed to fetch candidates", StatusCode: http.StatusInternalServerError})
		return
	}
	if len(candidates) == 0 {
		writeSuccess(w, SubmitValidationResponse{})
		return
	}

	jobIDs, err := h.pool.SubmitBatch(candidates, batchSize)
	if err != nil {
		if errors.Is(err, pool.ErrInvalidBatchSize) {
			writeError(w, ErrorMessage{Message: err.Error(), StatusCode: http.StatusBadRequest})
			return
		}
		h.logger.Error("Failed to submit batch", "error", err)
		writeError(w, ErrorMessage{Message: "Failed to queue jobs", StatusCode: http.StatusInternalServerError})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(SubmitValidationResponse{
		JobIDs:      jobIDs,
		JobsCreated: len(jobIDs),
		ProxyCount:  len(candidates),
	})
}

// GetStats serves a snapshot of queue depth, workers and counters.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, h.pool.Status())
}

// GetWorkingProxies serves the fastest working proxies from the cache.
func (h *Handler) GetWorkingProxies(w http.ResponseWriter, r *http.Request) {
	limit := defaultProxyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, ErrorMessage{Message: "Invalid limit", StatusCode: http.StatusBadRequest})
			return
		}
		limit = parsed
	}

	proxies, err := h.workingSet.Fastest(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to read working set", "error", err)
		writeError(w, ErrorMessage{Message: "Failed to read working proxies", StatusCode: http.StatusInternalServerError})
		return
	}
	if proxies == nil {
		proxies = []domain.WorkingProxy{}
	}
	writeSuccess(w, proxies)
}

// Health reports process liveness and store reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	if err := h.store.Ping(r.Context()); err != nil {
		status["status"] = "degraded"
		status["store"] = err.Error()
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}
