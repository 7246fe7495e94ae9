// Package handler exposes the lookup engine over HTTP. Handlers stay thin:
// decode, delegate, translate errors.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ipwatch/internal/cache"
	"ipwatch/internal/lookup/models"
	"ipwatch/internal/lookup/provider"
	"ipwatch/internal/lookup/service"
	"ipwatch/internal/platform/metrics"
	"ipwatch/internal/platform/middleware"
)

// Service defines the lookup operations the transport needs.
type Service interface {
	Resolve(ctx context.Context, address string) (*models.LookupResult, error)
	GetAggregateCounts(ctx context.Context) (models.AggregateCounts, error)
	InvalidateResolutionCache(address string) int
	ClearRecords(ctx context.Context) error
	CacheStats() cache.Stats
}

// Handler handles the lookup endpoints.
type Handler struct {
	logger     *slog.Logger
	lookup     Service
	metrics    *metrics.Metrics
	adminToken string
	timeout    time.Duration
}

// New creates a lookup Handler.
func New(lookup Service, logger *slog.Logger, m *metrics.Metrics, adminToken string, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Handler{
		logger:     logger,
		lookup:     lookup,
		metrics:    m,
		adminToken: adminToken,
		timeout:    timeout,
	}
}

// Register registers the lookup routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	api := chi.NewRouter()
	api.Use(middleware.Recovery(h.logger))
	api.Use(middleware.RequestID)
	api.Use(middleware.Logger(h.logger))
	api.Use(middleware.Timeout(h.timeout))

	api.With(h.metrics.Middleware("lookup")).Get("/lookup/{address}", h.handleLookup)
	api.With(h.metrics.Middleware("stats")).Get("/stats", h.handleStats)
	api.Delete("/cache", h.handleInvalidateCache)
	api.Delete("/cache/{address}", h.handleInvalidateCache)
	api.With(middleware.RequireAdminToken(h.adminToken, h.logger)).
		Delete("/records", h.handleClearRecords)

	r.Mount("/api", api)
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	address := chi.URLParam(r, "address")

	result, err := h.lookup.Resolve(ctx, address)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type statsResponse struct {
	Records       int64     `json:"record_count"`
	Logs          int64     `json:"log_count"`
	CacheHits     int64     `json:"cache_hits"`
	CacheMisses   int64     `json:"cache_misses"`
	Evictions     int64     `json:"cache_evictions"`
	LiveKeys      int       `json:"cache_live_keys"`
	OldestLiveKey time.Time `json:"cache_oldest_live_key,omitzero"`
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	counts, err := h.lookup.GetAggregateCounts(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "aggregate counts failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal", "failed to read counts"))
		return
	}

	cs := h.lookup.CacheStats()
	writeJSON(w, http.StatusOK, statsResponse{
		Records:       counts.RecordCount,
		Logs:          counts.LogCount,
		CacheHits:     cs.Hits,
		CacheMisses:   cs.Misses,
		Evictions:     cs.Evictions,
		LiveKeys:      cs.LiveKeyCount,
		OldestLiveKey: cs.OldestLiveKey,
	})
}

func (h *Handler) handleInvalidateCache(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	removed := h.lookup.InvalidateResolutionCache(address)
	writeJSON(w, http.StatusOK, map[string]int{"invalidated": removed})
}

func (h *Handler) handleClearRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.lookup.ClearRecords(ctx); err != nil {
		h.logger.ErrorContext(ctx, "clear records failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal", "failed to clear records"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeError translates domain errors onto HTTP statuses: input rejections
// are the caller's fault, provider timeouts map to gateway timeout, any
// other provider failure to bad gateway.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	var rejected *service.RejectedError
	if errors.As(err, &rejected) {
		writeJSON(w, http.StatusBadRequest, errorBody(string(rejected.Reason), rejected.Error()))
		return
	}

	var provErr *provider.Error
	if errors.As(err, &provErr) {
		status := http.StatusBadGateway
		if provErr.Category == provider.ErrorTimeout {
			status = http.StatusGatewayTimeout
		}
		writeJSON(w, status, errorBody(string(provErr.Category), provErr.Message))
		return
	}

	h.logger.ErrorContext(ctx, "lookup failed",
		"request_id", middleware.GetRequestID(ctx),
		"error", err,
	)
	writeJSON(w, http.StatusInternalServerError, errorBody("internal", "lookup failed"))
}

func errorBody(code, description string) map[string]string {
	return map[string]string{"error": code, "error_description": description}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
