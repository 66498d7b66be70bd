// Package api exposes the sync trigger and connection status over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"connector-sync/internal/lease"
	"connector-sync/internal/models"
	"connector-sync/internal/repository"
	"connector-sync/internal/service/orchestrator"
	"connector-sync/internal/service/resourcematching"
	"connector-sync/pkg/log"
)

const maxBodyBytes = 1 << 20

type Syncer interface {
	Sync(ctx context.Context, organizationID string, source models.SourceName, opts orchestrator.SyncOptions) (*models.SyncResult, error)
}

type ConnectionReader interface {
	GetConnection(ctx context.Context, organizationID string, source models.SourceName) (*models.Connection, error)
}

// HealthCheck reports whether the service's dependencies are usable.
type HealthCheck func() bool

type Handler struct {
	syncer      Syncer
	connections ConnectionReader
	healthy     HealthCheck
	validate    *validator.Validate
	logger      zerolog.Logger
}

func NewHandler(syncer Syncer, connections ConnectionReader, healthy HealthCheck) *Handler {
	if healthy == nil {
		healthy = func() bool { return true }
	}
	return &Handler{
		syncer:      syncer,
		connections: connections,
		healthy:     healthy,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      log.Logger.With().Str("component", "api").Logger(),
	}
}

// Router builds the full route table with middleware applied.
func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(Recovery, Logging)
	router.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	h.Register(api)
	return router
}

func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/sources/{source}/sync", h.handleSync).Methods(http.MethodPost)
	router.HandleFunc("/sources/{source}/connections/{organizationId}", h.handleConnection).Methods(http.MethodGet)
}

type syncRequest struct {
	OrganizationID string   `json:"organizationId" validate:"required"`
	Resources      []string `json:"resources" validate:"omitempty,unique,dive,required"`
	ItemCap        int      `json:"itemCap" validate:"gte=0"`
}

type syncResponse struct {
	Success bool               `json:"success"`
	Results *models.SyncResult `json:"results,omitempty"`
	Error   string             `json:"error,omitempty"`
}

func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	sourceName := models.SourceName(mux.Vars(r)["source"])
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, syncResponse{Error: "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, syncResponse{Error: err.Error()})
		return
	}

	result, err := h.syncer.Sync(r.Context(), req.OrganizationID, sourceName, orchestrator.SyncOptions{
		Resources: req.Resources,
		ItemCap:   req.ItemCap,
	})
	if err != nil {
		status := statusFor(err)
		event := h.logger.Warn()
		if status >= http.StatusInternalServerError {
			event = h.logger.Error()
		}
		event.Err(err).
			Str("organization_id", req.OrganizationID).
			Str("source", sourceName.String()).
			Int("status", status).
			Msg("Sync request failed")
		h.writeJSON(w, status, syncResponse{Error: err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, syncResponse{Success: true, Results: result})
}

type connectionView struct {
	OrganizationID  string                  `json:"organizationId"`
	Source          models.SourceName       `json:"source"`
	Status          models.ConnectionStatus `json:"status"`
	LastSyncAt      *time.Time              `json:"lastSyncAt,omitempty"`
	LastSyncResults *models.SyncResult      `json:"lastSyncResults,omitempty"`
	ErrorMessage    *string                 `json:"errorMessage,omitempty"`
	UpdatedAt       time.Time               `json:"updatedAt"`
}

func (h *Handler) handleConnection(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	conn, err := h.connections.GetConnection(r.Context(), vars["organizationId"], models.SourceName(vars["source"]))
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error().Err(err).Msg("Failed to fetch connection")
		}
		h.writeJSON(w, status, syncResponse{Error: err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, connectionView{
		OrganizationID:  conn.OrganizationID,
		Source:          conn.Source,
		Status:          conn.Status,
		LastSyncAt:      conn.LastSyncAt,
		LastSyncResults: conn.LastSyncResults,
		ErrorMessage:    conn.ErrorMessage,
		UpdatedAt:       conn.UpdatedAt,
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if !h.healthy() {
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// statusFor maps a sync or lookup failure to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrUnknownSource), errors.Is(err, resourcematching.ErrUnknownResource):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrConnectionNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrNotConnected), errors.Is(err, models.ErrSyncInProgress), errors.Is(err, lease.ErrLeaseHeld):
		return http.StatusConflict
	case errors.Is(err, models.ErrAuthExpired):
		return http.StatusUnauthorized
	case errors.Is(err, repository.ErrDatabaseUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error().Err(err).Msg("Failed to write response")
	}
}
