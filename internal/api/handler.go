// Package api exposes the service's HTTP surface: livestream lifecycle
// callbacks from the streaming provider, schedule and device management,
// and health.
package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Laixer/Swabbr-Backend-sub003/internal/dispatch"
	"github.com/Laixer/Swabbr-Backend-sub003/internal/domain"
)

type Store interface {
	UpsertSchedule(ctx context.Context, sched domain.TriggerSchedule) error
	UpsertDeviceRegistration(ctx context.Context, reg domain.DeviceRegistration) error
	DeleteDeviceRegistration(ctx context.Context, userID uuid.UUID, platform domain.Platform) error
}

// Lifecycle receives livestream connect and complete callbacks.
type Lifecycle interface {
	HandleConnect(ctx context.Context, livestreamID string) error
	HandleComplete(ctx context.Context, livestreamID string) error
}

// PoolReader exposes the livestream arena for observability.
type PoolReader interface {
	Snapshot() []domain.StreamResource
}

// HealthChecker provides database health status for the /health endpoint.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	store     Store
	lifecycle Lifecycle
	pool      PoolReader
	db        HealthChecker
}

func NewHandler(store Store, lifecycle Lifecycle, pool PoolReader) *Handler {
	return &Handler{store: store, lifecycle: lifecycle, pool: pool}
}

// WithHealthChecker sets the database health checker for verbose /health responses.
func (h *Handler) WithHealthChecker(db HealthChecker) *Handler {
	h.db = db
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/health" && r.Method == http.MethodGet:
		h.health(w, r)

	case path == "/pool" && r.Method == http.MethodGet:
		h.poolSnapshot(w, r)

	case strings.HasPrefix(path, "/livestreams/") && r.Method == http.MethodPost:
		h.livestreamEvent(w, r)

	case strings.HasPrefix(path, "/users/") && strings.HasSuffix(path, "/schedule") && r.Method == http.MethodPut:
		h.putSchedule(w, r)

	case strings.HasPrefix(path, "/users/") && strings.HasSuffix(path, "/devices") && r.Method == http.MethodPut:
		h.putDevice(w, r)

	case strings.HasPrefix(path, "/users/") && strings.Contains(path, "/devices/") && r.Method == http.MethodDelete:
		h.deleteDevice(w, r)

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose || h.db == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		resp.Status = "degraded"
		resp.Components["database"] = "unhealthy: " + err.Error()
	} else {
		resp.Components["database"] = "healthy"
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, resp)
}

// livestreamEvent handles /livestreams/{id}/connected and
// /livestreams/{id}/completed callbacks from the streaming provider.
func (h *Handler) livestreamEvent(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[0] != "livestreams" || parts[1] == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	livestreamID := parts[1]

	var err error
	var status string
	switch parts[2] {
	case "connected":
		err = h.lifecycle.HandleConnect(r.Context(), livestreamID)
		status = "connected"
	case "completed":
		err = h.lifecycle.HandleComplete(r.Context(), livestreamID)
		status = "completed"
	default:
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if err != nil {
		switch {
		case errors.Is(err, dispatch.ErrRequestNotFound):
			writeError(w, http.StatusNotFound, "no request for livestream")
		case errors.Is(err, dispatch.ErrStateTransitionDenied):
			writeError(w, http.StatusConflict, "request not in expected state")
		default:
			log.Error().Err(err).Str("livestream_id", livestreamID).Msg("api: lifecycle event failed")
			writeError(w, http.StatusInternalServerError, "failed to process event")
		}
		return
	}

	writeJSON(w, http.StatusOK, LivestreamEventResponse{LivestreamID: livestreamID, Status: status})
}

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

func (h *Handler) putSchedule(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromPath(w, r.URL.Path, "schedule")
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := validateSchedule(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	timezone := req.Timezone
	if timezone == "" {
		timezone = "UTC"
	}
	timeoutSec := req.RequestTimeout
	if timeoutSec == 0 {
		timeoutSec = defaultRequestTimeoutSeconds
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	sched := domain.TriggerSchedule{
		UserID:         userID,
		TriggerMinute:  req.TriggerMinute,
		Timezone:       timezone,
		CronExpression: req.CronExpression,
		RequestTimeout: time.Duration(timeoutSec) * time.Second,
		Enabled:        enabled,
	}

	if err := h.store.UpsertSchedule(r.Context(), sched); err != nil {
		log.Error().Err(err).Str("user_id", userID.String()).Msg("api: upsert schedule failed")
		writeError(w, http.StatusInternalServerError, "failed to store schedule")
		return
	}

	writeJSON(w, http.StatusOK, ScheduleResponse{
		UserID:         userID.String(),
		TriggerMinute:  sched.TriggerMinute,
		Timezone:       sched.Timezone,
		CronExpression: sched.CronExpression,
		RequestTimeout: timeoutSec,
		Enabled:        sched.Enabled,
	})
}

func (h *Handler) putDevice(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromPath(w, r.URL.Path, "devices")
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req DeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := validateDevice(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reg := domain.DeviceRegistration{
		UserID:   userID,
		Platform: domain.Platform(req.Platform),
		Handle:   req.Handle,
	}
	if err := h.store.UpsertDeviceRegistration(r.Context(), reg); err != nil {
		log.Error().Err(err).Str("user_id", userID.String()).Msg("api: upsert device failed")
		writeError(w, http.StatusInternalServerError, "failed to store device")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// deleteDevice handles /users/{id}/devices/{platform}.
func (h *Handler) deleteDevice(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 4 || parts[0] != "users" || parts[2] != "devices" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	userID, err := uuid.Parse(parts[1])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	platform := domain.Platform(parts[3])
	if err := validatePlatform(string(platform)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.DeleteDeviceRegistration(r.Context(), userID, platform); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "device not found")
			return
		}
		log.Error().Err(err).Str("user_id", userID.String()).Msg("api: delete device failed")
		writeError(w, http.StatusInternalServerError, "failed to delete device")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) poolSnapshot(w http.ResponseWriter, r *http.Request) {
	resources := h.pool.Snapshot()

	resp := PoolResponse{Resources: make([]PoolResourceResponse, len(resources))}
	for i, res := range resources {
		out := PoolResourceResponse{
			LivestreamID: res.LivestreamID,
			State:        string(res.State),
		}
		if res.ReservedFor != uuid.Nil {
			out.ReservedFor = res.ReservedFor.String()
		}
		if !res.ReservedAt.IsZero() {
			out.ReservedAt = formatTime(res.ReservedAt)
		}
		resp.Resources[i] = out
	}

	writeJSON(w, http.StatusOK, resp)
}

// userIDFromPath parses /users/{id}/{leaf} and writes the error response on
// failure.
func userIDFromPath(w http.ResponseWriter, path, leaf string) (uuid.UUID, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[0] != "users" || parts[2] != leaf {
		writeError(w, http.StatusNotFound, "not found")
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(parts[1])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return uuid.Nil, false
	}
	return userID, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("api: json encode error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
