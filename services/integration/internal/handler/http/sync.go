package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/raqmix/kippis-possync/pkg/httputil"
	"github.com/raqmix/kippis-possync/pkg/pagination"
	"github.com/raqmix/kippis-possync/services/integration/internal/domain"
)

const defaultRunTimeout = 15 * time.Minute

// SyncService is what the sync endpoints need from the service layer.
type SyncService interface {
	Sync(ctx context.Context, entityType domain.EntityType) (*domain.SyncRun, error)
	EntityTypes() []domain.EntityType
	GetRun(ctx context.Context, id string) (*domain.SyncRun, error)
	ListRuns(ctx context.Context, filter domain.SyncRunFilter, params pagination.Params) ([]domain.SyncRun, int, error)
}

// SyncHandler handles HTTP requests for sync endpoints.
type SyncHandler struct {
	service    SyncService
	runTimeout time.Duration
	lifetime   context.Context
	runs       *sync.WaitGroup
	logger     *slog.Logger
}

// SyncHandlerOption customizes a SyncHandler.
type SyncHandlerOption func(*SyncHandler)

// WithRunTimeout bounds a sync triggered over HTTP.
func WithRunTimeout(d time.Duration) SyncHandlerOption {
	return func(h *SyncHandler) {
		if d > 0 {
			h.runTimeout = d
		}
	}
}

// WithRunLifetime ties triggered runs to the process instead of the request:
// cancelling lifetime stops them, and each run is counted in runs until it
// returns so shutdown can wait before closing storage.
func WithRunLifetime(lifetime context.Context, runs *sync.WaitGroup) SyncHandlerOption {
	return func(h *SyncHandler) {
		h.lifetime = lifetime
		h.runs = runs
	}
}

// NewSyncHandler creates a new sync HTTP handler.
func NewSyncHandler(svc SyncService, logger *slog.Logger, opts ...SyncHandlerOption) *SyncHandler {
	h := &SyncHandler{
		service:    svc,
		runTimeout: defaultRunTimeout,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SyncResponse is the summary returned for a triggered run.
type SyncResponse struct {
	*domain.SyncRun
	DurationMs int64 `json:"duration_ms"`
}

// Sync handles POST /api/v1/sync/{entityType}
func (h *SyncHandler) Sync(w http.ResponseWriter, r *http.Request) {
	entityType := domain.EntityType(strings.TrimSpace(chi.URLParam(r, "entityType")))

	// A client that disconnects must not abort a run halfway through a page.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.runTimeout)
	defer cancel()
	if h.lifetime != nil {
		stop := context.AfterFunc(h.lifetime, cancel)
		defer stop()
	}
	if h.runs != nil {
		h.runs.Add(1)
		defer h.runs.Done()
	}

	run, err := h.service.Sync(ctx, entityType)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	resp := httputil.Response{Data: SyncResponse{SyncRun: run, DurationMs: run.Duration().Milliseconds()}}
	status := http.StatusOK
	if run.Status == domain.SyncStatusFailed {
		status = http.StatusBadGateway
		resp.Error = &httputil.ErrorResponse{Code: "SYNC_FAILED", Message: "the first page could not be fetched"}
		if run.ErrorCode != nil {
			resp.Error.Code = *run.ErrorCode
		}
		if run.Error != nil {
			resp.Error.Message = *run.Error
		}
	}
	httputil.WriteJSON(w, status, resp)
}

// ListEntityTypes handles GET /api/v1/sync
func (h *SyncHandler) ListEntityTypes(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: h.service.EntityTypes()})
}

// GetRun handles GET /api/v1/sync/runs/{id}
func (h *SyncHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	run, err := h.service.GetRun(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: run})
}

var runStatuses = map[domain.SyncStatus]bool{
	domain.SyncStatusRunning:    true,
	domain.SyncStatusComplete:   true,
	domain.SyncStatusIncomplete: true,
	domain.SyncStatusFailed:     true,
}

// ListRuns handles GET /api/v1/sync/runs
func (h *SyncHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter domain.SyncRunFilter

	if v := strings.TrimSpace(q.Get("entity_type")); v != "" {
		entityType := domain.EntityType(v)
		filter.EntityType = &entityType
	}
	if v := strings.TrimSpace(q.Get("status")); v != "" {
		status := domain.SyncStatus(v)
		if !runStatuses[status] {
			writeInvalidParameter(w, fmt.Sprintf("status must be one of running, complete, incomplete, failed; got %q", v))
			return
		}
		filter.Status = &status
	}

	params := pagination.FromRequest(r)
	runs, total, err := h.service.ListRuns(r.Context(), filter, params)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, pagination.NewPage(runs, total, params, r.URL.Path))
}

func writeInvalidParameter(w http.ResponseWriter, message string) {
	httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
		Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: message},
	})
}
