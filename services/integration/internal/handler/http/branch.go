package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/raqmix/kippis-possync/pkg/httputil"
	"github.com/raqmix/kippis-possync/pkg/pagination"
	"github.com/raqmix/kippis-possync/services/integration/internal/domain"
)

// BranchService is what the branch endpoints need from the service layer.
type BranchService interface {
	List(ctx context.Context, filter domain.BranchFilter, params pagination.Params) ([]domain.Branch, int, error)
}

// BranchHandler handles HTTP requests for the local branch listing.
type BranchHandler struct {
	service BranchService
	logger  *slog.Logger
}

// NewBranchHandler creates a new branch HTTP handler.
func NewBranchHandler(svc BranchService, logger *slog.Logger) *BranchHandler {
	return &BranchHandler{service: svc, logger: logger}
}

// List handles GET /api/v1/branches
func (h *BranchHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.BranchFilter{Search: q.Get("search")}

	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			writeInvalidParameter(w, "active must be true or false")
			return
		}
		filter.Active = &active
	}

	params := pagination.FromRequest(r)
	branches, total, err := h.service.List(r.Context(), filter, params)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, pagination.NewPage(branches, total, params, r.URL.Path))
}
