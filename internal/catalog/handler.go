package catalog

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/larderhq/larder/internal/audit"
	"github.com/larderhq/larder/internal/platform/httpx"
	"github.com/larderhq/larder/internal/shared"
)

// AuditPort records threshold changes made outside a reconciliation.
type AuditPort interface {
	Record(ctx context.Context, e audit.Entry) error
}

// Handler exposes the item read surface and the min-stock write.
type Handler struct {
	logger   *slog.Logger
	repo     *Repository
	audit    AuditPort
	validate *validator.Validate
}

// NewHandler constructs the catalog handler.
func NewHandler(logger *slog.Logger, repo *Repository, auditPort AuditPort) *Handler {
	return &Handler{logger: logger, repo: repo, audit: auditPort, validate: validator.New()}
}

// MountRoutes registers item routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/items", h.handleList)
	r.Get("/items/{id}", h.handleGet)
	r.Put("/items/{id}/min-stock", h.handleMinStock)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	items, err := h.repo.ListAll(r.Context())
	if err != nil {
		h.logger.Error("list items failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid item id")
		return
	}
	item, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("get item failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

type minStockRequest struct {
	MinStock float64 `json:"minStock" validate:"gte=0"`
}

type minStockResponse struct {
	ItemID   int64   `json:"itemId"`
	Previous float64 `json:"previous"`
	MinStock float64 `json:"minStock"`
}

func (h *Handler) handleMinStock(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid item id")
		return
	}
	var req minStockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	prior, err := h.repo.UpdateMinStock(r.Context(), id, req.MinStock)
	if err != nil {
		switch {
		case errors.Is(err, ErrItemNotFound):
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		case errors.Is(err, ErrInvalidMinStock):
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		default:
			h.logger.Error("update min stock failed", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		}
		return
	}

	if h.audit != nil {
		actor := shared.ActorFromContext(r.Context())
		if err := h.audit.Record(r.Context(), audit.Entry{
			Action:     audit.ActionMinStockChange,
			EntityType: audit.EntityTypeItem,
			EntityID:   strconv.FormatInt(id, 10),
			Details:    map[string]any{"previous": prior, "new": req.MinStock},
			Actor:      actor,
		}); err != nil {
			h.logger.Error("audit min stock change failed", slog.Any("error", err))
		}
	}

	httpx.JSON(w, http.StatusOK, minStockResponse{ItemID: id, Previous: prior, MinStock: req.MinStock})
}
