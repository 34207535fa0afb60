package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/larderhq/larder/internal/platform/httpx"
	"github.com/larderhq/larder/internal/shared"
	"github.com/larderhq/larder/internal/units"
)

// Handler exposes movement and stock endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers movement and stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/movements", h.handleAppend)
	r.Get("/movements", h.handleList)
	r.Patch("/movements/{id}", h.handleEdit)
	r.Delete("/movements/{id}", h.handleDelete)
	r.Get("/stock", h.handleStockAll)
	r.Get("/stock/{itemID}", h.handleStockOne)
}

type movementRequest struct {
	ItemID    int64   `json:"itemId" validate:"required,gt=0"`
	Direction string  `json:"direction" validate:"required,oneof=in out"`
	Quantity  float64 `json:"quantity" validate:"required,gt=0"`
	Unit      string  `json:"unit" validate:"required,oneof=base pack"`
	Note      string  `json:"note" validate:"max=500"`
}

type movementEditRequest struct {
	Direction     string  `json:"direction" validate:"required,oneof=in out"`
	Quantity      float64 `json:"quantity" validate:"required,gt=0"`
	Unit          string  `json:"unit" validate:"required,oneof=base pack"`
	Justification string  `json:"justification" validate:"required"`
}

type movementDeleteRequest struct {
	Justification string `json:"justification" validate:"required"`
}

func (h *Handler) handleAppend(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	entry, err := h.service.Append(r.Context(), AppendInput{
		ItemID:    req.ItemID,
		Direction: Direction(req.Direction),
		Quantity:  req.Quantity,
		Unit:      units.Unit(req.Unit),
		Source:    SourceManual,
		Actor:     shared.ActorFromContext(r.Context()),
		Note:      req.Note,
	})
	if err != nil {
		h.respondDomainError(w, err, "append movement failed")
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	itemID, err := strconv.ParseInt(q.Get("item_id"), 10, 64)
	if err != nil || itemID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "item_id is required")
		return
	}
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))

	result, err := h.service.List(r.Context(), itemID, page, pageSize)
	if err != nil {
		h.respondDomainError(w, err, "list movements failed")
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleEdit(w http.ResponseWriter, r *http.Request) {
	entryID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entry id")
		return
	}
	var req movementEditRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	entry, err := h.service.Edit(r.Context(), entryID, EditInput{
		Direction:     Direction(req.Direction),
		Quantity:      req.Quantity,
		Unit:          units.Unit(req.Unit),
		Justification: req.Justification,
		Actor:         shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondDomainError(w, err, "edit movement failed")
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	entryID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entry id")
		return
	}
	var req movementDeleteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}

	err = h.service.Delete(r.Context(), entryID, req.Justification, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondDomainError(w, err, "delete movement failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleStockAll(w http.ResponseWriter, r *http.Request) {
	asOf, ok := parseAsOf(w, r)
	if !ok {
		return
	}
	projections, err := h.service.ProjectStockAll(r.Context(), asOf)
	if err != nil {
		h.respondDomainError(w, err, "stock projection failed")
		return
	}
	httpx.JSON(w, http.StatusOK, projections)
}

func (h *Handler) handleStockOne(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid item id")
		return
	}
	asOf, ok := parseAsOf(w, r)
	if !ok {
		return
	}
	projection, err := h.service.ProjectStock(r.Context(), itemID, asOf)
	if err != nil {
		h.respondDomainError(w, err, "stock projection failed")
		return
	}
	httpx.JSON(w, http.StatusOK, projection)
}

func parseAsOf(w http.ResponseWriter, r *http.Request) (*time.Time, bool) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "as_of must be RFC3339")
		return nil, false
	}
	return &t, true
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, ErrItemNotFound), errors.Is(err, ErrEntryNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidDirection),
		errors.Is(err, units.ErrUnknownUnit), errors.Is(err, units.ErrInvalidRatio), errors.Is(err, units.ErrNotFinite):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrJustificationRequired):
		httpx.Problem(w, http.StatusBadRequest, "Justification Required", err.Error())
	case errors.Is(err, ErrEntryImmutable):
		httpx.Problem(w, http.StatusConflict, "Immutable Entry", err.Error())
	default:
		h.logger.Error(msg, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
