package reconcile

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/larderhq/larder/internal/platform/httpx"
)

// Handler exposes the reconciliation upload and report retrieval surfaces.
type Handler struct {
	logger   *slog.Logger
	engine   *Engine
	validate *validator.Validate
}

// NewHandler constructs the reconciliation handler.
func NewHandler(logger *slog.Logger, engine *Engine) *Handler {
	return &Handler{logger: logger, engine: engine, validate: validator.New()}
}

// MountRoutes registers reconciliation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/reconciliations", h.handleUpload)
	r.Get("/reconciliations", h.handleList)
	r.Get("/reconciliations/{id}", h.handleGet)
}

type uploadRequest struct {
	ReconciliationDate string       `json:"reconciliationDate" validate:"required"`
	PerformedBy        string       `json:"performedBy" validate:"required"`
	Notes              string       `json:"notes" validate:"max=1000"`
	FileName           string       `json:"fileName" validate:"max=255"`
	Lines              []UploadLine `json:"lines" validate:"required,min=1"`
}

type uploadResponse struct {
	ReconciliationID string  `json:"reconciliationId"`
	Summary          Summary `json:"summary"`
}

type duplicateResponse struct {
	httpx.ProblemDetail
	OriginalReportID string `json:"originalReportId,omitempty"`
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := time.Parse(time.RFC3339, req.ReconciliationDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "reconciliationDate must be RFC3339")
		return
	}

	report, err := h.engine.Apply(r.Context(), BatchInput{
		ReconciliationDate: date,
		PerformedBy:        req.PerformedBy,
		Notes:              req.Notes,
		FileName:           req.FileName,
		Lines:              req.Lines,
	})
	if err != nil {
		var dup *DuplicateUploadError
		if errors.As(err, &dup) {
			httpx.JSON(w, http.StatusConflict, duplicateResponse{
				ProblemDetail: httpx.ProblemDetail{
					Title:  "Duplicate",
					Status: http.StatusConflict,
					Detail: dup.Error(),
				},
				OriginalReportID: dup.ReportID,
			})
			return
		}
		switch {
		case errors.Is(err, ErrEmptyBatch), errors.Is(err, ErrPerformerRequired), errors.Is(err, ErrDateRequired):
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		default:
			h.logger.Error("reconciliation failed", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		}
		return
	}

	httpx.JSON(w, http.StatusCreated, uploadResponse{
		ReconciliationID: report.ID,
		Summary:          report.Summarize(),
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	report, err := h.engine.GetReport(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrReportNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("fetch report failed", slog.Any("error", err), slog.String("report_id", id))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))

	result, err := h.engine.ListReports(r.Context(), page, pageSize)
	if err != nil {
		h.logger.Error("list reports failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
