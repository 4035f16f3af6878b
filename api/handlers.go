/*
handlers.go - HTTP API handlers for the remuneration engine

PURPOSE:
  Exposes submission, recompute and reporting over REST. Handles HTTP
  request/response and JSON serialization; all rules live in the
  remuneration package.

ENDPOINTS:
  Submissions:
    POST   /api/facilities/{facilityID}/submissions/{month}
           Replace the period's field values, then recompute

  Remuneration:
    GET    /api/facilities/{facilityID}/remuneration/{month}
           Latest persisted report (cache first when configured)
    POST   /api/facilities/{facilityID}/remuneration/{month}/recompute
           Recompute without new data
    GET    /api/remuneration/pending?limit=N
           Periods with field values but no summary

  Health:
    GET    /healthz

ERROR HANDLING:
  Errors are returned as JSON {error, details} with:
  - 400: Invalid month, empty or fully rejected submission, unknown field
  - 404: Facility not found, period not computed
  - 500: Everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/warp/remuneration-engine/generic"
	"github.com/warp/remuneration-engine/remuneration"
	"go.uber.org/zap"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is what the handlers need from persistence.
type Store interface {
	remuneration.TxStore
	remuneration.ReportStore
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     Store
	Engine    *remuneration.Engine
	Submitter *remuneration.Submitter

	// Reports serves GET reads. Defaults to the store; main swaps in the
	// Redis read-through when a cache is configured.
	Reports remuneration.ReportSource

	Logger *zap.Logger
}

// NewHandler creates a handler reading reports straight from the store.
func NewHandler(store Store, engine *remuneration.Engine, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:     store,
		Engine:    engine,
		Submitter: remuneration.NewSubmitter(store, engine),
		Reports:   remuneration.StoreReports{Store: store},
		Logger:    logger,
	}
}

// =============================================================================
// SUBMISSIONS
// =============================================================================

// SubmitFieldValues stores a facility's data for a month and recomputes.
// POST /api/facilities/{facilityID}/submissions/{month}
func (h *Handler) SubmitFieldValues(w http.ResponseWriter, r *http.Request) {
	facilityID := chi.URLParam(r, "facilityID")
	month := chi.URLParam(r, "month")

	var req SubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := h.Submitter.Submit(r.Context(), req.toSubmission(facilityID, month))
	if err != nil {
		h.fail(w, "Submission failed", err)
		return
	}

	if res.RemunerationError != "" {
		h.Logger.Warn("Field values saved but recompute failed",
			zap.String("facility_id", facilityID),
			zap.String("report_month", month),
			zap.String("error", res.RemunerationError),
		)
	}
	writeJSON(w, http.StatusCreated, toSubmissionResponse(res))
}

// =============================================================================
// REMUNERATION
// =============================================================================

// GetRemuneration returns the latest persisted report.
// GET /api/facilities/{facilityID}/remuneration/{month}
func (h *Handler) GetRemuneration(w http.ResponseWriter, r *http.Request) {
	facilityID := chi.URLParam(r, "facilityID")
	month, err := generic.ParseReportMonth(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid report month", err)
		return
	}

	rep, err := h.Reports.LoadReport(r.Context(), facilityID, month)
	if err != nil {
		h.fail(w, "Failed to load remuneration", err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(rep))
}

// Recompute rescores a period from its stored field values.
// POST /api/facilities/{facilityID}/remuneration/{month}/recompute
func (h *Handler) Recompute(w http.ResponseWriter, r *http.Request) {
	facilityID := chi.URLParam(r, "facilityID")
	month, err := generic.ParseReportMonth(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid report month", err)
		return
	}

	res, err := h.Engine.Recompute(r.Context(), facilityID, month)
	if err != nil {
		h.fail(w, "Recompute failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecomputeDTO(res))
}

// ListPending returns periods awaiting a recompute.
// GET /api/remuneration/pending?limit=N
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	periods, err := h.Store.StalePeriods(r.Context(), limit)
	if err != nil {
		h.fail(w, "Failed to list pending periods", err)
		return
	}

	dtos := make([]PeriodDTO, 0, len(periods))
	for _, p := range periods {
		dtos = append(dtos, PeriodDTO{FacilityID: p.FacilityID, ReportMonth: p.ReportMonth.String()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"periods": dtos})
}

// =============================================================================
// HEALTH
// =============================================================================

type pinger interface {
	Ping(ctx context.Context) error
}

// Health reports whether the database answers.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// fail maps a domain error to its status and logs server-side failures.
func (h *Handler) fail(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error(message, zap.Error(err))
	}
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case generic.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
