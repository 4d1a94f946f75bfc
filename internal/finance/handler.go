package finance

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/habana-express/market-engine/internal/events"
	"github.com/habana-express/market-engine/internal/platform/httpx"
	"github.com/habana-express/market-engine/internal/rbac"
	"github.com/habana-express/market-engine/internal/shared"
)

// Handler exposes report and shipment endpoints.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	validate   *validator.Validate
	dispatcher events.Dispatcher
}

// NewHandler constructs the finance handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate, dispatcher events.Dispatcher) *Handler {
	if dispatcher == nil {
		dispatcher = events.Discard{}
	}
	return &Handler{logger: logger, service: service, validate: validate, dispatcher: dispatcher}
}

// MountRoutes registers finance routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/finance", func(r chi.Router) {
		r.Get("/period", h.handlePeriod)
		r.Get("/monthly", h.handleMonthly)
		r.Get("/annual", h.handleAnnual)
		r.Get("/top-sellers", h.handleTopSellers)
	})
	r.With(rbac.Middleware{Logger: h.logger}.Require(rbac.OpRecordShipment)).Post("/shipments", h.handleRecordShipment)
}

func (h *Handler) handlePeriod(w http.ResponseWriter, r *http.Request) {
	loc := h.service.Location()
	start, err := parseBound(r.URL.Query().Get("start"), "start", loc, false)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	end, err := parseBound(r.URL.Query().Get("end"), "end", loc, true)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.service.ComputePeriodReport(r.Context(), shared.IdentityFromContext(r.Context()), start, end)
	if err != nil {
		h.fail(w, r, "period report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleMonthly(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.MonthlyReport(r.Context(), shared.IdentityFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, "monthly report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleAnnual(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.AnnualReport(r.Context(), shared.IdentityFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, "annual report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleTopSellers(w http.ResponseWriter, r *http.Request) {
	period := RankingPeriod(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("period"))))
	rows, err := h.service.TopSellers(r.Context(), shared.IdentityFromContext(r.Context()), period)
	if err != nil {
		h.fail(w, r, "top sellers", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"period": period, "sellers": rows})
}

func (h *Handler) handleRecordShipment(w http.ResponseWriter, r *http.Request) {
	var in ShipmentInput
	if err := httpx.Bind(r, h.validate, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.RecordShipment(r.Context(), shared.IdentityFromContext(r.Context()), in)
	if err != nil {
		h.fail(w, r, "record shipment", err)
		return
	}
	h.dispatcher.Dispatch(r.Context(), res.Events...)
	httpx.JSON(w, http.StatusCreated, res)
}

// parseBound accepts RFC 3339 timestamps or YYYY-MM-DD dates in the business
// timezone. A date used as an end bound covers the whole day.
func parseBound(raw, field string, loc *time.Location, end bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, shared.Validation(field, "is required")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	day, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		return time.Time{}, shared.Validation(field, "must be YYYY-MM-DD or RFC 3339")
	}
	if end {
		return day.AddDate(0, 0, 1).Add(-time.Microsecond), nil
	}
	return day, nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if httpx.Status(err) >= http.StatusInternalServerError && h.logger != nil {
		h.logger.Error(op, slog.String("request_path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
