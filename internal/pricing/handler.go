package pricing

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/habana-express/market-engine/internal/events"
	"github.com/habana-express/market-engine/internal/platform/httpx"
	"github.com/habana-express/market-engine/internal/rbac"
	"github.com/habana-express/market-engine/internal/shared"
)

// RateSource supplies the current market rate.
type RateSource interface {
	Fetch(ctx context.Context) (decimal.Decimal, error)
}

// RefreshRequest optionally pins the rate. A zero rate fetches it.
type RefreshRequest struct {
	Rate decimal.Decimal `json:"rate"`
}

// Handler exposes the manual price refresh.
type Handler struct {
	logger     *slog.Logger
	refresher  *Refresher
	rates      RateSource
	validate   *validator.Validate
	dispatcher events.Dispatcher
}

// NewHandler constructs the pricing handler.
func NewHandler(logger *slog.Logger, refresher *Refresher, rates RateSource, validate *validator.Validate, dispatcher events.Dispatcher) *Handler {
	if dispatcher == nil {
		dispatcher = events.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, refresher: refresher, rates: rates, validate: validate, dispatcher: dispatcher}
}

// MountRoutes registers pricing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/pricing/refresh", h.handleRefresh)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	caller := shared.IdentityFromContext(r.Context())
	if err := rbac.Authorize(caller, rbac.OpRefreshPrices); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in RefreshRequest
	if r.ContentLength != 0 {
		if err := httpx.Bind(r, h.validate, &in); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	rate := in.Rate
	if rate.IsZero() {
		if h.rates == nil {
			httpx.RespondError(w, shared.Validation("rate", "required when no rate source is configured"))
			return
		}
		fetched, err := h.rates.Fetch(r.Context())
		if err != nil {
			h.logger.Error("fetch exchange rate", slog.Any("error", err))
			httpx.Problem(w, http.StatusBadGateway, "Exchange rate unavailable", "the exchange rate service did not return a usable rate")
			return
		}
		rate = fetched
	}
	res, err := h.refresher.Refresh(r.Context(), caller, rate)
	if err != nil {
		if httpx.Status(err) >= http.StatusInternalServerError {
			h.logger.Error("refresh prices", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	h.dispatcher.Dispatch(r.Context(), res.Events...)
	httpx.JSON(w, http.StatusOK, res)
}
