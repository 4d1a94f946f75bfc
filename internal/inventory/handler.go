package inventory

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/habana-express/market-engine/internal/events"
	"github.com/habana-express/market-engine/internal/platform/httpx"
	"github.com/habana-express/market-engine/internal/rbac"
	"github.com/habana-express/market-engine/internal/shared"
)

// Handler wires HTTP endpoints for custody and products.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	validate   *validator.Validate
	dispatcher events.Dispatcher
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate, dispatcher events.Dispatcher) *Handler {
	if dispatcher == nil {
		dispatcher = events.Discard{}
	}
	return &Handler{logger: logger, service: service, validate: validate, dispatcher: dispatcher}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	guard := rbac.Middleware{Logger: h.logger}
	r.Route("/custody", func(r chi.Router) {
		r.Get("/", h.handleListCustody)
		r.With(guard.Require(rbac.OpAssignCustody)).Post("/assign", h.handleAssign)
		r.With(guard.Require(rbac.OpReclaimCustody)).Post("/reclaim", h.handleReclaim)
	})
	r.Route("/products", func(r chi.Router) {
		r.With(guard.Require(rbac.OpCreateProduct)).Post("/", h.handleCreateProduct)
		r.With(guard.Require(rbac.OpAdjustStock)).Put("/{id}/stock", h.handleAdjustStock)
	})
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	var in AssignInput
	if err := httpx.Bind(r, h.validate, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.AssignCustody(r.Context(), shared.IdentityFromContext(r.Context()), in)
	if err != nil {
		h.fail(w, r, "assign custody", err)
		return
	}
	h.dispatcher.Dispatch(r.Context(), res.Events...)
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleReclaim(w http.ResponseWriter, r *http.Request) {
	var in ReclaimInput
	if err := httpx.Bind(r, h.validate, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.ReclaimCustody(r.Context(), shared.IdentityFromContext(r.Context()), in)
	if err != nil {
		h.fail(w, r, "reclaim custody", err)
		return
	}
	h.dispatcher.Dispatch(r.Context(), res.Events...)
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleListCustody(w http.ResponseWriter, r *http.Request) {
	caller := shared.IdentityFromContext(r.Context())
	sellerID, ok, err := httpx.QueryInt64(r, "seller_id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if !ok {
		sellerID = caller.ID
	}
	held, err := h.service.ListCustody(r.Context(), caller, sellerID)
	if err != nil {
		h.fail(w, r, "list custody", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"seller_id": sellerID, "products": held})
}

func (h *Handler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var in ProductInput
	if err := httpx.Bind(r, h.validate, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.CreateProduct(r.Context(), shared.IdentityFromContext(r.Context()), in)
	if err != nil {
		h.fail(w, r, "create product", err)
		return
	}
	h.dispatcher.Dispatch(r.Context(), res.Events...)
	httpx.JSON(w, http.StatusCreated, res)
}

type adjustStockRequest struct {
	Stock *int `json:"stock" validate:"required,gte=0"`
}

func (h *Handler) handleAdjustStock(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req adjustStockRequest
	if err := httpx.Bind(r, h.validate, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.AdjustStock(r.Context(), shared.IdentityFromContext(r.Context()), id, *req.Stock)
	if err != nil {
		h.fail(w, r, "adjust stock", err)
		return
	}
	h.dispatcher.Dispatch(r.Context(), res.Events...)
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if httpx.Status(err) >= http.StatusInternalServerError && h.logger != nil {
		h.logger.Error(op, slog.String("request_path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
