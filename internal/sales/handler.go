package sales

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/habana-express/market-engine/internal/events"
	"github.com/habana-express/market-engine/internal/platform/httpx"
	"github.com/habana-express/market-engine/internal/rbac"
	"github.com/habana-express/market-engine/internal/shared"
)

// HeaderIdempotencyKey is the client supplied replay guard.
const HeaderIdempotencyKey = "Idempotency-Key"

// IdempotencyPort reserves request keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// Handler exposes sales endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	validate    *validator.Validate
	dispatcher  events.Dispatcher
	idempotency IdempotencyPort
}

// NewHandler constructs the sales handler. idem may be nil.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate, dispatcher events.Dispatcher, idem IdempotencyPort) *Handler {
	if dispatcher == nil {
		dispatcher = events.Discard{}
	}
	return &Handler{logger: logger, service: service, validate: validate, dispatcher: dispatcher, idempotency: idem}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/sales", func(r chi.Router) {
		guard := rbac.Middleware{Logger: h.logger}
		r.With(guard.Require(rbac.OpCreateSale)).Post("/", h.handleCreateSale)
		r.Get("/{id}", h.handleGetSale)
		r.With(guard.Require(rbac.OpCancelSale)).Post("/{id}/cancel", h.handleCancelSale)
		r.With(guard.Require(rbac.OpCreateReturn)).Post("/{id}/returns", h.handleCreateReturn)
	})
}

func (h *Handler) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	caller := shared.IdentityFromContext(r.Context())
	var in CreateSaleInput
	if err := httpx.Bind(r, h.validate, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if in.SellerID == 0 {
		in.SellerID = caller.ID
	}
	release, err := h.reserve(r, "sales.create")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.CreateSale(r.Context(), caller, in)
	if err != nil {
		release()
		h.fail(w, r, "create sale", err)
		return
	}
	h.dispatcher.Dispatch(r.Context(), res.Events...)
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) handleGetSale(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sale, err := h.service.GetSale(r.Context(), shared.IdentityFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, r, "get sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) handleCancelSale(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.CancelSale(r.Context(), shared.IdentityFromContext(r.Context()), id)
	if err != nil {
		h.fail(w, r, "cancel sale", err)
		return
	}
	h.dispatcher.Dispatch(r.Context(), res.Events...)
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) handleCreateReturn(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in ReturnInput
	if err := httpx.Bind(r, h.validate, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in.SaleID = id
	release, err := h.reserve(r, "sales.return")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.CreateReturn(r.Context(), shared.IdentityFromContext(r.Context()), in)
	if err != nil {
		release()
		h.fail(w, r, "create return", err)
		return
	}
	h.dispatcher.Dispatch(r.Context(), res.Events...)
	httpx.JSON(w, http.StatusCreated, res)
}

// reserve claims the request's idempotency key, returning a release func for
// failed processing. Requests without a key are not guarded.
func (h *Handler) reserve(r *http.Request, module string) (func(), error) {
	key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
	if h.idempotency == nil || key == "" {
		return func() {}, nil
	}
	if err := h.idempotency.CheckAndInsert(r.Context(), key, module); err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			return nil, err
		}
		return nil, shared.Storage("reserve idempotency key", err)
	}
	return func() {
		if err := h.idempotency.Delete(context.WithoutCancel(r.Context()), key, module); err != nil && h.logger != nil {
			h.logger.Warn("release idempotency key", slog.String("module", module), slog.Any("error", err))
		}
	}, nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if httpx.Status(err) >= http.StatusInternalServerError && h.logger != nil {
		h.logger.Error(op, slog.String("request_path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
