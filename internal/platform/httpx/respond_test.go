package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/habana-express/market-engine/internal/shared"
)

func TestRespondErrorMapsKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{shared.Unauthorized("missing"), http.StatusUnauthorized},
		{shared.Forbidden("sale.cancel", "seller"), http.StatusForbidden},
		{shared.NotFound("sale", 9), http.StatusNotFound},
		{shared.InsufficientStock(3, "Phone", 1, 2), http.StatusConflict},
		{shared.InsufficientCustody(1, 3, 0, 2), http.StatusConflict},
		{shared.AlreadyCancelled(4), http.StatusConflict},
		{shared.InvalidReturnQuantity(4, 3, 1, 2), http.StatusUnprocessableEntity},
		{shared.Validation("quantity", "must be positive"), http.StatusBadRequest},
		{shared.Storage("create sale", errors.New("conn reset")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, fmt.Errorf("wrapped: %w", tc.err))
		require.Equal(t, tc.status, rr.Code, tc.err.Error())
	}
}

func TestRespondErrorCarriesEntity(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, shared.InsufficientStock(42, "Cable", 1, 5))

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "product", body.Entity)
	require.Equal(t, int64(42), body.EntityID)
	require.Equal(t, "urn:market:problem:insufficient-stock", body.Type)
	require.Contains(t, body.Detail, "Cable")
}

func TestRespondErrorHidesStorageDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	RespondError(rr, shared.Storage("assign", errors.New("password=secret")))
	require.NotContains(t, rr.Body.String(), "secret")
}

func TestBindValidates(t *testing.T) {
	type payload struct {
		Quantity int `json:"quantity" validate:"gt=0"`
	}
	v := validator.New()

	var ok payload
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":2}`))
	require.NoError(t, Bind(req, v, &ok))
	require.Equal(t, 2, ok.Quantity)

	var bad payload
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":0}`))
	require.ErrorIs(t, Bind(req, v, &bad), shared.ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"qty":1}`))
	require.ErrorIs(t, Bind(req, v, &bad), shared.ErrValidation)
}
