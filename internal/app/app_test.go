package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/habana-express/market-engine/internal/ledger/ledgertest"
	"github.com/habana-express/market-engine/internal/observability"
	"github.com/habana-express/market-engine/internal/rbac"
	_ "github.com/habana-express/market-engine/internal/testing/guard"
)

// ===== Config =====

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "America/Havana", cfg.Location().String())
	require.Equal(t, "CU", cfg.PhoneRegion)
	require.Equal(t, 3, cfg.PriceRefreshEveryDays)
	require.Equal(t, 7, cfg.WarrantyDays)
	require.Equal(t, "0 9 * * *", cfg.WarrantyCron)
	require.Equal(t, 8*time.Second, cfg.ExchangeRateTimeout)
	require.Equal(t, language.Spanish, cfg.Language())
	require.False(t, cfg.KafkaEnabled())
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigKafkaBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, ,kafka-2:9092")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	require.True(t, cfg.KafkaEnabled())
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	cases := map[string][2]string{
		"timezone": {"BUSINESS_TIMEZONE", "Mars/Olympus"},
		"cadence":  {"PRICE_REFRESH_EVERY_DAYS", "0"},
		"warranty": {"WARRANTY_DAYS", "-1"},
		"language": {"NOTIFY_LANGUAGE", "not a tag!"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := LoadConfig()
			require.Error(t, err)
		})
	}
}

func TestNilConfigFallbacks(t *testing.T) {
	var cfg *Config
	require.Equal(t, time.UTC, cfg.Location())
	require.Equal(t, language.Spanish, cfg.Language())
	require.False(t, cfg.IsProduction())
}

// ===== Logger =====

func TestLoggerHonoursLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogLevel: "warn", LogFormat: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", slog.String("k", "v"))
	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, `"msg":"shown"`)
	require.Contains(t, out, `"k":"v"`)
}

func TestInTestMode(t *testing.T) {
	require.True(t, InTestMode(), "guard import sets the flag")

	for value, want := range map[string]bool{"true": true, "1": true, "0": false, "off": false, "": false} {
		t.Setenv(TestModeEnv, value)
		require.Equal(t, want, InTestMode(), "value %q", value)
	}
}

// ===== Middleware =====

func TestRateLimitBudgetsPerCaller(t *testing.T) {
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	stack := MiddlewareStack(MiddlewareConfig{Config: &Config{RateLimitPerMinute: 1}})
	for i := len(stack) - 1; i >= 0; i-- {
		h = stack[i](h)
	}

	call := func(callerID string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
		req.RemoteAddr = "10.0.0.9:5000"
		if callerID != "" {
			req.Header.Set(rbac.HeaderCallerID, callerID)
			req.Header.Set(rbac.HeaderCallerRole, "seller")
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusNoContent, call("3"))
	require.Equal(t, http.StatusTooManyRequests, call("3"))
	require.Equal(t, http.StatusNoContent, call("4"), "other caller keeps its own budget")
	require.Equal(t, http.StatusNoContent, call(""), "anonymous traffic is keyed by IP")
	require.Equal(t, http.StatusTooManyRequests, call(""))
}

// ===== Router =====

func newTestServices(t *testing.T) *Services {
	t.Helper()
	cfg, err := LoadConfig()
	require.NoError(t, err)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	svc, err := NewServices(cfg, slog.Default(), Deps{
		Store:      ledgertest.New(),
		Redis:      client,
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestNewServicesRequiresStore(t *testing.T) {
	_, err := NewServices(&Config{}, nil, Deps{})
	require.Error(t, err)
}

func TestHealthzReportsComponents(t *testing.T) {
	router := NewRouter(RouterParams{
		Checks: map[string]Pinger{
			"postgres": PingFunc(func(context.Context) error { return nil }),
			"redis":    PingFunc(func(context.Context) error { return errors.New("down") }),
		},
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.JSONEq(t, `{"status":"degraded","components":{"postgres":"up","redis":"down"}}`, rec.Body.String())
}

func TestRouterMountsAPI(t *testing.T) {
	svc := newTestServices(t)
	inv, sal, fin, pri := svc.Handlers(nil)
	metrics := observability.NewMetrics()
	router := NewRouter(RouterParams{
		InventoryHandler: inv,
		SalesHandler:     sal,
		FinanceHandler:   fin,
		PricingHandler:   pri,
		Metrics:          metrics,
	})

	req := httptest.NewRequest(http.MethodGet, "/api/finance/monthly", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/finance/monthly", nil)
	req.Header.Set(rbac.HeaderCallerID, "1")
	req.Header.Set(rbac.HeaderCallerRole, "admin")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	req = httptest.NewRequest(http.MethodPost, "/api/products", strings.NewReader(`{"name":"Fan","stock":2,"purchase_price":"4"}`))
	req.Header.Set(rbac.HeaderCallerID, "5")
	req.Header.Set(rbac.HeaderCallerRole, "storekeeper")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "market_http_requests_total")
}
