package app

import (
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/habana-express/market-engine/internal/finance"
	"github.com/habana-express/market-engine/internal/inventory"
	"github.com/habana-express/market-engine/internal/ledger"
	"github.com/habana-express/market-engine/internal/notify"
	"github.com/habana-express/market-engine/internal/pricing"
	"github.com/habana-express/market-engine/internal/sales"
	"github.com/habana-express/market-engine/internal/shared"
)

// Deps are the backends both binaries connect to before building services.
type Deps struct {
	Store ledger.Store
	// Audit receives audit_logs inserts. Nil disables the audit sink.
	Audit      shared.Execer
	Redis      *redis.Client
	Registerer prometheus.Registerer
}

// Services is the wired engine shared by cmd/server and cmd/worker.
type Services struct {
	Inventory    *inventory.Service
	Sales        *sales.Service
	Finance      *finance.Service
	FinanceCache *finance.Cache
	Refresher    *pricing.Refresher
	Warranty     *pricing.WarrantyChecker
	Rates        *pricing.RateClient
	Idempotency  *shared.IdempotencyStore
	Dispatcher   *notify.Dispatcher
	Validate     *validator.Validate

	kafka *notify.KafkaSink
}

// NewServices wires the engine over deps.
func NewServices(cfg *Config, logger *slog.Logger, deps Deps) (*Services, error) {
	if deps.Store == nil {
		return nil, errors.New("app: ledger store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.Location()

	var financeCache *finance.Cache
	if deps.Redis != nil {
		financeCache = finance.NewCache(deps.Redis, cfg.FinanceCacheTTL)
	}

	sinks := []notify.Sink{
		notify.LogSink{Logger: logger},
	}
	if deps.Audit != nil {
		sinks = append(sinks, notify.AuditSink{Recorder: shared.NewAuditLogger(deps.Audit)})
	}
	svc := &Services{}
	if cfg.KafkaEnabled() {
		sink, err := notify.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		svc.kafka = sink
		sinks = append(sinks, sink)
		logger.Info("kafka notifications enabled", slog.String("topic", cfg.KafkaTopic))
	}

	svc.Dispatcher = notify.NewDispatcher(logger, notify.Config{
		Timeout:  cfg.NotifyTimeout,
		Language: cfg.Language(),
		Metrics:  notify.NewMetrics(deps.Registerer),
	}, sinks...)

	svc.Inventory = inventory.NewService(deps.Store)
	svc.Sales = sales.NewService(deps.Store, sales.Config{PhoneRegion: cfg.PhoneRegion})
	svc.FinanceCache = financeCache
	svc.Finance = finance.NewService(deps.Store, financeCache, finance.Config{Location: loc, Logger: logger})
	svc.Refresher = pricing.NewRefresher(deps.Store)
	svc.Warranty = pricing.NewWarrantyChecker(deps.Store, cfg.WarrantyDays, loc)
	svc.Rates = pricing.NewRateClient(cfg.ExchangeRateURL, cfg.ExchangeRateTimeout)
	if deps.Redis != nil {
		svc.Idempotency = shared.NewIdempotencyStore(deps.Redis, cfg.IdempotencyTTL)
	}
	svc.Validate = validator.New()
	return svc, nil
}

// Close drains pending notifications and releases the broker writer.
func (s *Services) Close() error {
	if s == nil {
		return nil
	}
	if s.Dispatcher != nil {
		s.Dispatcher.Wait()
	}
	if s.kafka != nil {
		return s.kafka.Close()
	}
	return nil
}

// Handlers builds the HTTP handlers over s.
func (s *Services) Handlers(logger *slog.Logger) (*inventory.Handler, *sales.Handler, *finance.Handler, *pricing.Handler) {
	var idem sales.IdempotencyPort
	if s.Idempotency != nil {
		idem = s.Idempotency
	}
	return inventory.NewHandler(logger, s.Inventory, s.Validate, s.Dispatcher),
		sales.NewHandler(logger, s.Sales, s.Validate, s.Dispatcher, idem),
		finance.NewHandler(logger, s.Finance, s.Validate, s.Dispatcher),
		pricing.NewHandler(logger, s.Refresher, s.Rates, s.Validate, s.Dispatcher)
}
