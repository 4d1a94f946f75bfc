package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/habana-express/market-engine/internal/events"
	jobmetrics "github.com/habana-express/market-engine/internal/jobs"
	"github.com/habana-express/market-engine/internal/pricing"
	"github.com/habana-express/market-engine/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// RateSource supplies the market rate.
type RateSource interface {
	Fetch(ctx context.Context) (decimal.Decimal, error)
}

// PriceRefreshJob fetches the market rate and reprices active products on
// the configured cadence. A Redis lock keeps concurrent workers from running
// the same day twice.
type PriceRefreshJob struct {
	Refresher  *pricing.Refresher
	Rates      RateSource
	Cadence    pricing.Cadence
	Locker     *redislock.Client
	LockTTL    time.Duration
	Dispatcher events.Dispatcher
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	clock      func() time.Time
}

// Handle processes TaskPriceRefresh tasks.
func (j *PriceRefreshJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Refresher == nil {
		return errors.New("price refresh: handler not configured")
	}
	var payload PriceRefreshPayload
	if err := decodePayload(t, &payload); err != nil {
		return err
	}

	tracker := metricsOr(j.Metrics).Track(TaskPriceRefresh)
	defer func() { _ = tracker.End(err) }()
	logger := jobLogger(j.Logger, TaskPriceRefresh)

	now := clockOr(j.clock)()
	if !payload.Force && !j.Cadence.Due(now) {
		tracker.Skip()
		logger.Debug("price refresh not due")
		return nil
	}

	if j.Locker != nil {
		loc := j.Cadence.Loc
		if loc == nil {
			loc = time.UTC
		}
		ttl := j.LockTTL
		if ttl <= 0 {
			ttl = 10 * time.Minute
		}
		key := shared.PriceRefreshLockKey(now.In(loc).Format("2006-01-02"))
		if payload.Force {
			key = shared.PriceRefreshLockKey("manual")
		}
		lock, lerr := j.Locker.Obtain(ctx, key, ttl, nil)
		if errors.Is(lerr, redislock.ErrNotObtained) {
			tracker.Skip()
			logger.Info("price refresh already running", slog.String("lock", key))
			return nil
		}
		if lerr != nil {
			return lerr
		}
		if !payload.Force {
			// The daily lock expires on its own so a second run the same day skips.
			defer func() {
				if err != nil {
					_ = lock.Release(context.WithoutCancel(ctx))
				}
			}()
		} else {
			defer func() { _ = lock.Release(context.WithoutCancel(ctx)) }()
		}
	}

	rate := payload.Rate
	if !rate.IsPositive() {
		if j.Rates == nil {
			return errors.New("price refresh: no rate source configured")
		}
		fetched, ferr := j.Rates.Fetch(ctx)
		if ferr != nil {
			logger.Error("fetch exchange rate", slog.Any("error", ferr))
			return ferr
		}
		rate = fetched
	}

	res, err := j.Refresher.Refresh(ctx, shared.SystemIdentity(), rate)
	if err != nil {
		logger.Error("refresh prices", slog.Any("error", err))
		return err
	}
	dispatch(ctx, j.Dispatcher, res.Events)
	metricsOr(j.Metrics).AddEvents(TaskPriceRefresh, len(res.Events))
	logger.Info("prices refreshed", slog.String("rate", rate.String()), slog.Int("products", res.Products))
	return nil
}

func metricsOr(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}

func jobLogger(logger *slog.Logger, job string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("job", job))
}

func clockOr(clock func() time.Time) func() time.Time {
	if clock != nil {
		return clock
	}
	return time.Now
}

func dispatch(ctx context.Context, d events.Dispatcher, evts []events.Event) {
	if d == nil || len(evts) == 0 {
		return
	}
	d.Dispatch(shared.ContextWithIdentity(ctx, shared.SystemIdentity()), evts...)
}
