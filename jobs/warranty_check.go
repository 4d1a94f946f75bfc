package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/habana-express/market-engine/internal/events"
	jobmetrics "github.com/habana-express/market-engine/internal/jobs"
	"github.com/habana-express/market-engine/internal/pricing"
	"github.com/habana-express/market-engine/internal/shared"
)

// WarrantyCheckJob emits WarrantyExpired events once a day.
type WarrantyCheckJob struct {
	Checker    *pricing.WarrantyChecker
	Dispatcher events.Dispatcher
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	clock      func() time.Time
}

// Handle processes TaskWarrantyCheck tasks.
func (j *WarrantyCheckJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.Checker == nil {
		return errors.New("warranty check: handler not configured")
	}
	tracker := metricsOr(j.Metrics).Track(TaskWarrantyCheck)
	defer func() { _ = tracker.End(err) }()

	evts, err := j.Checker.Check(ctx, shared.SystemIdentity(), clockOr(j.clock)())
	if err != nil {
		jobLogger(j.Logger, TaskWarrantyCheck).Error("warranty check", slog.Any("error", err))
		return err
	}
	dispatch(ctx, j.Dispatcher, evts)
	metricsOr(j.Metrics).AddEvents(TaskWarrantyCheck, len(evts))
	jobLogger(j.Logger, TaskWarrantyCheck).Info("warranty check complete", slog.Int("expired", len(evts)))
	return nil
}
