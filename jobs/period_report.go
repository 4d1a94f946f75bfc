package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/habana-express/market-engine/internal/events"
	"github.com/habana-express/market-engine/internal/finance"
	jobmetrics "github.com/habana-express/market-engine/internal/jobs"
	"github.com/habana-express/market-engine/internal/shared"
)

// PeriodReportJob publishes the monthly and annual financial reports.
type PeriodReportJob struct {
	Finance    *finance.Service
	Dispatcher events.Dispatcher
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
}

// Handle processes TaskMonthlyReport and TaskAnnualReport tasks.
func (j *PeriodReportJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Finance == nil {
		return errors.New("period report: handler not configured")
	}
	tracker := metricsOr(j.Metrics).Track(t.Type())
	defer func() { _ = tracker.End(err) }()
	logger := jobLogger(j.Logger, t.Type())

	var evt events.PeriodReportReady
	system := shared.SystemIdentity()
	switch t.Type() {
	case TaskMonthlyReport:
		p, err := j.Finance.MonthlyReport(ctx, system)
		if err != nil {
			logger.Error("monthly report", slog.Any("error", err))
			return err
		}
		evt = finance.ReportReady("monthly", p)
	case TaskAnnualReport:
		r, err := j.Finance.AnnualReport(ctx, system)
		if err != nil {
			logger.Error("annual report", slog.Any("error", err))
			return err
		}
		evt = finance.ReportReady("annual", r.Total)
	default:
		return fmt.Errorf("period report: unexpected task %q: %w", t.Type(), asynq.SkipRetry)
	}

	dispatch(ctx, j.Dispatcher, []events.Event{evt})
	metricsOr(j.Metrics).AddEvents(t.Type(), 1)
	logger.Info("report published", slog.String("net_profit", evt.NetProfit.String()))
	return nil
}
