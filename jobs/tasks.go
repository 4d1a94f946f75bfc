package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskPriceRefresh recomputes sale prices from the market rate.
	TaskPriceRefresh = "pricing:refresh"
	// TaskWarrantyCheck notifies sales whose warranty ends today.
	TaskWarrantyCheck = "warranty:check"
	// TaskMonthlyReport publishes the month to date report.
	TaskMonthlyReport = "finance:monthly-report"
	// TaskAnnualReport publishes the year to date report.
	TaskAnnualReport = "finance:annual-report"
)

// PriceRefreshPayload configures one refresh run.
type PriceRefreshPayload struct {
	// Rate pins the rate instead of fetching it.
	Rate decimal.Decimal `json:"rate"`
	// Force ignores the cadence.
	Force bool `json:"force"`
}

// NewPriceRefreshTask constructs a price refresh task.
func NewPriceRefreshTask(payload PriceRefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPriceRefresh, data), nil
}

// NewWarrantyCheckTask constructs a warranty check task.
func NewWarrantyCheckTask() *asynq.Task {
	return asynq.NewTask(TaskWarrantyCheck, nil)
}

// NewMonthlyReportTask constructs a monthly report task.
func NewMonthlyReportTask() *asynq.Task {
	return asynq.NewTask(TaskMonthlyReport, nil)
}

// NewAnnualReportTask constructs an annual report task.
func NewAnnualReportTask() *asynq.Task {
	return asynq.NewTask(TaskAnnualReport, nil)
}

func decodePayload(t *asynq.Task, dest any) error {
	if len(t.Payload()) == 0 {
		return nil
	}
	if err := json.Unmarshal(t.Payload(), dest); err != nil {
		return asynq.SkipRetry
	}
	return nil
}
