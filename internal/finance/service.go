package finance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/habana-express/market-engine/internal/events"
	"github.com/habana-express/market-engine/internal/ledger"
	"github.com/habana-express/market-engine/internal/rbac"
	"github.com/habana-express/market-engine/internal/shared"
)

// DefaultTimezone is the business timezone used for calendar windows.
const DefaultTimezone = "America/Havana"

// Config groups service settings.
type Config struct {
	Location *time.Location
	Logger   *slog.Logger
}

// Service aggregates financial metrics from the ledger.
type Service struct {
	store  ledger.Store
	cache  *Cache
	loc    *time.Location
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the aggregator. cache may be nil.
func NewService(store ledger.Store, cache *Cache, cfg Config) *Service {
	loc := cfg.Location
	if loc == nil {
		if l, err := time.LoadLocation(DefaultTimezone); err == nil {
			loc = l
		} else {
			loc = time.UTC
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cache: cache, loc: loc, logger: logger, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Location returns the business timezone.
func (s *Service) Location() *time.Location { return s.loc }

// ComputePeriodReport summarizes the inclusive window [start, end].
func (s *Service) ComputePeriodReport(ctx context.Context, caller shared.Identity, start, end time.Time) (Period, error) {
	if err := rbac.Authorize(caller, rbac.OpPeriodReport); err != nil {
		return Period{}, err
	}
	if start.IsZero() || end.IsZero() {
		return Period{}, shared.Validation("range", "start and end are required")
	}
	if start.After(end) {
		return Period{}, shared.Validation("range", "start must not be after end")
	}
	cfg, err := s.config(ctx)
	if err != nil {
		return Period{}, err
	}
	return s.period(ctx, Window{Start: start, End: end}, cfg)
}

// MonthlyReport summarizes the current month up to now.
func (s *Service) MonthlyReport(ctx context.Context, caller shared.Identity) (Period, error) {
	if err := rbac.Authorize(caller, rbac.OpMonthlyReport); err != nil {
		return Period{}, err
	}
	cfg, err := s.config(ctx)
	if err != nil {
		return Period{}, err
	}
	return s.period(ctx, MonthToDate(s.now(), s.loc), cfg)
}

// AnnualReport returns the year to date total and one row per calendar month.
// Months that have not started yet are zero rows.
func (s *Service) AnnualReport(ctx context.Context, caller shared.Identity) (AnnualReport, error) {
	if err := rbac.Authorize(caller, rbac.OpAnnualReport); err != nil {
		return AnnualReport{}, err
	}
	cfg, err := s.config(ctx)
	if err != nil {
		return AnnualReport{}, err
	}
	now := s.now()
	ytd := YearToDate(now, s.loc)
	report := AnnualReport{Year: ytd.Start.Year(), Months: make([]MonthBreakdown, 12)}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	g.Go(func() error {
		total, err := s.period(gctx, ytd, cfg)
		report.Total = total
		return err
	})
	for i := range report.Months {
		i := i
		month := time.Month(i + 1)
		w := MonthWindow(time.Date(report.Year, month, 1, 0, 0, 0, 0, s.loc), s.loc)
		if w.Start.After(now) {
			report.Months[i] = MonthBreakdown{Month: month, Period: zeroPeriod(w)}
			continue
		}
		g.Go(func() error {
			p, err := s.period(gctx, w, cfg)
			report.Months[i] = MonthBreakdown{Month: month, Period: p}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return AnnualReport{}, err
	}
	return report, nil
}

// TopSellers ranks sellers by USD income over the period.
func (s *Service) TopSellers(ctx context.Context, caller shared.Identity, period RankingPeriod) ([]TopSeller, error) {
	if err := rbac.Authorize(caller, rbac.OpTopSellers); err != nil {
		return nil, err
	}
	w, ok := RankingWindow(period, s.now(), s.loc)
	if !ok {
		return nil, shared.Validation("period", fmt.Sprintf("unknown period %q", period))
	}
	sales, err := s.store.SalesInRange(ctx, w.Start, w.End)
	if err != nil {
		return nil, shared.Storage("load sales", err)
	}

	bySeller := make(map[int64]*TopSeller)
	for _, sale := range sales {
		if sale.Status != ledger.SaleCompleted || !sale.ExchangeRate.IsPositive() {
			continue
		}
		row, ok := bySeller[sale.SellerID]
		if !ok {
			row = &TopSeller{SellerID: sale.SellerID, TotalUSD: decimal.Zero}
			bySeller[sale.SellerID] = row
		}
		row.TotalUSD = row.TotalUSD.Add(sale.TotalLocal.Div(sale.ExchangeRate))
		row.Units += sale.Units()
		row.Sales++
	}
	if len(bySeller) == 0 {
		return []TopSeller{}, nil
	}

	ids := make([]int64, 0, len(bySeller))
	for id := range bySeller {
		ids = append(ids, id)
	}
	names, err := s.store.SellerNames(ctx, ids)
	if err != nil {
		return nil, shared.Storage("load seller names", err)
	}
	out := make([]TopSeller, 0, len(bySeller))
	for id, row := range bySeller {
		row.Name = names[id]
		if row.Name == "" {
			row.Name = fmt.Sprintf("seller #%d", id)
		}
		row.TotalUSD = row.TotalUSD.Round(2)
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].TotalUSD.Cmp(out[j].TotalUSD); c != 0 {
			return c > 0
		}
		return out[i].SellerID < out[j].SellerID
	})
	return out, nil
}

// RecordShipment stores an investment shipment.
func (s *Service) RecordShipment(ctx context.Context, caller shared.Identity, in ShipmentInput) (ShipmentResult, error) {
	if err := rbac.Authorize(caller, rbac.OpRecordShipment); err != nil {
		return ShipmentResult{}, err
	}
	if err := in.validate(); err != nil {
		return ShipmentResult{}, err
	}
	sh := ledger.Shipment{
		ShippingCostUSD:    in.ShippingCostUSD,
		MerchandiseCostUSD: in.MerchandiseCostUSD,
		CustomsFeeLocal:    in.CustomsFeeLocal,
		ExchangeRate:       in.ExchangeRate,
		ShipmentDate:       in.ShipmentDate,
		Notes:              in.Notes,
	}
	if sh.ShipmentDate.IsZero() {
		sh.ShipmentDate = s.now()
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		id, err := tx.InsertShipment(ctx, sh)
		if err != nil {
			return err
		}
		sh.ID = id
		return nil
	})
	if err != nil {
		return ShipmentResult{}, shared.Storage("record shipment", err)
	}
	return ShipmentResult{
		Shipment: sh,
		Events:   []events.Event{events.ShipmentRecorded{ShipmentID: sh.ID, TotalUSD: ShipmentCostUSD(sh).Round(2)}},
	}, nil
}

// ReportReady converts a period into the notification event.
func ReportReady(scope string, p Period) events.PeriodReportReady {
	return events.PeriodReportReady{
		Scope:      scope,
		Start:      p.Start,
		End:        p.End,
		Income:     p.Income,
		Investment: p.Investment,
		Commission: p.Commission,
		NetProfit:  p.NetProfit,
	}
}

func (s *Service) config(ctx context.Context) (ledger.Config, error) {
	cfg, err := s.store.GetConfig(ctx)
	if err != nil {
		return ledger.Config{}, shared.Storage("load configuration", ledger.Resolve(err, "system_configuration", 1))
	}
	return cfg, nil
}

// period serves closed windows from the cache, keyed by the ledger version in
// cfg. Windows still open at now are always computed.
func (s *Service) period(ctx context.Context, w Window, cfg ledger.Config) (Period, error) {
	if !w.End.Before(s.now()) || s.cache == nil {
		return s.compute(ctx, w, cfg)
	}
	key := s.cache.Key(cfg.LedgerVersion, "finance", "period",
		w.Start.UTC().Format(time.RFC3339Nano), w.End.UTC().Format(time.RFC3339Nano),
		cfg.SellerCommissionPercent.String())
	val, err, _ := collapse(ctx, key, func(ctx context.Context) (any, error) {
		var p Period
		err := s.cache.FetchJSON(ctx, key, &p, func(ctx context.Context) (any, error) {
			return s.compute(ctx, w, cfg)
		})
		return p, err
	})
	if err != nil {
		var typed *shared.Error
		if errors.As(err, &typed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Period{}, err
		}
		s.logger.Warn("finance cache read failed", slog.String("key", key), slog.Any("error", err))
		return s.compute(ctx, w, cfg)
	}
	return val.(Period), nil
}

func (s *Service) compute(ctx context.Context, w Window, cfg ledger.Config) (Period, error) {
	in := PeriodInput{Window: w, Config: cfg}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.store.SalesInRange(gctx, w.Start, w.End)
		in.Sales = rows
		return wrapLoad("load sales", err)
	})
	g.Go(func() error {
		rows, err := s.store.ShipmentsInRange(gctx, w.Start, w.End)
		in.Shipments = rows
		return wrapLoad("load shipments", err)
	})
	g.Go(func() error {
		rows, err := s.store.ReturnsInRange(gctx, w.Start, w.End)
		in.Returns = rows
		return wrapLoad("load returns", err)
	})
	if err := g.Wait(); err != nil {
		return Period{}, err
	}
	return Summarize(in), nil
}

func wrapLoad(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return shared.Storage(op, err)
}

func zeroPeriod(w Window) Period {
	return Period{
		Window:       w,
		Income:       decimal.Zero,
		Investment:   decimal.Zero,
		ReturnLosses: decimal.Zero,
		Commission:   decimal.Zero,
		NetProfit:    decimal.Zero,
		ROI:          decimal.Zero,
	}
}
