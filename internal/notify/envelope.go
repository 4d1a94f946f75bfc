// Package notify delivers committed ledger events to external sinks.
package notify

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/habana-express/market-engine/internal/events"
)

// Envelope is the wire form of one event.
type Envelope struct {
	ID         string          `json:"id"`
	Kind       events.Kind     `json:"kind"`
	Entity     string          `json:"entity"`
	EntityID   int64           `json:"entity_id"`
	ActorID    int64           `json:"actor_id,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Summary    string          `json:"summary"`
	Payload    json.RawMessage `json:"payload"`
}

// Key is the partitioning key for ordered transports.
func (e Envelope) Key() string {
	return fmt.Sprintf("%s:%d", e.Entity, e.EntityID)
}

// NewEnvelope wraps evt. The printer localizes the summary text; nil uses
// Spanish.
func NewEnvelope(evt events.Event, actorID int64, at time.Time, p *message.Printer) (Envelope, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return Envelope{}, fmt.Errorf("notify: encode %s: %w", evt.Kind(), err)
	}
	if p == nil {
		p = message.NewPrinter(language.Spanish)
	}
	entity, id := evt.Subject()
	return Envelope{
		ID:         uuid.NewString(),
		Kind:       evt.Kind(),
		Entity:     entity,
		EntityID:   id,
		ActorID:    actorID,
		OccurredAt: at.UTC(),
		Summary:    Summary(p, evt),
		Payload:    payload,
	}, nil
}

// Summary renders a one line human description of evt. Amounts follow the
// printer locale; identifiers are never grouped.
func Summary(p *message.Printer, evt events.Event) string {
	switch e := evt.(type) {
	case events.StockDepleted:
		return p.Sprintf("Product %s (%s) is out of stock", e.Name, e.SKU)
	case events.SaleConfirmed:
		return p.Sprintf("Sale #%s by seller %s: %.2f CUP at rate %v, estimated profit %.2f USD",
			ref(e.SaleID), ref(e.SellerID), e.TotalLocal.InexactFloat64(), e.ExchangeRate.InexactFloat64(), e.EstimatedProfitUSD.InexactFloat64())
	case events.SaleCancelled:
		return p.Sprintf("Sale #%s cancelled, %d units restored", ref(e.SaleID), e.Units)
	case events.ReturnRecorded:
		if e.SaleCancelled {
			return p.Sprintf("Return on sale #%s: %d units of %s, sale closed", ref(e.SaleID), e.Quantity, e.ProductName)
		}
		return p.Sprintf("Return on sale #%s: %d units of %s", ref(e.SaleID), e.Quantity, e.ProductName)
	case events.CustodyAssigned:
		return p.Sprintf("Seller %s received %d units of product %s (holding %d)", ref(e.SellerID), e.Quantity, ref(e.ProductID), e.Holding)
	case events.CustodyReclaimed:
		return p.Sprintf("Seller %s returned %d units of product %s (holding %d)", ref(e.SellerID), e.Quantity, ref(e.ProductID), e.Holding)
	case events.ProductCreated:
		return p.Sprintf("Product %s (%s) created with %d units", e.Name, e.SKU, e.Stock)
	case events.StockAdjusted:
		return p.Sprintf("Product %s stock set to %d", ref(e.ProductID), e.Stock)
	case events.ShipmentRecorded:
		return p.Sprintf("Shipment #%s recorded: %.2f USD", ref(e.ShipmentID), e.TotalUSD.InexactFloat64())
	case events.PricesRefreshed:
		return p.Sprintf("Prices refreshed for %d products at rate %v", e.Products, e.Rate.InexactFloat64())
	case events.SellerPriceList:
		return p.Sprintf("Price list for seller %s: %d products", ref(e.SellerID), len(e.Items))
	case events.WarrantyExpired:
		return p.Sprintf("Warranty expired for sale #%s (%d products)", ref(e.SaleID), len(e.Products))
	case events.PeriodReportReady:
		return p.Sprintf("%s report: income %.2f USD, net profit %.0f USD", e.Scope, e.Income.InexactFloat64(), e.NetProfit.InexactFloat64())
	}
	return string(evt.Kind())
}

func ref(id int64) string { return strconv.FormatInt(id, 10) }
