// Package ledgertest provides an in-memory ledger.Store for tests. Each
// transaction works on a private copy of the state that replaces the shared
// state only when the callback succeeds, so failed operations leave no trace.
package ledgertest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/habana-express/market-engine/internal/ledger"
)

type custodyKey struct{ seller, product int64 }

type state struct {
	products  map[int64]ledger.Product
	custody   map[custodyKey]ledger.Custody
	sales     map[int64]ledger.Sale
	lines     map[int64]ledger.SaleLine
	returns   map[int64]ledger.Return
	shipments map[int64]ledger.Shipment
	sellers   map[int64]string
	config    ledger.Config
	seq       int64
}

func newState() *state {
	return &state{
		products:  map[int64]ledger.Product{},
		custody:   map[custodyKey]ledger.Custody{},
		sales:     map[int64]ledger.Sale{},
		lines:     map[int64]ledger.SaleLine{},
		returns:   map[int64]ledger.Return{},
		shipments: map[int64]ledger.Shipment{},
		sellers:   map[int64]string{},
		config: ledger.Config{
			SellerCommissionPercent: decimal.NewFromInt(10),
			DefaultExchangeRate:     decimal.NewFromInt(320),
		},
	}
}

func (s *state) clone() *state {
	c := &state{
		products:  make(map[int64]ledger.Product, len(s.products)),
		custody:   make(map[custodyKey]ledger.Custody, len(s.custody)),
		sales:     make(map[int64]ledger.Sale, len(s.sales)),
		lines:     make(map[int64]ledger.SaleLine, len(s.lines)),
		returns:   make(map[int64]ledger.Return, len(s.returns)),
		shipments: make(map[int64]ledger.Shipment, len(s.shipments)),
		sellers:   make(map[int64]string, len(s.sellers)),
		config:    s.config,
		seq:       s.seq,
	}
	for k, v := range s.products {
		v.CategoryIDs = append([]int64(nil), v.CategoryIDs...)
		c.products[k] = v
	}
	for k, v := range s.custody {
		c.custody[k] = v
	}
	for k, v := range s.sales {
		c.sales[k] = v
	}
	for k, v := range s.lines {
		c.lines[k] = v
	}
	for k, v := range s.returns {
		c.returns[k] = v
	}
	for k, v := range s.shipments {
		c.shipments[k] = v
	}
	for k, v := range s.sellers {
		c.sellers[k] = v
	}
	return c
}

func (s *state) next() int64 {
	s.seq++
	return s.seq
}

func (s *state) saleWithLines(id int64) (ledger.Sale, bool) {
	sale, ok := s.sales[id]
	if !ok {
		return ledger.Sale{}, false
	}
	sale.Lines = nil
	for _, l := range s.lines {
		if l.SaleID == id {
			sale.Lines = append(sale.Lines, l)
		}
	}
	sort.Slice(sale.Lines, func(i, j int) bool { return sale.Lines[i].ID < sale.Lines[j].ID })
	return sale, true
}

// Memory is an in-memory ledger.Store.
type Memory struct {
	mu       sync.Mutex
	st       *state
	failures map[string]error
	// Commits counts successful transactions.
	Commits int
}

var _ ledger.Store = (*Memory)(nil)

// New returns an empty store seeded with a 10% commission and rate 320.
func New() *Memory {
	return &Memory{st: newState(), failures: map[string]error{}}
}

// FailOn makes the named Tx method return err until cleared with a nil err.
func (m *Memory) FailOn(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, method)
		return
	}
	m.failures[method] = err
}

// WithTx runs fn against a private copy committed only on success.
func (m *Memory) WithTx(ctx context.Context, fn func(context.Context, ledger.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{st: m.st.clone(), failures: m.failures}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if tx.figures {
		tx.st.config.LedgerVersion++
	}
	m.st = tx.st
	m.Commits++
	return nil
}

// Seeding and inspection helpers.

// PutProduct stores p, assigning an id when zero.
func (m *Memory) PutProduct(p ledger.Product) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		p.ID = m.st.next()
	}
	m.st.products[p.ID] = p
	return p.ID
}

// PutCustody stores c.
func (m *Memory) PutCustody(c ledger.Custody) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.custody[custodyKey{c.SellerID, c.ProductID}] = c
}

// PutSale stores a sale and its lines, assigning ids when zero.
func (m *Memory) PutSale(s ledger.Sale) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == 0 {
		s.ID = m.st.next()
	}
	for _, l := range s.Lines {
		if l.ID == 0 {
			l.ID = m.st.next()
		}
		l.SaleID = s.ID
		m.st.lines[l.ID] = l
	}
	s.Lines = nil
	m.st.sales[s.ID] = s
	return s.ID
}

// PutShipment stores s.
func (m *Memory) PutShipment(s ledger.Shipment) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == 0 {
		s.ID = m.st.next()
	}
	m.st.shipments[s.ID] = s
	return s.ID
}

// PutReturn stores r.
func (m *Memory) PutReturn(r ledger.Return) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == 0 {
		r.ID = m.st.next()
	}
	m.st.returns[r.ID] = r
	return r.ID
}

// PutSeller registers a seller display name.
func (m *Memory) PutSeller(id int64, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.sellers[id] = name
}

// SetConfig replaces the configuration row.
func (m *Memory) SetConfig(cfg ledger.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.config = cfg
}

// Product returns the stored product.
func (m *Memory) Product(id int64) (ledger.Product, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.st.products[id]
	return p, ok
}

// Custody returns the stored custody row.
func (m *Memory) Custody(sellerID, productID int64) (ledger.Custody, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.st.custody[custodyKey{sellerID, productID}]
	return c, ok
}

// Sale returns the stored sale with lines.
func (m *Memory) Sale(id int64) (ledger.Sale, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.saleWithLines(id)
}

// Returns lists stored returns by id.
func (m *Memory) Returns() []ledger.Return {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ledger.Return, 0, len(m.st.returns))
	for _, r := range m.st.returns {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Shipments lists stored shipments by id.
func (m *Memory) Shipments() []ledger.Shipment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ledger.Shipment, 0, len(m.st.shipments))
	for _, s := range m.st.shipments {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reader implementation. FailOn also applies to GetConfig, SellerNames and
// the range reads.

func (m *Memory) readFail(method string) error {
	if err, ok := m.failures[method]; ok {
		return fmt.Errorf("ledgertest %s: %w", method, err)
	}
	return nil
}

func (m *Memory) GetSale(_ context.Context, id int64) (ledger.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sale, ok := m.st.saleWithLines(id)
	if !ok {
		return ledger.Sale{}, ledger.ErrNotFound
	}
	return sale, nil
}

func (m *Memory) ListCustody(_ context.Context, sellerID int64) ([]ledger.Custody, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ledger.Custody
	for _, c := range m.st.custody {
		if c.SellerID == sellerID {
			out = append(out, c)
		}
	}
	sortCustody(out)
	return out, nil
}

func (m *Memory) ListAllCustody(_ context.Context) ([]ledger.Custody, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ledger.Custody, 0, len(m.st.custody))
	for _, c := range m.st.custody {
		out = append(out, c)
	}
	sortCustody(out)
	return out, nil
}

func sortCustody(rows []ledger.Custody) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].SellerID != rows[j].SellerID {
			return rows[i].SellerID < rows[j].SellerID
		}
		return rows[i].ProductID < rows[j].ProductID
	})
}

func (m *Memory) GetConfig(_ context.Context) (ledger.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.readFail("GetConfig"); err != nil {
		return ledger.Config{}, err
	}
	return m.st.config, nil
}

func (m *Memory) GetProducts(_ context.Context, ids []int64) (map[int64]ledger.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]ledger.Product, len(ids))
	for _, id := range ids {
		if p, ok := m.st.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (m *Memory) ListActiveProducts(_ context.Context) ([]ledger.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return activeProducts(m.st), nil
}

func activeProducts(st *state) []ledger.Product {
	var out []ledger.Product
	for _, p := range st.products {
		if p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func within(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}

func (m *Memory) SalesInRange(_ context.Context, from, to time.Time) ([]ledger.Sale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.readFail("SalesInRange"); err != nil {
		return nil, err
	}
	var out []ledger.Sale
	for id, s := range m.st.sales {
		if within(s.SaleDate, from, to) {
			sale, _ := m.st.saleWithLines(id)
			out = append(out, sale)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ShipmentsInRange(_ context.Context, from, to time.Time) ([]ledger.Shipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.readFail("ShipmentsInRange"); err != nil {
		return nil, err
	}
	var out []ledger.Shipment
	for _, s := range m.st.shipments {
		if within(s.ShipmentDate, from, to) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ReturnsInRange(_ context.Context, from, to time.Time) ([]ledger.Return, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.readFail("ReturnsInRange"); err != nil {
		return nil, err
	}
	var out []ledger.Return
	for _, r := range m.st.returns {
		if within(r.ReturnDate, from, to) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SellerNames(_ context.Context, ids []int64) (map[int64]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.readFail("SellerNames"); err != nil {
		return nil, err
	}
	out := make(map[int64]string, len(ids))
	for _, id := range ids {
		if name, ok := m.st.sellers[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

type memTx struct {
	st       *state
	failures map[string]error
	figures  bool
}

var _ ledger.Tx = (*memTx)(nil)

func (t *memTx) fail(method string) error {
	if err, ok := t.failures[method]; ok {
		return fmt.Errorf("ledgertest %s: %w", method, err)
	}
	return nil
}

func (t *memTx) GetProductForUpdate(_ context.Context, id int64) (ledger.Product, error) {
	if err := t.fail("GetProductForUpdate"); err != nil {
		return ledger.Product{}, err
	}
	p, ok := t.st.products[id]
	if !ok {
		return ledger.Product{}, ledger.ErrNotFound
	}
	return p, nil
}

func (t *memTx) ListActiveProductsForUpdate(_ context.Context) ([]ledger.Product, error) {
	if err := t.fail("ListActiveProductsForUpdate"); err != nil {
		return nil, err
	}
	return activeProducts(t.st), nil
}

func (t *memTx) InsertProduct(_ context.Context, p ledger.Product) (int64, error) {
	if err := t.fail("InsertProduct"); err != nil {
		return 0, err
	}
	for _, existing := range t.st.products {
		if existing.SKU == p.SKU {
			return 0, fmt.Errorf("ledgertest: duplicate sku %q", p.SKU)
		}
	}
	p.ID = t.st.next()
	t.st.products[p.ID] = p
	return p.ID, nil
}

func (t *memTx) UpdateProductStock(_ context.Context, id int64, stock int, active bool) error {
	if err := t.fail("UpdateProductStock"); err != nil {
		return err
	}
	p, ok := t.st.products[id]
	if !ok {
		return ledger.ErrNotFound
	}
	if stock < 0 {
		return fmt.Errorf("ledgertest: stock check violated for product %d", id)
	}
	p.Stock = stock
	p.Active = active
	t.st.products[id] = p
	return nil
}

func (t *memTx) UpdateSalePrice(_ context.Context, id int64, price decimal.Decimal) error {
	if err := t.fail("UpdateSalePrice"); err != nil {
		return err
	}
	p, ok := t.st.products[id]
	if !ok {
		return ledger.ErrNotFound
	}
	p.SalePrice = price
	t.st.products[id] = p
	return nil
}

func (t *memTx) GetCustodyForUpdate(_ context.Context, sellerID, productID int64) (ledger.Custody, error) {
	if err := t.fail("GetCustodyForUpdate"); err != nil {
		return ledger.Custody{}, err
	}
	c, ok := t.st.custody[custodyKey{sellerID, productID}]
	if !ok {
		return ledger.Custody{SellerID: sellerID, ProductID: productID}, ledger.ErrNotFound
	}
	return c, nil
}

func (t *memTx) SumCustody(_ context.Context, productID int64) (int, error) {
	if err := t.fail("SumCustody"); err != nil {
		return 0, err
	}
	total := 0
	for k, c := range t.st.custody {
		if k.product == productID {
			total += c.Quantity
		}
	}
	return total, nil
}

func (t *memTx) UpsertCustody(_ context.Context, c ledger.Custody) error {
	if err := t.fail("UpsertCustody"); err != nil {
		return err
	}
	if c.Quantity <= 0 {
		return fmt.Errorf("ledgertest: custody quantity check violated")
	}
	t.st.custody[custodyKey{c.SellerID, c.ProductID}] = c
	return nil
}

func (t *memTx) DeleteCustody(_ context.Context, sellerID, productID int64) error {
	if err := t.fail("DeleteCustody"); err != nil {
		return err
	}
	key := custodyKey{sellerID, productID}
	if _, ok := t.st.custody[key]; !ok {
		return ledger.ErrNotFound
	}
	delete(t.st.custody, key)
	return nil
}

func (t *memTx) InsertSale(_ context.Context, s ledger.Sale) (int64, error) {
	if err := t.fail("InsertSale"); err != nil {
		return 0, err
	}
	t.figures = true
	s.ID = t.st.next()
	s.Lines = nil
	t.st.sales[s.ID] = s
	return s.ID, nil
}

func (t *memTx) InsertSaleLine(_ context.Context, l ledger.SaleLine) (int64, error) {
	if err := t.fail("InsertSaleLine"); err != nil {
		return 0, err
	}
	if _, ok := t.st.sales[l.SaleID]; !ok {
		return 0, fmt.Errorf("ledgertest: sale %d missing for line", l.SaleID)
	}
	l.ID = t.st.next()
	t.st.lines[l.ID] = l
	return l.ID, nil
}

func (t *memTx) GetSaleForUpdate(_ context.Context, id int64) (ledger.Sale, error) {
	if err := t.fail("GetSaleForUpdate"); err != nil {
		return ledger.Sale{}, err
	}
	sale, ok := t.st.saleWithLines(id)
	if !ok {
		return ledger.Sale{}, ledger.ErrNotFound
	}
	return sale, nil
}

func (t *memTx) UpdateSaleLineQuantity(_ context.Context, lineID int64, qty int) error {
	if err := t.fail("UpdateSaleLineQuantity"); err != nil {
		return err
	}
	t.figures = true
	l, ok := t.st.lines[lineID]
	if !ok {
		return ledger.ErrNotFound
	}
	l.Quantity = qty
	t.st.lines[lineID] = l
	return nil
}

func (t *memTx) DeleteSaleLine(_ context.Context, lineID int64) error {
	if err := t.fail("DeleteSaleLine"); err != nil {
		return err
	}
	t.figures = true
	if _, ok := t.st.lines[lineID]; !ok {
		return ledger.ErrNotFound
	}
	delete(t.st.lines, lineID)
	return nil
}

func (t *memTx) UpdateSale(_ context.Context, id int64, status ledger.SaleStatus, total decimal.Decimal) error {
	if err := t.fail("UpdateSale"); err != nil {
		return err
	}
	t.figures = true
	s, ok := t.st.sales[id]
	if !ok {
		return ledger.ErrNotFound
	}
	s.Status = status
	s.TotalLocal = total
	t.st.sales[id] = s
	return nil
}

func (t *memTx) InsertReturn(_ context.Context, r ledger.Return) (int64, error) {
	if err := t.fail("InsertReturn"); err != nil {
		return 0, err
	}
	t.figures = true
	r.ID = t.st.next()
	t.st.returns[r.ID] = r
	return r.ID, nil
}

func (t *memTx) InsertShipment(_ context.Context, s ledger.Shipment) (int64, error) {
	if err := t.fail("InsertShipment"); err != nil {
		return 0, err
	}
	t.figures = true
	s.ID = t.st.next()
	t.st.shipments[s.ID] = s
	return s.ID, nil
}

func (t *memTx) GetConfig(_ context.Context) (ledger.Config, error) {
	if err := t.fail("GetConfig"); err != nil {
		return ledger.Config{}, err
	}
	return t.st.config, nil
}

func (t *memTx) UpdateDefaultExchangeRate(_ context.Context, rate decimal.Decimal) error {
	if err := t.fail("UpdateDefaultExchangeRate"); err != nil {
		return err
	}
	t.st.config.DefaultExchangeRate = rate
	return nil
}
