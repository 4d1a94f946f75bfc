package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/habana-express/market-engine/internal/platform/db"
)

// Repository persists the ledger in PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	txOpts db.TxOptions
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, txOpts: db.DefaultTxOptions}
}

var _ Store = (*Repository)(nil)

// WithTx executes the callback inside a read committed transaction. Rows
// needed for decisions are read with FOR UPDATE so concurrent operations on
// the same product or custody pair serialize.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
	}
	return db.WithTx(ctx, r.pool, r.txOpts, func(tx pgx.Tx) error {
		repo := &txRepository{tx: tx}
		if err := fn(ctx, repo); err != nil {
			return err
		}
		return repo.advanceVersion(ctx)
	})
}

const productColumns = `p.id, p.sku, p.name, p.purchase_price, p.sale_price, p.stock, p.active, p.warranty, p.created_at, p.updated_at`

const productCategories = `COALESCE((SELECT array_agg(pc.category_id ORDER BY pc.category_id) FROM product_categories pc WHERE pc.product_id = p.id), '{}')`

const saleColumns = `id, seller_id, exchange_rate, total_local, status, buyer_phone, payment_method, sale_date`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner, withCategories bool) (Product, error) {
	var p Product
	dest := []any{&p.ID, &p.SKU, &p.Name, &p.PurchasePrice, &p.SalePrice, &p.Stock, &p.Active, &p.Warranty, &p.CreatedAt, &p.UpdatedAt}
	if withCategories {
		dest = append(dest, &p.CategoryIDs)
	}
	err := row.Scan(dest...)
	return p, err
}

func scanSale(row rowScanner) (Sale, error) {
	var (
		s      Sale
		status string
		method string
	)
	err := row.Scan(&s.ID, &s.SellerID, &s.ExchangeRate, &s.TotalLocal, &status, &s.BuyerPhone, &method, &s.SaleDate)
	s.Status = SaleStatus(status)
	s.PaymentMethod = PaymentMethod(method)
	return s, err
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// GetSale loads a sale and its lines.
func (r *Repository) GetSale(ctx context.Context, id int64) (Sale, error) {
	sale, err := scanSale(r.pool.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id=$1`, id))
	if err != nil {
		return Sale{}, notFound(err)
	}
	lines, err := queryLines(ctx, r.pool, []int64{id})
	if err != nil {
		return Sale{}, err
	}
	sale.Lines = lines[id]
	return sale, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLines(ctx context.Context, q querier, saleIDs []int64) (map[int64][]SaleLine, error) {
	out := make(map[int64][]SaleLine, len(saleIDs))
	if len(saleIDs) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, `SELECT id, sale_id, product_id, quantity FROM sale_lines WHERE sale_id = ANY($1) ORDER BY sale_id, id`, saleIDs)
	if err != nil {
		return nil, fmt.Errorf("query sale lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var l SaleLine
		if err := rows.Scan(&l.ID, &l.SaleID, &l.ProductID, &l.Quantity); err != nil {
			return nil, err
		}
		out[l.SaleID] = append(out[l.SaleID], l)
	}
	return out, rows.Err()
}

func (r *Repository) queryCustody(ctx context.Context, sql string, args ...any) ([]Custody, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query custody: %w", err)
	}
	defer rows.Close()
	var out []Custody
	for rows.Next() {
		var c Custody
		if err := rows.Scan(&c.SellerID, &c.ProductID, &c.Quantity, &c.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListCustody returns the custody rows held by sellerID.
func (r *Repository) ListCustody(ctx context.Context, sellerID int64) ([]Custody, error) {
	return r.queryCustody(ctx, `SELECT seller_id, product_id, quantity, updated_at FROM custody WHERE seller_id=$1 ORDER BY product_id`, sellerID)
}

// ListAllCustody returns every custody row.
func (r *Repository) ListAllCustody(ctx context.Context) ([]Custody, error) {
	return r.queryCustody(ctx, `SELECT seller_id, product_id, quantity, updated_at FROM custody ORDER BY seller_id, product_id`)
}

// GetConfig returns the configuration snapshot.
func (r *Repository) GetConfig(ctx context.Context) (Config, error) {
	return getConfig(r.pool.QueryRow(ctx, configQuery))
}

const configQuery = `SELECT seller_commission_percent, default_exchange_rate, updated_at, ledger_version FROM system_configuration WHERE id = 1`

func getConfig(row rowScanner) (Config, error) {
	var cfg Config
	if err := row.Scan(&cfg.SellerCommissionPercent, &cfg.DefaultExchangeRate, &cfg.UpdatedAt, &cfg.LedgerVersion); err != nil {
		return Config{}, notFound(err)
	}
	return cfg, nil
}

// GetProducts loads the given products keyed by id. Missing ids are absent.
func (r *Repository) GetProducts(ctx context.Context, ids []int64) (map[int64]Product, error) {
	out := make(map[int64]Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+`, `+productCategories+` FROM products p WHERE p.id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanProduct(rows, true)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// ListActiveProducts returns active products ordered by name.
func (r *Repository) ListActiveProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+`, `+productCategories+` FROM products p WHERE p.active ORDER BY p.name, p.id`)
	if err != nil {
		return nil, fmt.Errorf("query active products: %w", err)
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows, true)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SalesInRange returns sales dated within [from, to] with their lines.
func (r *Repository) SalesInRange(ctx context.Context, from, to time.Time) ([]Sale, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+saleColumns+` FROM sales WHERE sale_date BETWEEN $1 AND $2 ORDER BY sale_date, id`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query sales: %w", err)
	}
	var (
		sales []Sale
		ids   []int64
	)
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		sales = append(sales, s)
		ids = append(ids, s.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	lines, err := queryLines(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Lines = lines[sales[i].ID]
	}
	return sales, nil
}

// ShipmentsInRange returns shipments dated within [from, to].
func (r *Repository) ShipmentsInRange(ctx context.Context, from, to time.Time) ([]Shipment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, shipping_cost_usd, merchandise_cost_usd, customs_fee_local, exchange_rate, shipment_date, notes
FROM shipments WHERE shipment_date BETWEEN $1 AND $2 ORDER BY shipment_date, id`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query shipments: %w", err)
	}
	defer rows.Close()
	var out []Shipment
	for rows.Next() {
		var s Shipment
		if err := rows.Scan(&s.ID, &s.ShippingCostUSD, &s.MerchandiseCostUSD, &s.CustomsFeeLocal, &s.ExchangeRate, &s.ShipmentDate, &s.Notes); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ReturnsInRange returns returns dated within [from, to].
func (r *Repository) ReturnsInRange(ctx context.Context, from, to time.Time) ([]Return, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, sale_id, product_id, quantity, loss_usd, reason, restocked, return_date
FROM returns WHERE return_date BETWEEN $1 AND $2 ORDER BY return_date, id`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query returns: %w", err)
	}
	defer rows.Close()
	var out []Return
	for rows.Next() {
		var ret Return
		if err := rows.Scan(&ret.ID, &ret.SaleID, &ret.ProductID, &ret.Quantity, &ret.LossUSD, &ret.Reason, &ret.Restocked, &ret.ReturnDate); err != nil {
			return nil, err
		}
		out = append(out, ret)
	}
	return out, rows.Err()
}

// SellerNames resolves display names from the users directory.
func (r *Repository) SellerNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query sellers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, rows.Err()
}
