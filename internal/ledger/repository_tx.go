package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

type txRepository struct {
	tx pgx.Tx
	// figures is set by writes that change period report inputs.
	figures bool
}

// advanceVersion runs last in the transaction, so the version and the writes
// it covers commit together.
func (r *txRepository) advanceVersion(ctx context.Context) error {
	if !r.figures {
		return nil
	}
	return expectOne(r.tx.Exec(ctx, `UPDATE system_configuration SET ledger_version = ledger_version + 1 WHERE id = 1`))
}

var _ Tx = (*txRepository)(nil)

func (r *txRepository) GetProductForUpdate(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(r.tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products p WHERE p.id=$1 FOR UPDATE`, id), false)
	if err != nil {
		return Product{}, notFound(err)
	}
	return p, nil
}

func (r *txRepository) ListActiveProductsForUpdate(ctx context.Context) ([]Product, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+productColumns+` FROM products p WHERE p.active ORDER BY p.id FOR UPDATE`)
	if err != nil {
		return nil, fmt.Errorf("lock active products: %w", err)
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows, false)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *txRepository) InsertProduct(ctx context.Context, p Product) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO products (sku, name, purchase_price, sale_price, stock, active, warranty, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW()) RETURNING id`,
		p.SKU, p.Name, p.PurchasePrice, p.SalePrice, p.Stock, p.Active, p.Warranty).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert product: %w", err)
	}
	for _, categoryID := range p.CategoryIDs {
		if _, err := r.tx.Exec(ctx, `INSERT INTO product_categories (product_id, category_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, id, categoryID); err != nil {
			return 0, fmt.Errorf("link category %d: %w", categoryID, err)
		}
	}
	return id, nil
}

func (r *txRepository) UpdateProductStock(ctx context.Context, id int64, stock int, active bool) error {
	return expectOne(r.tx.Exec(ctx, `UPDATE products SET stock=$2, active=$3, updated_at=NOW() WHERE id=$1`, id, stock, active))
}

func (r *txRepository) UpdateSalePrice(ctx context.Context, id int64, price decimal.Decimal) error {
	return expectOne(r.tx.Exec(ctx, `UPDATE products SET sale_price=$2, updated_at=NOW() WHERE id=$1`, id, price))
}

func (r *txRepository) GetCustodyForUpdate(ctx context.Context, sellerID, productID int64) (Custody, error) {
	var c Custody
	err := r.tx.QueryRow(ctx, `SELECT seller_id, product_id, quantity, updated_at FROM custody WHERE seller_id=$1 AND product_id=$2 FOR UPDATE`, sellerID, productID).
		Scan(&c.SellerID, &c.ProductID, &c.Quantity, &c.UpdatedAt)
	if err != nil {
		return Custody{SellerID: sellerID, ProductID: productID}, notFound(err)
	}
	return c, nil
}

func (r *txRepository) SumCustody(ctx context.Context, productID int64) (int, error) {
	var total int
	if err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM custody WHERE product_id=$1`, productID).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum custody: %w", err)
	}
	return total, nil
}

func (r *txRepository) UpsertCustody(ctx context.Context, c Custody) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO custody (seller_id, product_id, quantity, updated_at) VALUES ($1, $2, $3, NOW())
ON CONFLICT (seller_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = NOW()`, c.SellerID, c.ProductID, c.Quantity)
	if err != nil {
		return fmt.Errorf("upsert custody: %w", err)
	}
	return nil
}

func (r *txRepository) DeleteCustody(ctx context.Context, sellerID, productID int64) error {
	return expectOne(r.tx.Exec(ctx, `DELETE FROM custody WHERE seller_id=$1 AND product_id=$2`, sellerID, productID))
}

func (r *txRepository) InsertSale(ctx context.Context, s Sale) (int64, error) {
	r.figures = true
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO sales (seller_id, exchange_rate, total_local, status, buyer_phone, payment_method, sale_date)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		s.SellerID, s.ExchangeRate, s.TotalLocal, string(s.Status), s.BuyerPhone, string(s.PaymentMethod), s.SaleDate).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert sale: %w", err)
	}
	return id, nil
}

func (r *txRepository) InsertSaleLine(ctx context.Context, l SaleLine) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO sale_lines (sale_id, product_id, quantity) VALUES ($1, $2, $3) RETURNING id`,
		l.SaleID, l.ProductID, l.Quantity).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert sale line: %w", err)
	}
	return id, nil
}

func (r *txRepository) GetSaleForUpdate(ctx context.Context, id int64) (Sale, error) {
	sale, err := scanSale(r.tx.QueryRow(ctx, `SELECT `+saleColumns+` FROM sales WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return Sale{}, notFound(err)
	}
	rows, err := r.tx.Query(ctx, `SELECT id, sale_id, product_id, quantity FROM sale_lines WHERE sale_id=$1 ORDER BY id FOR UPDATE`, id)
	if err != nil {
		return Sale{}, fmt.Errorf("lock sale lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var l SaleLine
		if err := rows.Scan(&l.ID, &l.SaleID, &l.ProductID, &l.Quantity); err != nil {
			return Sale{}, err
		}
		sale.Lines = append(sale.Lines, l)
	}
	return sale, rows.Err()
}

func (r *txRepository) UpdateSaleLineQuantity(ctx context.Context, lineID int64, qty int) error {
	r.figures = true
	return expectOne(r.tx.Exec(ctx, `UPDATE sale_lines SET quantity=$2 WHERE id=$1`, lineID, qty))
}

func (r *txRepository) DeleteSaleLine(ctx context.Context, lineID int64) error {
	r.figures = true
	return expectOne(r.tx.Exec(ctx, `DELETE FROM sale_lines WHERE id=$1`, lineID))
}

func (r *txRepository) UpdateSale(ctx context.Context, id int64, status SaleStatus, total decimal.Decimal) error {
	r.figures = true
	return expectOne(r.tx.Exec(ctx, `UPDATE sales SET status=$2, total_local=$3 WHERE id=$1`, id, string(status), total))
}

func (r *txRepository) InsertReturn(ctx context.Context, ret Return) (int64, error) {
	r.figures = true
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO returns (sale_id, product_id, quantity, loss_usd, reason, restocked, return_date)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		ret.SaleID, ret.ProductID, ret.Quantity, ret.LossUSD, ret.Reason, ret.Restocked, ret.ReturnDate).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert return: %w", err)
	}
	return id, nil
}

func (r *txRepository) InsertShipment(ctx context.Context, s Shipment) (int64, error) {
	r.figures = true
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO shipments (shipping_cost_usd, merchandise_cost_usd, customs_fee_local, exchange_rate, shipment_date, notes)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		s.ShippingCostUSD, s.MerchandiseCostUSD, s.CustomsFeeLocal, s.ExchangeRate, s.ShipmentDate, s.Notes).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert shipment: %w", err)
	}
	return id, nil
}

func (r *txRepository) GetConfig(ctx context.Context) (Config, error) {
	return getConfig(r.tx.QueryRow(ctx, configQuery))
}

func (r *txRepository) UpdateDefaultExchangeRate(ctx context.Context, rate decimal.Decimal) error {
	return expectOne(r.tx.Exec(ctx, `UPDATE system_configuration SET default_exchange_rate=$1, updated_at=NOW() WHERE id = 1`, rate))
}

func expectOne(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
