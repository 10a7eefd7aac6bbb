package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shabazpatel/acp-infra/checkout-service/domain"
)

const searchDocument = `to_tsvector('english', name || ' ' || description || ' ' || category)`

// PostgresCatalog reads the products table of the seller database. Long
// queries use full-text search ranked by ts_rank.
type PostgresCatalog struct {
	db *sql.DB
}

func NewPostgresCatalog(db *sql.DB) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

func (c *PostgresCatalog) Get(ctx context.Context, id string) (*domain.Product, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanPostgresProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query product: %w", err)
	}
	return p, nil
}

func (c *PostgresCatalog) Find(ctx context.Context, q Query) (*domain.ProductSearchResult, error) {
	q = q.Normalize()

	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	order := "name ASC, id ASC"
	if q.fullText() {
		p := arg(q.Text)
		conds = append(conds, searchDocument+` @@ plainto_tsquery('english', `+p+`)`)
		order = `ts_rank(` + searchDocument + `, plainto_tsquery('english', ` + p + `)) DESC, id ASC`
	} else {
		p := arg("%" + q.Text + "%")
		conds = append(conds, `(name ILIKE `+p+` OR category ILIKE `+p+`)`)
	}
	if q.Category != "" {
		conds = append(conds, `category ILIKE `+arg("%"+q.Category+"%"))
	}
	if q.PriceMin != nil {
		conds = append(conds, `price_cents >= `+arg(*q.PriceMin))
	}
	if q.PriceMax != nil {
		conds = append(conds, `price_cents <= `+arg(*q.PriceMax))
	}
	where := strings.Join(conds, " AND ")

	var total int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE `+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}

	limit := arg(q.Limit)
	rows, err := c.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE `+where+` ORDER BY `+order+` LIMIT `+limit, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	res := &domain.ProductSearchResult{Products: []domain.Product{}, TotalCount: total, Query: q.Text}
	for rows.Next() {
		p, err := scanPostgresProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		res.Products = append(res.Products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return res, nil
}

func (c *PostgresCatalog) Upsert(ctx context.Context, products ...domain.Product) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const query = `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			price_cents = EXCLUDED.price_cents,
			currency = EXCLUDED.currency,
			image_url = EXCLUDED.image_url,
			in_stock = EXCLUDED.in_stock,
			attributes = EXCLUDED.attributes
	`
	for _, p := range products {
		normalizeProduct(&p)
		attrs, err := json.Marshal(p.Attributes)
		if err != nil {
			return fmt.Errorf("failed to marshal attributes for %s: %w", p.ID, err)
		}
		if _, err := tx.ExecContext(ctx, query,
			p.ID, p.Name, p.Description, p.Category, p.Price, p.Currency, p.ImageURL, p.InStock, string(attrs)); err != nil {
			return fmt.Errorf("failed to upsert product %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit products: %w", err)
	}
	return nil
}

// Close is a no-op; the connection pool belongs to the caller.
func (c *PostgresCatalog) Close() error {
	return nil
}

func scanPostgresProduct(row rowScanner) (*domain.Product, error) {
	var (
		p     domain.Product
		attrs []byte
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Price,
		&p.Currency, &p.ImageURL, &p.InStock, &attrs); err != nil {
		return nil, err
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &p.Attributes); err != nil {
			return nil, fmt.Errorf("failed to decode attributes for %s: %w", p.ID, err)
		}
	}
	normalizeProduct(&p)
	return &p, nil
}

var _ Store = (*PostgresCatalog)(nil)
