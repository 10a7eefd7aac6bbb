package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "modernc.org/sqlite"

	"github.com/shabazpatel/acp-infra/checkout-service/domain"
)

const productColumns = `id, name, description, category, price_cents, currency, image_url, in_stock, attributes`

type SQLiteCatalog struct {
	db *sql.DB
}

func NewSQLiteCatalog(dbPath string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// an in-memory database lives only as long as its single connection
	db.SetMaxOpenConns(1)
	return &SQLiteCatalog{db: db}, nil
}

func (c *SQLiteCatalog) RunMigrations(migrationsPath string) error {
	driver, err := sqlite.WithInstance(c.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"sqlite",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func (c *SQLiteCatalog) Get(ctx context.Context, id string) (*domain.Product, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanSQLiteProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query product: %w", err)
	}
	return p, nil
}

func (c *SQLiteCatalog) Find(ctx context.Context, q Query) (*domain.ProductSearchResult, error) {
	q = q.Normalize()

	var (
		conds []string
		args  []any
	)
	order := "name ASC, id ASC"
	if q.fullText() {
		for _, t := range q.terms() {
			conds = append(conds, `LOWER(name || ' ' || description || ' ' || category) LIKE ?`)
			args = append(args, "%"+t+"%")
		}
	} else {
		conds = append(conds, `(LOWER(name) LIKE ? OR LOWER(category) LIKE ?)`)
		pattern := "%" + strings.ToLower(q.Text) + "%"
		args = append(args, pattern, pattern)
	}
	if q.Category != "" {
		conds = append(conds, `LOWER(category) LIKE ?`)
		args = append(args, "%"+strings.ToLower(q.Category)+"%")
	}
	if q.PriceMin != nil {
		conds = append(conds, `price_cents >= ?`)
		args = append(args, *q.PriceMin)
	}
	if q.PriceMax != nil {
		conds = append(conds, `price_cents <= ?`)
		args = append(args, *q.PriceMax)
	}
	where := strings.Join(conds, " AND ")

	var total int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE `+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count products: %w", err)
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE `+where+` ORDER BY `+order+` LIMIT ?`,
		append(args, q.Limit)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	res := &domain.ProductSearchResult{Products: []domain.Product{}, TotalCount: total, Query: q.Text}
	for rows.Next() {
		p, err := scanSQLiteProduct(rows)
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

func (c *SQLiteCatalog) Upsert(ctx context.Context, products ...domain.Product) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const query = `
		INSERT INTO products (` + productColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			category = excluded.category,
			price_cents = excluded.price_cents,
			currency = excluded.currency,
			image_url = excluded.image_url,
			in_stock = excluded.in_stock,
			attributes = excluded.attributes
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

func (c *SQLiteCatalog) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteProduct(row rowScanner) (*domain.Product, error) {
	var (
		p     domain.Product
		attrs string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Category, &p.Price,
		&p.Currency, &p.ImageURL, &p.InStock, &attrs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(attrs), &p.Attributes); err != nil {
		return nil, fmt.Errorf("failed to decode attributes for %s: %w", p.ID, err)
	}
	normalizeProduct(&p)
	return &p, nil
}

var _ Store = (*SQLiteCatalog)(nil)
