// Package catalog looks products up for pricing and serves the browsing
// endpoints. Search semantics are shared by every backend: queries of
// three or more characters must match every term somewhere in name,
// description or category; shorter queries match a substring of name or
// category.
package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/shabazpatel/acp-infra/checkout-service/domain"
)

var ErrProductNotFound = errors.New("product not found")

const (
	DefaultLimit = 10
	MaxLimit     = 50

	fullTextMinLen = 3
)

type Query struct {
	Text     string
	Category string
	PriceMin *int64
	PriceMax *int64
	Limit    int
}

// Normalize clamps the limit and trims the text.
func (q Query) Normalize() Query {
	q.Text = strings.TrimSpace(q.Text)
	q.Category = strings.TrimSpace(q.Category)
	switch {
	case q.Limit <= 0:
		q.Limit = DefaultLimit
	case q.Limit > MaxLimit:
		q.Limit = MaxLimit
	}
	return q
}

func (q Query) fullText() bool {
	return len(q.Text) >= fullTextMinLen
}

func (q Query) terms() []string {
	return strings.Fields(strings.ToLower(q.Text))
}

type Catalog interface {
	Get(ctx context.Context, id string) (*domain.Product, error)
	Find(ctx context.Context, q Query) (*domain.ProductSearchResult, error)
}

// Store is a catalog that can also be written, used by the seed command.
type Store interface {
	Catalog
	Upsert(ctx context.Context, products ...domain.Product) error
	Close() error
}

func normalizeProduct(p *domain.Product) {
	if p.Currency == "" {
		p.Currency = domain.DefaultCurrency
	}
	if p.Attributes == nil {
		p.Attributes = map[string]any{}
	}
}
