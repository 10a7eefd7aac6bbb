package catalog

import (
	"context"
	"maps"
	"sort"
	"strings"
	"sync"

	"github.com/shabazpatel/acp-infra/checkout-service/domain"
)

type MemoryCatalog struct {
	mu       sync.RWMutex
	products map[string]domain.Product
}

func NewMemoryCatalog(products ...domain.Product) *MemoryCatalog {
	c := &MemoryCatalog{products: make(map[string]domain.Product, len(products))}
	_ = c.Upsert(context.Background(), products...)
	return c
}

func (c *MemoryCatalog) Get(_ context.Context, id string) (*domain.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[id]
	if !ok {
		return nil, ErrProductNotFound
	}
	return clone(p), nil
}

func (c *MemoryCatalog) Find(_ context.Context, q Query) (*domain.ProductSearchResult, error) {
	q = q.Normalize()
	terms := q.terms()

	type hit struct {
		p     domain.Product
		score int
	}

	c.mu.RLock()
	var hits []hit
	for _, p := range c.products {
		if !matchesFilters(&p, q) {
			continue
		}
		score, ok := textScore(&p, q, terms)
		if !ok {
			continue
		}
		hits = append(hits, hit{p, score})
	}
	c.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if q.fullText() && hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		if hits[i].p.Name != hits[j].p.Name {
			return hits[i].p.Name < hits[j].p.Name
		}
		return hits[i].p.ID < hits[j].p.ID
	})

	res := &domain.ProductSearchResult{
		Products:   []domain.Product{},
		TotalCount: len(hits),
		Query:      q.Text,
	}
	for i := 0; i < len(hits) && i < q.Limit; i++ {
		res.Products = append(res.Products, *clone(hits[i].p))
	}
	return res, nil
}

func (c *MemoryCatalog) Upsert(_ context.Context, products ...domain.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range products {
		normalizeProduct(&p)
		c.products[p.ID] = *clone(p)
	}
	return nil
}

func (c *MemoryCatalog) Close() error {
	return nil
}

func matchesFilters(p *domain.Product, q Query) bool {
	if q.Category != "" && !strings.Contains(strings.ToLower(p.Category), strings.ToLower(q.Category)) {
		return false
	}
	if q.PriceMin != nil && p.Price < *q.PriceMin {
		return false
	}
	if q.PriceMax != nil && p.Price > *q.PriceMax {
		return false
	}
	return true
}

// textScore counts term occurrences for full-text queries. Every term must
// appear at least once.
func textScore(p *domain.Product, q Query, terms []string) (int, bool) {
	if !q.fullText() {
		needle := strings.ToLower(q.Text)
		return 0, strings.Contains(strings.ToLower(p.Name), needle) ||
			strings.Contains(strings.ToLower(p.Category), needle)
	}

	doc := strings.ToLower(p.Name + " " + p.Description + " " + p.Category)
	score := 0
	for _, t := range terms {
		n := strings.Count(doc, t)
		if n == 0 {
			return 0, false
		}
		score += n
	}
	return score, true
}

func clone(p domain.Product) *domain.Product {
	p.Attributes = maps.Clone(p.Attributes)
	return &p
}

var _ Store = (*MemoryCatalog)(nil)
