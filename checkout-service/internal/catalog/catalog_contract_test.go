package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shabazpatel/acp-infra/checkout-service/domain"
)

func ids(res *domain.ProductSearchResult) []string {
	out := make([]string, 0, len(res.Products))
	for _, p := range res.Products {
		out = append(out, p.ID)
	}
	return out
}

func int64Ptr(v int64) *int64 { return &v }

// runCatalogContract checks a store seeded with DemoProducts.
func runCatalogContract(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("get", func(t *testing.T) {
		p, err := store.Get(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, "Oak Dining Chair", p.Name)
		assert.Equal(t, int64(1000), p.Price)
		assert.Equal(t, "usd", p.Currency)
		assert.True(t, p.InStock)
		assert.Equal(t, "oak", p.Attributes["material"])

		rating := p.Rating()
		require.NotNil(t, rating)
		assert.Equal(t, 4.5, rating.AverageRating)
		assert.Equal(t, int64(120), rating.RatingCount)
		assert.Equal(t, 80, rating.Distribution["5"])

		p5, err := store.Get(ctx, "p5")
		require.NoError(t, err)
		assert.False(t, p5.InStock)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := store.Get(ctx, "nope")
		assert.ErrorIs(t, err, ErrProductNotFound)
	})

	tests := []struct {
		name  string
		query Query
		want  []string
		total int
	}{
		{"full text single term", Query{Text: "sofa"}, []string{"p3"}, 1},
		{"full text all terms", Query{Text: "oak chair"}, []string{"p1"}, 1},
		{"full text no partial match", Query{Text: "oak sofa"}, []string{}, 0},
		{"full text description", Query{Text: "walnut"}, []string{"p3"}, 1},
		{"short query name substring", Query{Text: "la"}, []string{"p4"}, 1},
		{"category filter", Query{Category: "furniture"}, []string{"p3", "p1"}, 2},
		{"price range", Query{PriceMin: int64Ptr(2000), PriceMax: int64Ptr(20000)}, []string{"p4", "p2"}, 2},
		{"limit keeps total", Query{Limit: 2}, []string{"p4", "p2"}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := store.Find(ctx, tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(res))
			assert.Equal(t, tt.total, res.TotalCount)
			assert.Equal(t, tt.query.Text, res.Query)
		})
	}

	t.Run("ranked terms", func(t *testing.T) {
		res, err := store.Find(ctx, Query{Text: "linen"})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"p2", "p4"}, ids(res))
	})

	t.Run("upsert", func(t *testing.T) {
		err := store.Upsert(ctx,
			domain.Product{ID: "p6", Name: "Cedar Bench", Category: "furniture", Price: 15900, InStock: true},
			domain.Product{ID: "p1", Name: "Oak Dining Chair", Category: "furniture", Price: 1200, InStock: true,
				Attributes: map[string]any{"material": "oak"}},
		)
		require.NoError(t, err)

		p6, err := store.Get(ctx, "p6")
		require.NoError(t, err)
		assert.Equal(t, "usd", p6.Currency)
		assert.NotNil(t, p6.Attributes)

		p1, err := store.Get(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, int64(1200), p1.Price)
		assert.Nil(t, p1.Rating())
	})
}
