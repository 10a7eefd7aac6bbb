package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/shabazpatel/acp-infra/checkout-service/domain"
)

// DemoProducts is the catalog the in-memory backend starts with. The SQLite
// and Postgres migrations seed the same rows.
func DemoProducts() []domain.Product {
	return []domain.Product{
		{
			ID: "p1", Name: "Oak Dining Chair", Description: "Solid oak dining chair with a curved back",
			Category: "furniture", Price: 1000, Currency: "usd", ImageURL: "https://example.com/img/p1.jpg", InStock: true,
			Attributes: map[string]any{
				"material": "oak", "color": "natural",
				"average_rating": 4.5, "rating_count": 120,
				"rating_distribution": map[string]any{"5": 80, "4": 30, "3": 10},
			},
		},
		{
			ID: "p2", Name: "Linen Throw Pillow", Description: "Washed linen pillow cover with feather insert",
			Category: "decor", Price: 2499, Currency: "usd", ImageURL: "https://example.com/img/p2.jpg", InStock: true,
			Attributes: map[string]any{"material": "linen", "color": "sand", "rating": 4.1, "ratings_count": 38},
		},
		{
			ID: "p3", Name: "Mid-Century Sofa", Description: "Three seat sofa with walnut legs and velvet upholstery",
			Category: "furniture", Price: 89900, Currency: "usd", ImageURL: "https://example.com/img/p3.jpg", InStock: true,
			Attributes: map[string]any{"material": "velvet", "color": "green", "seats": 3},
		},
		{
			ID: "p4", Name: "Brass Floor Lamp", Description: "Arched brass floor lamp with linen shade",
			Category: "lighting", Price: 12900, Currency: "usd", ImageURL: "https://example.com/img/p4.jpg", InStock: true,
			Attributes: map[string]any{"material": "brass", "average_rating": 4.7, "rating_count": 15},
		},
		{
			ID: "p5", Name: "Wool Area Rug", Description: "Hand tufted wool rug, 8 x 10 feet",
			Category: "rugs", Price: 34900, Currency: "usd", ImageURL: "https://example.com/img/p5.jpg", InStock: false,
			Attributes: map[string]any{"material": "wool", "size": "8x10"},
		},
	}
}

type seedFile struct {
	Products []seedProduct `yaml:"products"`
}

type seedProduct struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Category    string         `yaml:"category"`
	Price       int64          `yaml:"price"`
	Currency    string         `yaml:"currency"`
	ImageURL    string         `yaml:"image_url"`
	InStock     *bool          `yaml:"in_stock"`
	Attributes  map[string]any `yaml:"attributes"`
}

// LoadSeedFile reads a YAML product list. in_stock defaults to true.
func LoadSeedFile(path string) ([]domain.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

func ParseSeed(data []byte) ([]domain.Product, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	products := make([]domain.Product, 0, len(f.Products))
	for i, sp := range f.Products {
		if sp.ID == "" || sp.Name == "" {
			return nil, fmt.Errorf("product %d: id and name are required", i)
		}
		if sp.Price < 0 {
			return nil, fmt.Errorf("product %s: price must not be negative", sp.ID)
		}
		inStock := true
		if sp.InStock != nil {
			inStock = *sp.InStock
		}
		p := domain.Product{
			ID:          sp.ID,
			Name:        sp.Name,
			Description: sp.Description,
			Category:    sp.Category,
			Price:       sp.Price,
			Currency:    sp.Currency,
			ImageURL:    sp.ImageURL,
			InStock:     inStock,
			Attributes:  sp.Attributes,
		}
		normalizeProduct(&p)
		products = append(products, p)
	}
	return products, nil
}
