package domain

import (
	"strconv"
)

type Product struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	Price       int64          `json:"price"`
	Currency    string         `json:"currency"`
	ImageURL    string         `json:"image_url"`
	InStock     bool           `json:"in_stock"`
	Attributes  map[string]any `json:"attributes"`
}

type ProductSearchResult struct {
	Products   []Product `json:"products"`
	TotalCount int       `json:"total_count"`
	Query      string    `json:"query"`
}

type RatingSummary struct {
	ProductID     string         `json:"product_id"`
	AverageRating float64        `json:"average_rating"`
	RatingCount   int64          `json:"rating_count"`
	Distribution  map[string]int `json:"distribution"`
}

type ComparedProduct struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Category   string         `json:"category,omitempty"`
	Price      int64          `json:"price"`
	Currency   string         `json:"currency"`
	InStock    bool           `json:"in_stock"`
	Attributes map[string]any `json:"attributes"`
	Rating     *RatingSummary `json:"rating,omitempty"`
}

type CompareProductsResponse struct {
	Products []ComparedProduct `json:"products"`
}

// Rating derives a rating summary from the product attributes. It returns
// nil when the average or the count is missing or not numeric.
func (p *Product) Rating() *RatingSummary {
	avgRaw := firstPresent(p.Attributes, "average_rating", "rating")
	countRaw := firstPresent(p.Attributes, "rating_count", "ratings_count")

	avg, ok := toFloat(avgRaw)
	if !ok {
		return nil
	}
	count, ok := toFloat(countRaw)
	if !ok {
		return nil
	}

	dist := make(map[string]int)
	if raw, ok := firstPresent(p.Attributes, "rating_distribution", "distribution").(map[string]any); ok {
		for k, v := range raw {
			if n, ok := toFloat(v); ok {
				dist[k] = int(n)
			}
		}
	}

	return &RatingSummary{
		ProductID:     p.ID,
		AverageRating: avg,
		RatingCount:   int64(count),
		Distribution:  dist,
	}
}

func (p *Product) Compared() ComparedProduct {
	attrs := p.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}
	return ComparedProduct{
		ID:         p.ID,
		Name:       p.Name,
		Category:   p.Category,
		Price:      p.Price,
		Currency:   p.Currency,
		InStock:    p.InStock,
		Attributes: attrs,
		Rating:     p.Rating(),
	}
}

func firstPresent(attrs map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := attrs[k]; ok && v != nil && v != "" {
			return v
		}
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
