package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shabazpatel/acp-infra/checkout-service/domain"
	"github.com/shabazpatel/acp-infra/checkout-service/internal/catalog"
	"github.com/shabazpatel/acp-infra/pkg/apperr"
	"github.com/shabazpatel/acp-infra/pkg/ids"
)

func errProductNotFound() *apperr.Error {
	return apperr.New(apperr.CodeProductNotFound, "Product not found")
}

func (s *CheckoutService) SearchProducts(ctx context.Context, q catalog.Query) (*domain.ProductSearchResult, error) {
	res, err := s.catalog.Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to search products: %w", err)
	}
	return res, nil
}

func (s *CheckoutService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := s.catalog.Get(ctx, id)
	if errors.Is(err, catalog.ErrProductNotFound) {
		return nil, errProductNotFound()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

func (s *CheckoutService) GetRatings(ctx context.Context, id string) (*domain.RatingSummary, error) {
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	rating := p.Rating()
	if rating == nil {
		return nil, apperr.New(apperr.CodeRatingsUnavailable, "Ratings not available for product")
	}
	return rating, nil
}

// CompareProducts skips unknown ids but needs at least two known ones.
func (s *CheckoutService) CompareProducts(ctx context.Context, req *domain.CompareProductsRequest) (*domain.CompareProductsResponse, error) {
	resp := &domain.CompareProductsResponse{Products: []domain.ComparedProduct{}}
	for _, id := range req.ProductIDs {
		p, err := s.catalog.Get(ctx, id)
		if errors.Is(err, catalog.ErrProductNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get product %s: %w", id, err)
		}
		resp.Products = append(resp.Products, p.Compared())
	}

	if len(resp.Products) < 2 {
		return nil, apperr.New(apperr.CodeInsufficientProducts, "At least two valid product_ids are required").
			WithParam("$.product_ids")
	}
	return resp, nil
}

// SimulatePurchase quotes a single product without touching any session.
// Stock is not checked.
func (s *CheckoutService) SimulatePurchase(ctx context.Context, req *domain.PurchaseSimulateRequest) (*domain.PurchaseSimulateResponse, error) {
	p, err := s.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	subtotal, tax, total, err := s.pricing.Simulate(p, req.Quantity)
	if err != nil {
		return nil, err
	}
	return &domain.PurchaseSimulateResponse{
		SimulationID: ids.New("sim_", 12),
		ProductID:    req.ProductID,
		Quantity:     req.Quantity,
		Currency:     p.Currency,
		Subtotal:     subtotal,
		Tax:          tax,
		Total:        total,
	}, nil
}
