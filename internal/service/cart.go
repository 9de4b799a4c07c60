package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"storefront/backend/internal/cart"
	"storefront/backend/internal/domain"
	"storefront/backend/internal/reconcile"
	"storefront/backend/internal/store"
)

const defaultPaymentMethod = "Manual Entry"

func cartOwner(ctx context.Context) (string, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Username == "" {
		return "", ErrForbidden
	}
	return actor.Username, nil
}

// GetCart returns the caller's cart with product snapshots refreshed from
// the catalog. Lines for deleted products are dropped and quantities are
// clamped to current stock.
func (s *Service) GetCart(ctx context.Context) (domain.CartView, error) {
	owner, err := cartOwner(ctx)
	if err != nil {
		return domain.CartView{}, err
	}

	var view domain.CartView
	err = s.carts.With(owner, func(c *cart.Cart) error {
		for _, line := range c.Lines() {
			product, err := s.repo.GetProduct(ctx, line.Product.ID)
			if errors.Is(err, store.ErrNotFound) {
				c.Remove(line.Product.ID)
				continue
			}
			if err != nil {
				return err
			}
			c.Update(*product, line.Quantity)
		}
		view = c.View()
		return nil
	})
	return view, err
}

func (s *Service) AddToCart(ctx context.Context, req domain.CartItemRequest) (domain.CartView, error) {
	owner, err := cartOwner(ctx)
	if err != nil {
		return domain.CartView{}, err
	}
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(req.ProductID))
	if err != nil {
		return domain.CartView{}, err
	}

	var view domain.CartView
	err = s.carts.With(owner, func(c *cart.Cart) error {
		if err := c.Add(*product, req.Quantity); err != nil {
			return err
		}
		view = c.View()
		return nil
	})
	return view, err
}

func (s *Service) UpdateCartItem(ctx context.Context, productID string, quantity int) (domain.CartView, error) {
	owner, err := cartOwner(ctx)
	if err != nil {
		return domain.CartView{}, err
	}
	productID = strings.TrimSpace(productID)
	product, err := s.repo.GetProduct(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		_ = s.carts.With(owner, func(c *cart.Cart) error {
			c.Remove(productID)
			return nil
		})
		return domain.CartView{}, err
	}
	if err != nil {
		return domain.CartView{}, err
	}

	var view domain.CartView
	err = s.carts.With(owner, func(c *cart.Cart) error {
		if !c.Update(*product, quantity) {
			return store.ErrNotFound
		}
		view = c.View()
		return nil
	})
	return view, err
}

func (s *Service) RemoveCartItem(ctx context.Context, productID string) (domain.CartView, error) {
	owner, err := cartOwner(ctx)
	if err != nil {
		return domain.CartView{}, err
	}

	var view domain.CartView
	err = s.carts.With(owner, func(c *cart.Cart) error {
		if !c.Remove(strings.TrimSpace(productID)) {
			return store.ErrNotFound
		}
		view = c.View()
		return nil
	})
	return view, err
}

func (s *Service) ClearCart(ctx context.Context) error {
	owner, err := cartOwner(ctx)
	if err != nil {
		return err
	}
	return s.carts.With(owner, func(c *cart.Cart) error {
		c.Clear()
		return nil
	})
}

// Checkout places an order for the caller's cart. Once the order is
// committed the ordered units are taken out of the cart; anything added
// while the order was being placed stays.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	owner, err := cartOwner(ctx)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Address = strings.TrimSpace(req.Address)
	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	if err := s.validate.Struct(req); err != nil {
		return domain.CheckoutResponse{}, validationError(err)
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = defaultPaymentMethod
	}

	var lines []domain.OrderLine
	_ = s.carts.With(owner, func(c *cart.Cart) error {
		lines = c.OrderLines()
		return nil
	})
	if len(lines) == 0 {
		return domain.CheckoutResponse{}, reconcile.ErrEmptyCart
	}

	placed, err := s.PlaceOrder(ctx, domain.PlaceOrderRequest{
		Lines:       lines,
		Description: fmt.Sprintf("Order by %s", req.Name),
	})
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	_ = s.carts.With(owner, func(c *cart.Cart) error {
		c.Deduct(lines)
		return nil
	})
	s.logger.Info("checkout completed",
		zap.String("transaction_id", placed.ID),
		zap.String("customer", owner),
		zap.String("payment_method", req.PaymentMethod),
	)
	return domain.CheckoutResponse{Transaction: placed, PaymentMethod: req.PaymentMethod}, nil
}

// CartRecommendations suggests up to three catalog products for the
// caller's cart.
func (s *Service) CartRecommendations(ctx context.Context) (domain.RecommendationResponse, error) {
	owner, err := cartOwner(ctx)
	if err != nil {
		return domain.RecommendationResponse{}, err
	}

	var lines []domain.CartLine
	_ = s.carts.With(owner, func(c *cart.Cart) error {
		lines = c.Lines()
		return nil
	})
	if len(lines) == 0 {
		return domain.RecommendationResponse{Products: []domain.Product{}, Source: "none"}, nil
	}

	catalog, err := s.repo.ListProducts(ctx, domain.ProductFilter{})
	if err != nil {
		return domain.RecommendationResponse{}, err
	}
	return s.recommender.Recommend(ctx, lines, catalog), nil
}
