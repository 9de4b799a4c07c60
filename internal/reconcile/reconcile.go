// Package reconcile computes stock tables for order placement, order edits
// and order deletion. Every function is pure: it takes the current stock of
// the products involved and returns the table to commit, or an error and no
// table. Callers commit the result in one unit of work.
package reconcile

import (
	"errors"
	"fmt"

	"storefront/backend/internal/domain"
)

var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrProductNotFound   = errors.New("product not found")
	ErrNegativeQuantity  = errors.New("quantity must not be negative")
	ErrInvalidQuantity   = errors.New("quantity must be at least 1")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// InsufficientStockError reports the first line whose quantity exceeds the
// stock available to it at that point of the plan.
type InsufficientStockError struct {
	ProductID string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d", e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Stocks maps product id to units on hand. A product missing from the map
// does not exist in the catalog.
type Stocks map[string]int

// Changed returns the entries of next that differ from s.
func (s Stocks) Changed(next Stocks) Stocks {
	diff := make(Stocks)
	for id, qty := range next {
		if current, ok := s[id]; !ok || current != qty {
			diff[id] = qty
		}
	}
	return diff
}

// PlanPlacement reserves every line against stocks. Lines for the same
// product are deducted cumulatively in input order.
func PlanPlacement(stocks Stocks, lines []domain.OrderLine) (Stocks, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	working := make(Stocks, len(lines))
	for _, line := range lines {
		if line.Quantity < 0 {
			return nil, fmt.Errorf("%w: %s", ErrNegativeQuantity, line.ProductID)
		}
		if line.Quantity == 0 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidQuantity, line.ProductID)
		}
		available, ok := working[line.ProductID]
		if !ok {
			available, ok = stocks[line.ProductID]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrProductNotFound, line.ProductID)
			}
		}
		if line.Quantity > available {
			return nil, &InsufficientStockError{ProductID: line.ProductID, Available: available, Requested: line.Quantity}
		}
		working[line.ProductID] = available - line.Quantity
	}

	return working, nil
}

// PlanEdit reverts the stock impact of original and applies next, checking
// each next line in order against the working table. Original lines whose
// product no longer exists are not reverted.
func PlanEdit(stocks Stocks, original []domain.TransactionItem, next []domain.TransactionItem) (Stocks, error) {
	working := make(Stocks, len(original)+len(next))
	for _, item := range original {
		if _, ok := working[item.ProductID]; ok {
			continue
		}
		if qty, ok := stocks[item.ProductID]; ok {
			working[item.ProductID] = qty
		}
	}
	for _, item := range next {
		if _, ok := working[item.ProductID]; ok {
			continue
		}
		if qty, ok := stocks[item.ProductID]; ok {
			working[item.ProductID] = qty
		}
	}

	for _, item := range original {
		if _, ok := working[item.ProductID]; ok {
			working[item.ProductID] += item.Quantity
		}
	}

	for _, item := range next {
		available, ok := working[item.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrProductNotFound, item.ProductID)
		}
		if item.Quantity < 0 {
			return nil, fmt.Errorf("%w: %s", ErrNegativeQuantity, item.ProductID)
		}
		if item.Quantity > available {
			return nil, &InsufficientStockError{ProductID: item.ProductID, Available: available, Requested: item.Quantity}
		}
		working[item.ProductID] = available - item.Quantity
	}

	return working, nil
}

// PlanRestock returns stocks with every item's quantity added back. Items
// whose product no longer exists are listed in skipped.
func PlanRestock(stocks Stocks, items []domain.TransactionItem) (next Stocks, skipped []string) {
	next = make(Stocks, len(items))
	for _, item := range items {
		current, ok := next[item.ProductID]
		if !ok {
			current, ok = stocks[item.ProductID]
			if !ok {
				skipped = append(skipped, item.ProductID)
				continue
			}
		}
		next[item.ProductID] = current + item.Quantity
	}
	return next, skipped
}

// ProductIDs returns the distinct product ids referenced by the given
// item sets, in first-seen order.
func ProductIDs(sets ...[]domain.TransactionItem) []string {
	seen := make(map[string]struct{})
	ids := make([]string, 0, 8)
	for _, items := range sets {
		for _, item := range items {
			if _, ok := seen[item.ProductID]; ok {
				continue
			}
			seen[item.ProductID] = struct{}{}
			ids = append(ids, item.ProductID)
		}
	}
	return ids
}
