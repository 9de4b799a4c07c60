// Package cart holds per-user shopping carts. A cart line never holds more
// units than the product snapshot it carries has in stock.
package cart

import (
	"sync"

	"github.com/shopspring/decimal"

	"storefront/backend/internal/domain"
	"storefront/backend/internal/reconcile"
)

type Cart struct {
	lines []domain.CartLine
}

// Add puts qty units of product in the cart, capped at product.Stock.
// A zero qty adds one unit.
func (c *Cart) Add(product domain.Product, qty int) error {
	if qty < 0 {
		return reconcile.ErrNegativeQuantity
	}
	if qty == 0 {
		qty = 1
	}
	if product.Stock <= 0 {
		return &reconcile.InsufficientStockError{ProductID: product.ID, Available: 0, Requested: qty}
	}

	for i := range c.lines {
		if c.lines[i].Product.ID != product.ID {
			continue
		}
		c.lines[i].Product = product
		c.lines[i].Quantity = min(c.lines[i].Quantity+qty, product.Stock)
		return nil
	}

	c.lines = append(c.lines, domain.CartLine{Product: product, Quantity: min(qty, product.Stock)})
	return nil
}

// Update sets the quantity of the line for product, clamped to
// [0, product.Stock]. A resulting zero removes the line. It reports whether
// the product was in the cart.
func (c *Cart) Update(product domain.Product, qty int) bool {
	qty = max(0, min(qty, product.Stock))
	for i := range c.lines {
		if c.lines[i].Product.ID != product.ID {
			continue
		}
		if qty == 0 {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return true
		}
		c.lines[i].Product = product
		c.lines[i].Quantity = qty
		return true
	}
	return false
}

func (c *Cart) Remove(productID string) bool {
	for i := range c.lines {
		if c.lines[i].Product.ID == productID {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return true
		}
	}
	return false
}

// Deduct subtracts ordered quantities from the matching lines and drops
// lines that reach zero. Units added after the order was taken stay.
func (c *Cart) Deduct(ordered []domain.OrderLine) {
	for _, o := range ordered {
		for i := range c.lines {
			if c.lines[i].Product.ID != o.ProductID {
				continue
			}
			c.lines[i].Quantity -= o.Quantity
			if c.lines[i].Quantity <= 0 {
				c.lines = append(c.lines[:i], c.lines[i+1:]...)
			}
			break
		}
	}
}

func (c *Cart) Clear() {
	c.lines = nil
}

func (c *Cart) Lines() []domain.CartLine {
	dup := make([]domain.CartLine, len(c.lines))
	copy(dup, c.lines)
	return dup
}

func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.lines {
		total = total.Add(line.Product.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return domain.RoundMoney(total)
}

func (c *Cart) ItemCount() int {
	count := 0
	for _, line := range c.lines {
		count += line.Quantity
	}
	return count
}

func (c *Cart) View() domain.CartView {
	return domain.CartView{
		Lines:     c.Lines(),
		Total:     c.Total(),
		ItemCount: c.ItemCount(),
	}
}

func (c *Cart) OrderLines() []domain.OrderLine {
	lines := make([]domain.OrderLine, 0, len(c.lines))
	for _, line := range c.lines {
		lines = append(lines, domain.OrderLine{ProductID: line.Product.ID, Quantity: line.Quantity})
	}
	return lines
}

func (c *Cart) Names() []string {
	names := make([]string, 0, len(c.lines))
	for _, line := range c.lines {
		names = append(names, line.Product.Name)
	}
	return names
}

// Registry maps usernames to carts.
type Registry struct {
	mu    sync.Mutex
	carts map[string]*Cart
}

func NewRegistry() *Registry {
	return &Registry{carts: make(map[string]*Cart)}
}

// With runs fn on the user's cart while holding the registry lock, creating
// the cart on first use.
func (r *Registry) With(username string, fn func(*Cart) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.carts[username]
	if !ok {
		c = &Cart{}
		r.carts[username] = c
	}
	return fn(c)
}
