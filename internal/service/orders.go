package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"storefront/backend/internal/domain"
	"storefront/backend/internal/reconcile"
	"storefront/backend/internal/store"
	"storefront/backend/internal/xid"
)

// PlaceOrder records a sale for lines and deducts stock in one unit of
// work. Either every line is reserved or nothing changes.
func (s *Service) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.Transaction, error) {
	if len(req.Lines) == 0 {
		return domain.Transaction{}, reconcile.ErrEmptyCart
	}

	var placed domain.Transaction
	var changed reconcile.Stocks
	err := s.repo.Atomic(ctx, func(u store.Unit) error {
		ids := make([]string, 0, len(req.Lines))
		for _, line := range req.Lines {
			ids = append(ids, line.ProductID)
		}
		products, stocks, err := loadProducts(ctx, u, ids)
		if err != nil {
			return err
		}

		next, err := reconcile.PlanPlacement(stocks, req.Lines)
		if err != nil {
			return err
		}

		items := make([]domain.TransactionItem, 0, len(req.Lines))
		for _, line := range req.Lines {
			product := products[line.ProductID]
			items = append(items, domain.TransactionItem{
				ProductID: product.ID,
				Name:      product.Name,
				Quantity:  line.Quantity,
				Price:     domain.RoundMoney(product.Price),
			})
		}

		changed = stocks.Changed(next)
		if err := applyStocks(ctx, u, changed); err != nil {
			return err
		}

		placed = domain.Transaction{
			ID:          xid.New("txn_sale"),
			Date:        s.now(),
			Items:       items,
			TotalAmount: domain.SumItems(items),
			Status:      domain.TxStatusCompleted,
			Type:        domain.TxTypeSale,
			Description: strings.TrimSpace(req.Description),
		}
		return u.UpsertTransaction(ctx, placed)
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.logger.Info("order placed",
		zap.String("transaction_id", placed.ID),
		zap.String("total", placed.TotalAmount.StringFixed(domain.MoneyPlaces)),
		zap.Any("stock", changed),
	)
	return placed, nil
}

// EditOrder replaces the items of a sale. Stock moves only by the net
// difference between the old and new item sets. Zero-quantity lines are
// dropped before planning. Submitting the stored items again changes
// nothing, including the timestamp.
func (s *Service) EditOrder(ctx context.Context, id string, req domain.EditOrderRequest) (domain.Transaction, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Transaction{}, err
	}

	id = strings.TrimSpace(id)
	var edited domain.Transaction
	var changed reconcile.Stocks
	err := s.repo.Atomic(ctx, func(u store.Unit) error {
		tx, err := u.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if tx.Type != domain.TxTypeSale {
			return ErrWrongType
		}

		kept := make([]domain.EditOrderItem, 0, len(req.Items))
		for _, item := range req.Items {
			if item.Quantity == 0 {
				continue
			}
			if item.Price != nil && domain.RoundMoney(*item.Price).IsNegative() {
				return fmt.Errorf("%w: price must not be negative", ErrValidation)
			}
			item.ProductID = strings.TrimSpace(item.ProductID)
			kept = append(kept, item)
		}
		if len(kept) == 0 {
			return ErrEmptyResult
		}

		ids := make([]string, 0, len(tx.Items)+len(kept))
		for _, item := range tx.Items {
			ids = append(ids, item.ProductID)
		}
		for _, item := range kept {
			ids = append(ids, item.ProductID)
		}
		products, stocks, err := loadProducts(ctx, u, ids)
		if err != nil {
			return err
		}

		next := resolveEditItems(kept, tx.Items, products)
		if sameItems(tx.Items, next) {
			edited = *tx
			return nil
		}

		plan, err := reconcile.PlanEdit(stocks, tx.Items, next)
		if err != nil {
			return err
		}
		changed = stocks.Changed(plan)
		if err := applyStocks(ctx, u, changed); err != nil {
			return err
		}

		tx.Items = next
		tx.TotalAmount = domain.SumItems(next)
		tx.Date = s.now()
		edited = *tx
		return u.UpsertTransaction(ctx, edited)
	})
	if err != nil {
		return domain.Transaction{}, err
	}

	s.logAudit(ctx, "order_edit", edited.ID,
		zap.String("total", edited.TotalAmount.StringFixed(domain.MoneyPlaces)),
		zap.Any("stock", changed),
	)
	return edited, nil
}

// DeleteOrder restocks every item of a sale and removes it from the ledger.
// Items whose product has since been deleted are not restocked.
func (s *Service) DeleteOrder(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}

	id = strings.TrimSpace(id)
	var changed reconcile.Stocks
	var skipped []string
	err := s.repo.Atomic(ctx, func(u store.Unit) error {
		tx, err := u.GetTransaction(ctx, id)
		if err != nil {
			return err
		}
		if tx.Type != domain.TxTypeSale {
			return ErrWrongType
		}

		_, stocks, err := loadProducts(ctx, u, reconcile.ProductIDs(tx.Items))
		if err != nil {
			return err
		}
		var next reconcile.Stocks
		next, skipped = reconcile.PlanRestock(stocks, tx.Items)
		changed = stocks.Changed(next)
		if err := applyStocks(ctx, u, changed); err != nil {
			return err
		}
		return u.RemoveTransaction(ctx, id)
	})
	if err != nil {
		return err
	}

	if len(skipped) > 0 {
		s.logger.Warn("restock skipped for deleted products", zap.String("transaction_id", id), zap.Strings("product_ids", skipped))
	}
	s.logAudit(ctx, "order_delete", id, zap.Any("stock", changed))
	return nil
}

// AddManualRecord appends an income or expense entry. Expenses are stored
// with a negative total.
func (s *Service) AddManualRecord(ctx context.Context, req domain.ManualRecordRequest) (domain.Transaction, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Transaction{}, err
	}

	req.Description = strings.TrimSpace(req.Description)
	req.Category = strings.TrimSpace(req.Category)
	if err := s.validate.Struct(req); err != nil {
		return domain.Transaction{}, validationError(err)
	}
	amount := domain.RoundMoney(req.Amount)
	if !amount.IsPositive() {
		return domain.Transaction{}, fmt.Errorf("%w: amount must be greater than 0", ErrValidation)
	}
	if req.Type == domain.TxTypeExpense {
		amount = amount.Neg()
	}

	record := domain.Transaction{
		ID:          xid.New("txn_" + string(req.Type)),
		Date:        s.now(),
		Items:       []domain.TransactionItem{},
		TotalAmount: amount,
		Status:      domain.TxStatusCompleted,
		Type:        req.Type,
		Description: req.Description,
		Category:    req.Category,
	}
	if err := s.repo.UpsertTransaction(ctx, record); err != nil {
		return domain.Transaction{}, err
	}

	s.logAudit(ctx, "manual_record", record.ID, zap.String("type", string(record.Type)), zap.String("amount", amount.StringFixed(domain.MoneyPlaces)))
	return record, nil
}

// ListOrders returns sales newest first. A non-empty date (YYYY-MM-DD)
// limits the result to that UTC day.
func (s *Service) ListOrders(ctx context.Context, date string) ([]domain.Transaction, error) {
	filter := domain.TransactionFilter{Type: domain.TxTypeSale}
	if date = strings.TrimSpace(date); date != "" {
		day, err := parseDay(date)
		if err != nil {
			return nil, err
		}
		filter.From = day
		filter.To = day.Add(24 * time.Hour)
	}
	return s.repo.ListTransactions(ctx, filter)
}

// GetOrder returns one ledger entry. Income and expense records are
// visible to admins only; other callers get ErrNotFound for them.
func (s *Service) GetOrder(ctx context.Context, id string) (domain.Transaction, error) {
	tx, err := s.repo.GetTransaction(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Transaction{}, err
	}
	if tx.Type != domain.TxTypeSale && requireAdmin(ctx) != nil {
		return domain.Transaction{}, store.ErrNotFound
	}
	return *tx, nil
}

// ListTransactions returns the whole ledger, optionally narrowed to one type.
func (s *Service) ListTransactions(ctx context.Context, txType string) ([]domain.Transaction, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}

	filter := domain.TransactionFilter{}
	if txType = strings.ToLower(strings.TrimSpace(txType)); txType != "" {
		filter.Type = domain.TransactionType(txType)
		if !filter.Type.Valid() {
			return nil, fmt.Errorf("%w: unknown transaction type %q", ErrValidation, txType)
		}
	}
	return s.repo.ListTransactions(ctx, filter)
}

// loadProducts reads every distinct product in ids through u. Missing
// products are left out of both results; the planner reports them.
func loadProducts(ctx context.Context, u store.Unit, ids []string) (map[string]domain.Product, reconcile.Stocks, error) {
	products := make(map[string]domain.Product, len(ids))
	stocks := make(reconcile.Stocks, len(ids))
	for _, id := range ids {
		if _, seen := products[id]; seen {
			continue
		}
		product, err := u.GetProduct(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		products[id] = *product
		stocks[id] = product.Stock
	}
	return products, stocks, nil
}

func applyStocks(ctx context.Context, u store.Unit, changed reconcile.Stocks) error {
	for id, stock := range changed {
		if err := u.SetStock(ctx, id, stock); err != nil {
			return fmt.Errorf("set stock %s: %w", id, err)
		}
	}
	return nil
}

// resolveEditItems turns edit input into item snapshots. A missing name or
// price comes from the original line for the same product, then from the
// current catalog entry.
func resolveEditItems(items []domain.EditOrderItem, original []domain.TransactionItem, products map[string]domain.Product) []domain.TransactionItem {
	originalByID := make(map[string]domain.TransactionItem, len(original))
	for _, item := range original {
		if _, exists := originalByID[item.ProductID]; !exists {
			originalByID[item.ProductID] = item
		}
	}

	resolved := make([]domain.TransactionItem, 0, len(items))
	for _, item := range items {
		next := domain.TransactionItem{
			ProductID: strings.TrimSpace(item.ProductID),
			Name:      strings.TrimSpace(item.Name),
			Quantity:  item.Quantity,
		}
		prev, hadPrev := originalByID[next.ProductID]
		product, hasProduct := products[next.ProductID]

		if next.Name == "" {
			switch {
			case hadPrev:
				next.Name = prev.Name
			case hasProduct:
				next.Name = product.Name
			}
		}
		switch {
		case item.Price != nil:
			next.Price = domain.RoundMoney(*item.Price)
		case hadPrev:
			next.Price = prev.Price
		case hasProduct:
			next.Price = domain.RoundMoney(product.Price)
		}
		resolved = append(resolved, next)
	}
	return resolved
}

func sameItems(a []domain.TransactionItem, b []domain.TransactionItem) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ProductID != b[i].ProductID || a[i].Name != b[i].Name || a[i].Quantity != b[i].Quantity || !a[i].Price.Equal(b[i].Price) {
			return false
		}
	}
	return true
}

func parseDay(value string) (time.Time, error) {
	day, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrValidation)
	}
	return day.UTC(), nil
}
