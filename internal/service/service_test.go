package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/backend/internal/domain"
	"storefront/backend/internal/reconcile"
	"storefront/backend/internal/store"
	"storefront/backend/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.NewSeeded(zap.NewNop()), nil, zap.NewNop())
}

func adminContext() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func customerContext(username string) context.Context {
	return WithActor(context.Background(), domain.Actor{Username: username, Role: domain.RoleCustomer})
}

func stockOf(t *testing.T, svc *Service, id string) int {
	t.Helper()
	product, err := svc.GetProduct(context.Background(), id)
	if err != nil {
		t.Fatalf("get product %s: %v", id, err)
	}
	return product.Stock
}

// saleDuringUpdateRepo commits a sale of prod_1 through a second service
// the first time the wrapped repository is read or a unit is opened.
type saleDuringUpdateRepo struct {
	*memory.Store
	once sync.Once
	sell func()
}

func (r *saleDuringUpdateRepo) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	product, err := r.Store.GetProduct(ctx, id)
	r.once.Do(r.sell)
	return product, err
}

func (r *saleDuringUpdateRepo) Atomic(ctx context.Context, fn func(store.Unit) error) error {
	r.once.Do(r.sell)
	return r.Store.Atomic(ctx, fn)
}

func TestPlaceEditDeleteScenario(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	placed, err := svc.PlaceOrder(ctx, domain.PlaceOrderRequest{
		Lines: []domain.OrderLine{{ProductID: "prod_1", Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("place order failed: %v", err)
	}
	if got := stockOf(t, svc, "prod_1"); got != 7 {
		t.Fatalf("expected stock 7 after placement, got %d", got)
	}
	if !placed.TotalAmount.Equal(decimal.NewFromInt(3600)) {
		t.Fatalf("expected total 3600, got %s", placed.TotalAmount)
	}
	if !strings.HasPrefix(placed.ID, "txn_sale_") || placed.Status != domain.TxStatusCompleted {
		t.Fatalf("unexpected placed transaction %+v", placed)
	}

	edited, err := svc.EditOrder(ctx, placed.ID, domain.EditOrderRequest{
		Items: []domain.EditOrderItem{{ProductID: "prod_1", Quantity: 5}},
	})
	if err != nil {
		t.Fatalf("edit order failed: %v", err)
	}
	if got := stockOf(t, svc, "prod_1"); got != 5 {
		t.Fatalf("expected stock 5 after edit, got %d", got)
	}
	if !edited.TotalAmount.Equal(decimal.NewFromInt(6000)) || edited.Items[0].Name != "Modern Laptop" {
		t.Fatalf("unexpected edited transaction %+v", edited)
	}

	_, err = svc.EditOrder(ctx, placed.ID, domain.EditOrderRequest{
		Items: []domain.EditOrderItem{{ProductID: "prod_1", Quantity: 20}},
	})
	var stockErr *reconcile.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected insufficient stock error, got %v", err)
	}
	if stockErr.Available != 10 || stockErr.Requested != 20 {
		t.Fatalf("expected available 10 requested 20, got %+v", stockErr)
	}
	if got := stockOf(t, svc, "prod_1"); got != 5 {
		t.Fatalf("expected stock unchanged at 5, got %d", got)
	}

	if err := svc.DeleteOrder(ctx, placed.ID); err != nil {
		t.Fatalf("delete order failed: %v", err)
	}
	if got := stockOf(t, svc, "prod_1"); got != 10 {
		t.Fatalf("expected stock 10 after delete, got %d", got)
	}
	if _, err := svc.GetOrder(ctx, placed.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected deleted order to be gone, got %v", err)
	}
}

func TestPlaceOrderIsAllOrNothing(t *testing.T) {
	svc := newTestService()
	ctx := customerContext("customer")

	_, err := svc.PlaceOrder(ctx, domain.PlaceOrderRequest{
		Lines: []domain.OrderLine{
			{ProductID: "prod_2", Quantity: 5},
			{ProductID: "prod_1", Quantity: 11},
		},
	})
	if !errors.Is(err, reconcile.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if got := stockOf(t, svc, "prod_2"); got != 50 {
		t.Fatalf("expected prod_2 untouched at 50, got %d", got)
	}

	if _, err := svc.PlaceOrder(ctx, domain.PlaceOrderRequest{}); !errors.Is(err, reconcile.ErrEmptyCart) {
		t.Fatalf("expected empty cart error, got %v", err)
	}
}

func TestEditOrderRejectsNonSale(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	_, err := svc.EditOrder(ctx, "txn_income_1", domain.EditOrderRequest{
		Items: []domain.EditOrderItem{{ProductID: "prod_1", Quantity: 1}},
	})
	if !errors.Is(err, ErrWrongType) {
		t.Fatalf("expected ErrWrongType, got %v", err)
	}
	if err := svc.DeleteOrder(ctx, "txn_expense_1"); !errors.Is(err, ErrWrongType) {
		t.Fatalf("expected ErrWrongType on delete, got %v", err)
	}
	if _, err := svc.EditOrder(ctx, "txn_missing", domain.EditOrderRequest{}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if got := stockOf(t, svc, "prod_1"); got != 10 {
		t.Fatalf("expected stock untouched, got %d", got)
	}
}

func TestEditOrderNegativeItemTouchesNothing(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	_, err := svc.EditOrder(ctx, "txn_1", domain.EditOrderRequest{
		Items: []domain.EditOrderItem{
			{ProductID: "prod_1", Quantity: 3},
			{ProductID: "prod_5", Quantity: -1},
		},
	})
	if !errors.Is(err, reconcile.ErrNegativeQuantity) {
		t.Fatalf("expected ErrNegativeQuantity, got %v", err)
	}
	if got := stockOf(t, svc, "prod_1"); got != 10 {
		t.Fatalf("expected prod_1 untouched, got %d", got)
	}
	if got := stockOf(t, svc, "prod_5"); got != 30 {
		t.Fatalf("expected prod_5 untouched, got %d", got)
	}
}

func TestEditOrderSameItemsIsNoop(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	before, err := svc.GetOrder(ctx, "txn_2")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	svc.now = func() time.Time { return before.Date.Add(time.Hour) }

	req := domain.EditOrderRequest{Items: []domain.EditOrderItem{{ProductID: "prod_3", Quantity: 2}}}
	for i := 0; i < 2; i++ {
		after, err := svc.EditOrder(ctx, "txn_2", req)
		if err != nil {
			t.Fatalf("edit %d failed: %v", i+1, err)
		}
		if !after.Date.Equal(before.Date) {
			t.Fatalf("expected date unchanged on no-op edit")
		}
	}
	if got := stockOf(t, svc, "prod_3"); got != 100 {
		t.Fatalf("expected stock 100, got %d", got)
	}
}

func TestEditOrderDropsZeroQuantityLines(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	edited, err := svc.EditOrder(ctx, "txn_1", domain.EditOrderRequest{
		Items: []domain.EditOrderItem{
			{ProductID: "prod_1", Quantity: 1},
			{ProductID: "prod_5", Quantity: 0},
		},
	})
	if err != nil {
		t.Fatalf("edit failed: %v", err)
	}
	if len(edited.Items) != 1 || !edited.TotalAmount.Equal(decimal.NewFromInt(1200)) {
		t.Fatalf("unexpected edited order %+v", edited)
	}
	if got := stockOf(t, svc, "prod_5"); got != 31 {
		t.Fatalf("expected headphones restocked to 31, got %d", got)
	}

	_, err = svc.EditOrder(ctx, "txn_1", domain.EditOrderRequest{
		Items: []domain.EditOrderItem{{ProductID: "prod_1", Quantity: 0}},
	})
	if !errors.Is(err, ErrEmptyResult) {
		t.Fatalf("expected ErrEmptyResult, got %v", err)
	}
}

func TestDeleteOrderSkipsDeletedProduct(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	if err := svc.DeleteProduct(ctx, "prod_5"); err != nil {
		t.Fatalf("delete product: %v", err)
	}
	if err := svc.DeleteOrder(ctx, "txn_1"); err != nil {
		t.Fatalf("delete order: %v", err)
	}
	if got := stockOf(t, svc, "prod_1"); got != 11 {
		t.Fatalf("expected laptop restocked to 11, got %d", got)
	}
}

func TestAdminOperationsRequireAdmin(t *testing.T) {
	svc := newTestService()
	ctx := customerContext("customer")

	if _, err := svc.EditOrder(ctx, "txn_1", domain.EditOrderRequest{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden on edit, got %v", err)
	}
	if err := svc.DeleteOrder(ctx, "txn_1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden on delete, got %v", err)
	}
	if _, err := svc.FinancialReport(ctx, "", ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden on report, got %v", err)
	}
	if _, err := svc.AddManualRecord(ctx, domain.ManualRecordRequest{}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden on manual record, got %v", err)
	}
}

func TestAddManualRecordSignConvention(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	expense, err := svc.AddManualRecord(ctx, domain.ManualRecordRequest{
		Type:        domain.TxTypeExpense,
		Amount:      decimal.RequireFromString("10.005"),
		Description: "Courier",
		Category:    "Shipping",
	})
	if err != nil {
		t.Fatalf("add expense: %v", err)
	}
	if expense.TotalAmount.StringFixed(2) != "-10.01" {
		t.Fatalf("expected -10.01, got %s", expense.TotalAmount.StringFixed(2))
	}
	if len(expense.Items) != 0 || !strings.HasPrefix(expense.ID, "txn_expense_") {
		t.Fatalf("unexpected expense record %+v", expense)
	}

	income, err := svc.AddManualRecord(ctx, domain.ManualRecordRequest{
		Type:        domain.TxTypeIncome,
		Amount:      decimal.NewFromInt(40),
		Description: "Workshop",
	})
	if err != nil {
		t.Fatalf("add income: %v", err)
	}
	if !income.TotalAmount.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("expected +40, got %s", income.TotalAmount)
	}

	_, err = svc.AddManualRecord(ctx, domain.ManualRecordRequest{
		Type:        domain.TxTypeIncome,
		Amount:      decimal.Zero,
		Description: "Nothing",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for zero amount, got %v", err)
	}
	_, err = svc.AddManualRecord(ctx, domain.ManualRecordRequest{
		Type:        domain.TxTypeSale,
		Amount:      decimal.NewFromInt(1),
		Description: "Sneaky sale",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for sale type, got %v", err)
	}
}

func TestFinancialReportTotals(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	report, err := svc.FinancialReport(ctx, "", "")
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.Period != "all time" || report.TransactionCount != 4 || report.ProductCount != 10 {
		t.Fatalf("unexpected report header %+v", report)
	}
	checks := map[string]decimal.Decimal{
		"sales":    report.TotalSales,
		"income":   report.TotalIncome,
		"expenses": report.TotalExpenses,
		"net":      report.NetProfit,
	}
	want := map[string]int64{"sales": 1400, "income": 1900, "expenses": 75, "net": 1825}
	for key, got := range checks {
		if !got.Equal(decimal.NewFromInt(want[key])) {
			t.Fatalf("%s: expected %d, got %s", key, want[key], got)
		}
	}

	today := time.Now().UTC().Format("2006-01-02")
	recent, err := svc.FinancialReport(ctx, time.Now().UTC().Add(-4*24*time.Hour).Format("2006-01-02"), today)
	if err != nil {
		t.Fatalf("ranged report: %v", err)
	}
	if recent.TransactionCount != 2 {
		t.Fatalf("expected 2 transactions in range, got %d", recent.TransactionCount)
	}

	if _, err := svc.FinancialReport(ctx, today, "2000-01-01"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for inverted range, got %v", err)
	}
}

func TestCheckoutClearsCart(t *testing.T) {
	svc := newTestService()
	ctx := customerContext("customer")

	if _, err := svc.AddToCart(ctx, domain.CartItemRequest{ProductID: "prod_6", Quantity: 2}); err != nil {
		t.Fatalf("add to cart: %v", err)
	}
	view, err := svc.AddToCart(ctx, domain.CartItemRequest{ProductID: "prod_6", Quantity: 100})
	if err != nil {
		t.Fatalf("add to cart: %v", err)
	}
	if view.ItemCount != 40 {
		t.Fatalf("expected quantity capped at stock 40, got %d", view.ItemCount)
	}

	_, err = svc.Checkout(ctx, domain.CheckoutRequest{Name: "Dewi", Email: "not-an-email", Address: "Bandung"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for bad email, got %v", err)
	}

	resp, err := svc.Checkout(ctx, domain.CheckoutRequest{Name: "Dewi", Email: "dewi@example.com", Address: "Bandung", PaymentMethod: "Transfer"})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if resp.PaymentMethod != "Transfer" || !resp.Transaction.TotalAmount.Equal(decimal.NewFromInt(1600)) {
		t.Fatalf("unexpected checkout response %+v", resp)
	}
	if got := stockOf(t, svc, "prod_6"); got != 0 {
		t.Fatalf("expected yoga mats sold out, got %d", got)
	}

	cart, err := svc.GetCart(ctx)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if cart.ItemCount != 0 {
		t.Fatalf("expected empty cart, got %d items", cart.ItemCount)
	}
	if _, err := svc.Checkout(ctx, domain.CheckoutRequest{Name: "Dewi", Email: "dewi@example.com", Address: "Bandung"}); !errors.Is(err, reconcile.ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
}

func TestCartsAreIsolatedPerUser(t *testing.T) {
	svc := newTestService()

	if _, err := svc.AddToCart(customerContext("ani"), domain.CartItemRequest{ProductID: "prod_2", Quantity: 1}); err != nil {
		t.Fatalf("add to cart: %v", err)
	}
	other, err := svc.GetCart(customerContext("budi"))
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if other.ItemCount != 0 {
		t.Fatalf("expected budi's cart empty, got %d", other.ItemCount)
	}
	if _, err := svc.GetCart(context.Background()); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected anonymous cart access to fail, got %v", err)
	}
}

func TestImportProductsCSV(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	input := "\ufeffNo,Nama Produk,Harga (Rp),Stock Qty,Deskripsi,AI Hint\n" +
		"1,Teh Melati,12500,30,Teh celup,tea\n" +
		"2,Gula Aren,abc,5,,\n" +
		"3,Kecap,9000,-1,,\n" +
		"4,Sambal,15000.555,8,Pedas,chili\n"
	result, err := svc.ImportProductsCSV(ctx, strings.NewReader(input))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(result.Created) != 2 {
		t.Fatalf("expected 2 created, got %d", len(result.Created))
	}
	if len(result.Skipped) != 2 || result.Skipped[0].Row != 3 || result.Skipped[1].Row != 4 {
		t.Fatalf("unexpected skipped rows %+v", result.Skipped)
	}
	if result.Created[1].Price.StringFixed(2) != "15000.56" || result.Created[1].ImageURL == "" {
		t.Fatalf("unexpected imported product %+v", result.Created[1])
	}

	_, err = svc.ImportProductsCSV(ctx, strings.NewReader("Name,Price\n"))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for bad header, got %v", err)
	}
}

func TestRestockProduct(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	product, err := svc.RestockProduct(ctx, "prod_4", domain.RestockRequest{Quantity: 5})
	if err != nil {
		t.Fatalf("restock: %v", err)
	}
	if product.Stock != 20 {
		t.Fatalf("expected stock 20, got %d", product.Stock)
	}
	if _, err := svc.RestockProduct(ctx, "prod_4", domain.RestockRequest{Quantity: 0}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCartRecommendationsFallBackToCategory(t *testing.T) {
	svc := newTestService()
	ctx := customerContext("customer")

	empty, err := svc.CartRecommendations(ctx)
	if err != nil {
		t.Fatalf("recommendations: %v", err)
	}
	if len(empty.Products) != 0 || empty.Source != "none" {
		t.Fatalf("expected no suggestions for empty cart, got %+v", empty)
	}

	if _, err := svc.AddToCart(ctx, domain.CartItemRequest{ProductID: "prod_2", Quantity: 1}); err != nil {
		t.Fatalf("add to cart: %v", err)
	}
	resp, err := svc.CartRecommendations(ctx)
	if err != nil {
		t.Fatalf("recommendations: %v", err)
	}
	if len(resp.Products) != 1 || resp.Products[0].ID != "prod_8" {
		t.Fatalf("expected The Art of Coding suggested, got %+v", resp.Products)
	}
}

func TestUpdateProductKeepsStockReservedByConcurrentSale(t *testing.T) {
	base := memory.NewSeeded(zap.NewNop())
	seller := New(base, nil, zap.NewNop())
	repo := &saleDuringUpdateRepo{Store: base}
	repo.sell = func() {
		if _, err := seller.PlaceOrder(adminContext(), domain.PlaceOrderRequest{
			Lines: []domain.OrderLine{{ProductID: "prod_1", Quantity: 3}},
		}); err != nil {
			t.Errorf("concurrent sale: %v", err)
		}
	}
	svc := New(repo, nil, zap.NewNop())

	price := decimal.NewFromInt(1100)
	updated, err := svc.UpdateProduct(adminContext(), "prod_1", domain.ProductUpdateRequest{Price: &price})
	if err != nil {
		t.Fatalf("update product: %v", err)
	}
	if updated.Stock != 7 || !updated.Price.Equal(price) {
		t.Fatalf("expected stock 7 and price 1100, got %+v", updated)
	}
	if got := stockOf(t, seller, "prod_1"); got != 7 {
		t.Fatalf("expected stock 7 after price-only update, got %d", got)
	}
}

func TestUpdateProductRacingSalesLosesNoStock(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := svc.PlaceOrder(ctx, domain.PlaceOrderRequest{
				Lines: []domain.OrderLine{{ProductID: "prod_1", Quantity: 1}},
			}); err != nil {
				t.Errorf("place order: %v", err)
			}
		}()
		go func(i int) {
			defer wg.Done()
			price := decimal.NewFromInt(int64(1000 + i))
			if _, err := svc.UpdateProduct(ctx, "prod_1", domain.ProductUpdateRequest{Price: &price}); err != nil {
				t.Errorf("update product: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if got := stockOf(t, svc, "prod_1"); got != 0 {
		t.Fatalf("expected every sold unit to stay deducted, got stock %d", got)
	}
}

func TestGetOrderHidesLedgerRecordsFromCustomers(t *testing.T) {
	svc := newTestService()

	if _, err := svc.GetOrder(customerContext("customer"), "txn_expense_1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for customer reading an expense, got %v", err)
	}
	if _, err := svc.GetOrder(customerContext("customer"), "txn_income_1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for customer reading an income, got %v", err)
	}
	if _, err := svc.GetOrder(customerContext("customer"), "txn_2"); err != nil {
		t.Fatalf("customer should read a sale: %v", err)
	}
	expense, err := svc.GetOrder(adminContext(), "txn_expense_1")
	if err != nil {
		t.Fatalf("admin get expense: %v", err)
	}
	if expense.Type != domain.TxTypeExpense {
		t.Fatalf("expected expense record, got %+v", expense)
	}
}

func TestEditOrderRejectsNegativePrice(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()
	price := decimal.NewFromInt(-500)

	_, err := svc.EditOrder(ctx, "txn_2", domain.EditOrderRequest{
		Items: []domain.EditOrderItem{{ProductID: "prod_3", Quantity: 2, Price: &price}},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	order, err := svc.GetOrder(ctx, "txn_2")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if !order.TotalAmount.Equal(decimal.NewFromInt(50)) || order.Items[0].Price.IsNegative() {
		t.Fatalf("expected txn_2 unchanged, got %+v", order)
	}
	if got := stockOf(t, svc, "prod_3"); got != 100 {
		t.Fatalf("expected stock 100, got %d", got)
	}
}

func TestEditOrderTrimsProductIDs(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	edited, err := svc.EditOrder(ctx, "txn_2", domain.EditOrderRequest{
		Items: []domain.EditOrderItem{{ProductID: " prod_4 ", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("edit order: %v", err)
	}
	if edited.Items[0].ProductID != "prod_4" || edited.Items[0].Name != "Espresso Machine" {
		t.Fatalf("unexpected edited items %+v", edited.Items)
	}
	if got := stockOf(t, svc, "prod_4"); got != 14 {
		t.Fatalf("expected prod_4 stock 14, got %d", got)
	}
	if got := stockOf(t, svc, "prod_3"); got != 102 {
		t.Fatalf("expected prod_3 restocked to 102, got %d", got)
	}
}
