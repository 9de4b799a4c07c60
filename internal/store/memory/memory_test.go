package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storefront/backend/internal/domain"
	"storefront/backend/internal/store"
)

func TestNewSeededCatalog(t *testing.T) {
	s := NewSeeded(zap.NewNop())
	ctx := context.Background()

	products, err := s.ListProducts(ctx, domain.ProductFilter{})
	require.NoError(t, err)
	assert.Len(t, products, 10)

	laptop, err := s.GetProduct(ctx, "prod_1")
	require.NoError(t, err)
	assert.Equal(t, 10, laptop.Stock)
	assert.True(t, laptop.Price.Equal(decimal.NewFromInt(1200)))

	categories, err := s.ListCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Books", "Clothing", "Electronics", "Home Goods", "Sports"}, categories)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "admin", users[0].Username)
	assert.Equal(t, domain.RoleCustomer, users[1].Role)
}

func TestListProductsFilters(t *testing.T) {
	s := NewSeeded(zap.NewNop())
	ctx := context.Background()

	electronics, err := s.ListProducts(ctx, domain.ProductFilter{Category: "electronics"})
	require.NoError(t, err)
	assert.Len(t, electronics, 3)

	matches, err := s.ListProducts(ctx, domain.ProductFilter{Query: "NOVEL"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "prod_2", matches[0].ID)
}

func TestListTransactionsNewestFirst(t *testing.T) {
	s := NewSeeded(zap.NewNop())
	ctx := context.Background()

	all, err := s.ListTransactions(ctx, domain.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "txn_1", all[0].ID)
	assert.Equal(t, "txn_income_1", all[3].ID)

	sales, err := s.ListTransactions(ctx, domain.TransactionFilter{Type: domain.TxTypeSale})
	require.NoError(t, err)
	assert.Len(t, sales, 2)

	recent, err := s.ListTransactions(ctx, domain.TransactionFilter{From: time.Now().UTC().Add(-4 * 24 * time.Hour)})
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestAtomicCommitsAllWrites(t *testing.T) {
	s := NewSeeded(zap.NewNop())
	ctx := context.Background()

	err := s.Atomic(ctx, func(u store.Unit) error {
		if err := u.SetStock(ctx, "prod_1", 4); err != nil {
			return err
		}
		staged, err := u.GetProduct(ctx, "prod_1")
		require.NoError(t, err)
		assert.Equal(t, 4, staged.Stock)

		return u.UpsertTransaction(ctx, domain.Transaction{
			ID:          "txn_sale_x",
			Date:        time.Now().UTC(),
			Items:       []domain.TransactionItem{{ProductID: "prod_1", Name: "Modern Laptop", Quantity: 6, Price: decimal.NewFromInt(1200)}},
			TotalAmount: decimal.NewFromInt(7200),
			Status:      domain.TxStatusCompleted,
			Type:        domain.TxTypeSale,
		})
	})
	require.NoError(t, err)

	product, err := s.GetProduct(ctx, "prod_1")
	require.NoError(t, err)
	assert.Equal(t, 4, product.Stock)

	_, err = s.GetTransaction(ctx, "txn_sale_x")
	assert.NoError(t, err)
}

func TestAtomicRollsBackOnError(t *testing.T) {
	s := NewSeeded(zap.NewNop())
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Atomic(ctx, func(u store.Unit) error {
		require.NoError(t, u.SetStock(ctx, "prod_1", 0))
		require.NoError(t, u.RemoveTransaction(ctx, "txn_1"))
		_, err := u.GetTransaction(ctx, "txn_1")
		assert.ErrorIs(t, err, store.ErrNotFound)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	product, err := s.GetProduct(ctx, "prod_1")
	require.NoError(t, err)
	assert.Equal(t, 10, product.Stock)

	_, err = s.GetTransaction(ctx, "txn_1")
	assert.NoError(t, err)
}

func TestSetStockRejectsNegative(t *testing.T) {
	s := NewSeeded(zap.NewNop())
	assert.ErrorIs(t, s.SetStock(context.Background(), "prod_1", -1), store.ErrInvalidProduct)
	assert.ErrorIs(t, s.SetStock(context.Background(), "missing", 1), store.ErrNotFound)
}

func TestProductLifecycle(t *testing.T) {
	s := New(nil)
	ctx := context.Background()

	p := domain.Product{ID: "prod_a", Name: "Lamp", Price: decimal.RequireFromString("9.99"), Category: "Home", Stock: 2}
	_, err := s.CreateProduct(ctx, p)
	require.NoError(t, err)

	_, err = s.CreateProduct(ctx, p)
	assert.ErrorIs(t, err, store.ErrInvalidProduct)

	p.Stock = 5
	updated, err := s.UpdateProduct(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Stock)

	require.NoError(t, s.DeleteProduct(ctx, "prod_a"))
	assert.ErrorIs(t, s.DeleteProduct(ctx, "prod_a"), store.ErrNotFound)
}

func TestCreateUserRejectsDuplicate(t *testing.T) {
	s := NewSeeded(zap.NewNop())
	err := s.CreateUser(context.Background(), domain.UserAccount{Username: "Admin", Password: "hash"})
	assert.ErrorIs(t, err, store.ErrDuplicateUser)
}

func TestAtomicUpdateProductStagesRow(t *testing.T) {
	s := NewSeeded(zap.NewNop())
	ctx := context.Background()

	err := s.Atomic(ctx, func(u store.Unit) error {
		p, err := u.GetProduct(ctx, "prod_1")
		require.NoError(t, err)
		p.Price = decimal.NewFromInt(999)
		_, err = u.UpdateProduct(ctx, *p)
		require.NoError(t, err)
		require.NoError(t, u.SetStock(ctx, "prod_1", 6))

		staged, err := u.GetProduct(ctx, "prod_1")
		require.NoError(t, err)
		assert.Equal(t, 6, staged.Stock)
		assert.True(t, staged.Price.Equal(decimal.NewFromInt(999)))
		return nil
	})
	require.NoError(t, err)

	product, err := s.GetProduct(ctx, "prod_1")
	require.NoError(t, err)
	assert.Equal(t, 6, product.Stock)
	assert.True(t, product.Price.Equal(decimal.NewFromInt(999)))

	boom := errors.New("boom")
	err = s.Atomic(ctx, func(u store.Unit) error {
		product.Name = "Renamed"
		_, err := u.UpdateProduct(ctx, *product)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	product, err = s.GetProduct(ctx, "prod_1")
	require.NoError(t, err)
	assert.Equal(t, "Modern Laptop", product.Name)
}
