package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"storefront/backend/internal/domain"
	"storefront/backend/internal/store"
)

const placeholderImage = "https://placehold.co/600x400.png"

type Store struct {
	mu               sync.RWMutex
	logger           *zap.Logger
	products         map[string]domain.Product
	transactionsByID map[string]*domain.Transaction
	usersByUsername  map[string]domain.UserAccount
}

// New returns an empty store. Use NewSeeded for the demo catalog.
func New(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		logger:           logger,
		products:         make(map[string]domain.Product),
		transactionsByID: make(map[string]*domain.Transaction),
		usersByUsername:  make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the demo accounts. Passwords come from
// SEED_ADMIN_PASSWORD and SEED_CUSTOMER_PASSWORD when set.
func (s *Store) seedUsers() {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "adminpass")
	customerPwd := envOr("SEED_CUSTOMER_PASSWORD", "customerpass")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CUSTOMER_PASSWORD") == "" {
		s.logger.Warn("using default demo credentials; set SEED_ADMIN_PASSWORD and SEED_CUSTOMER_PASSWORD to override")
	}

	now := time.Now().UTC()
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"customer", customerPwd, domain.RoleCustomer},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			s.logger.Error("hash seed password", zap.String("username", u.username), zap.Error(err))
			continue
		}
		s.usersByUsername[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			CreatedAt: now,
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded(logger *zap.Logger) *Store {
	s := New(logger)

	products := []domain.Product{
		{ID: "prod_1", Name: "Modern Laptop", Description: "A sleek and powerful laptop for all your needs.", Price: decimal.NewFromInt(1200), Category: "Electronics", Stock: 10, DataAIHint: "electronics computer"},
		{ID: "prod_2", Name: "Classic Novel", Description: "A timeless story that has captivated readers for generations.", Price: decimal.NewFromInt(20), Category: "Books", Stock: 50, DataAIHint: "book literature"},
		{ID: "prod_3", Name: "Cotton T-Shirt", Description: "A comfortable and stylish t-shirt made from 100% cotton.", Price: decimal.NewFromInt(25), Category: "Clothing", Stock: 100, DataAIHint: "clothing apparel"},
		{ID: "prod_4", Name: "Espresso Machine", Description: "Brew cafe-quality espresso at home.", Price: decimal.NewFromInt(300), Category: "Home Goods", Stock: 15, DataAIHint: "kitchen appliance"},
		{ID: "prod_5", Name: "Wireless Headphones", Description: "Immersive sound with noise-cancelling technology.", Price: decimal.NewFromInt(150), Category: "Electronics", Stock: 30, DataAIHint: "electronics audio"},
		{ID: "prod_6", Name: "Yoga Mat", Description: "A non-slip mat for your yoga and fitness routines.", Price: decimal.NewFromInt(40), Category: "Sports", Stock: 40, DataAIHint: "sports fitness"},
		{ID: "prod_7", Name: "Smartphone Pro", Description: "The latest smartphone with a stunning display and camera.", Price: decimal.NewFromInt(999), Category: "Electronics", Stock: 25, DataAIHint: "electronics phone"},
		{ID: "prod_8", Name: "The Art of Coding", Description: "A guide to writing clean and efficient code.", Price: decimal.NewFromInt(45), Category: "Books", Stock: 60, DataAIHint: "book programming"},
		{ID: "prod_9", Name: "Designer Jeans", Description: "Stylish and durable jeans for everyday wear.", Price: decimal.NewFromInt(120), Category: "Clothing", Stock: 35, DataAIHint: "clothing denim"},
		{ID: "prod_10", Name: "Smart Desk Lamp", Description: "An adjustable lamp with smart features.", Price: decimal.NewFromInt(75), Category: "Home Goods", Stock: 22, DataAIHint: "home lighting"},
	}
	for _, p := range products {
		p.ImageURL = placeholderImage
		s.products[p.ID] = p
	}

	now := time.Now().UTC()
	day := 24 * time.Hour
	transactions := []domain.Transaction{
		{
			ID:   "txn_1",
			Date: now.Add(-2 * day),
			Items: []domain.TransactionItem{
				{ProductID: "prod_1", Name: "Modern Laptop", Quantity: 1, Price: decimal.NewFromInt(1200)},
				{ProductID: "prod_5", Name: "Wireless Headphones", Quantity: 1, Price: decimal.NewFromInt(150)},
			},
			TotalAmount: decimal.NewFromInt(1350),
			Status:      domain.TxStatusCompleted,
			Type:        domain.TxTypeSale,
		},
		{
			ID:   "txn_2",
			Date: now.Add(-5 * day),
			Items: []domain.TransactionItem{
				{ProductID: "prod_3", Name: "Cotton T-Shirt", Quantity: 2, Price: decimal.NewFromInt(25)},
			},
			TotalAmount: decimal.NewFromInt(50),
			Status:      domain.TxStatusCompleted,
			Type:        domain.TxTypeSale,
		},
		{
			ID:          "txn_income_1",
			Date:        now.Add(-7 * day),
			Items:       []domain.TransactionItem{},
			TotalAmount: decimal.NewFromInt(500),
			Status:      domain.TxStatusCompleted,
			Type:        domain.TxTypeIncome,
			Description: "Consulting Services Rendered",
			Category:    "Services",
		},
		{
			ID:          "txn_expense_1",
			Date:        now.Add(-3 * day),
			Items:       []domain.TransactionItem{},
			TotalAmount: decimal.NewFromInt(-75),
			Status:      domain.TxStatusCompleted,
			Type:        domain.TxTypeExpense,
			Description: "Office Supplies Purchase",
			Category:    "Office Expenses",
		},
	}
	for i := range transactions {
		s.transactionsByID[transactions[i].ID] = domain.CloneTransaction(&transactions[i])
	}

	s.seedUsers()
	return s
}

func (s *Store) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category := strings.TrimSpace(filter.Category)
	query := strings.ToLower(strings.TrimSpace(filter.Query))

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if category != "" && !strings.EqualFold(p.Category, category) {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(p.Name), query) {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.Category, b.Category)
	})

	return products, nil
}

func (s *Store) ListCategories(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	categories := make([]string, 0, 8)
	for _, p := range s.products {
		if p.Category == "" {
			continue
		}
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		categories = append(categories, p.Category)
	}
	slices.Sort(categories)
	return categories, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !validProduct(product) {
		return nil, store.ErrInvalidProduct
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrInvalidProduct
	}

	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; !exists {
		return nil, store.ErrNotFound
	}
	if !validProduct(product) {
		return nil, store.ErrInvalidProduct
	}

	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getProductLocked(id)
}

func (s *Store) SetStock(_ context.Context, id string, stock int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setStockLocked(id, stock)
}

func (s *Store) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, exists := s.transactionsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return domain.CloneTransaction(tx), nil
}

func (s *Store) UpsertTransaction(_ context.Context, tx domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !validTransaction(tx) {
		return store.ErrInvalidTransaction
	}
	s.transactionsByID[tx.ID] = domain.CloneTransaction(&tx)
	return nil
}

func (s *Store) RemoveTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactionsByID[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.transactionsByID, id)
	return nil
}

func (s *Store) ListTransactions(_ context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, len(s.transactionsByID))
	for _, tx := range s.transactionsByID {
		if filter.Type != "" && tx.Type != filter.Type {
			continue
		}
		if !filter.From.IsZero() && tx.Date.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !tx.Date.Before(filter.To) {
			continue
		}
		result = append(result, *domain.CloneTransaction(tx))
	}

	slices.SortFunc(result, func(a, b domain.Transaction) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return result, nil
}

// Atomic runs fn under the write lock against a staging unit. Staged stock
// and ledger writes are applied only when fn returns nil.
func (s *Store) Atomic(_ context.Context, fn func(store.Unit) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unit := &stagingUnit{
		store:    s,
		products: make(map[string]domain.Product),
		stocks:   make(map[string]int),
		upserts:  make(map[string]*domain.Transaction),
		removals: make(map[string]struct{}),
	}
	if err := fn(unit); err != nil {
		return err
	}

	for id, product := range unit.products {
		s.products[id] = product
	}
	for id, stock := range unit.stocks {
		if err := s.setStockLocked(id, stock); err != nil {
			return err
		}
	}
	for id := range unit.removals {
		delete(s.transactionsByID, id)
	}
	for id, tx := range unit.upserts {
		s.transactionsByID[id] = tx
	}
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrDuplicateUser
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCustomer
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) getProductLocked(id string) (*domain.Product, error) {
	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) setStockLocked(id string, stock int) error {
	if stock < 0 {
		return store.ErrInvalidProduct
	}
	product, exists := s.products[id]
	if !exists {
		return store.ErrNotFound
	}
	product.Stock = stock
	s.products[id] = product
	return nil
}

// stagingUnit overlays pending writes on the store. Its methods run with
// s.mu already held by Atomic.
type stagingUnit struct {
	store    *Store
	products map[string]domain.Product
	stocks   map[string]int
	upserts  map[string]*domain.Transaction
	removals map[string]struct{}
}

func (u *stagingUnit) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	if staged, ok := u.products[id]; ok {
		return &staged, nil
	}
	product, err := u.store.getProductLocked(id)
	if err != nil {
		return nil, err
	}
	if stock, ok := u.stocks[id]; ok {
		product.Stock = stock
	}
	return product, nil
}

func (u *stagingUnit) SetStock(_ context.Context, id string, stock int) error {
	if stock < 0 {
		return store.ErrInvalidProduct
	}
	if staged, ok := u.products[id]; ok {
		staged.Stock = stock
		u.products[id] = staged
		return nil
	}
	if _, exists := u.store.products[id]; !exists {
		return store.ErrNotFound
	}
	u.stocks[id] = stock
	return nil
}

// UpdateProduct stages a full row. It replaces any stock staged earlier in
// the same unit.
func (u *stagingUnit) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if _, exists := u.store.products[product.ID]; !exists {
		return nil, store.ErrNotFound
	}
	if !validProduct(product) {
		return nil, store.ErrInvalidProduct
	}
	delete(u.stocks, product.ID)
	u.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (u *stagingUnit) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	if tx, ok := u.upserts[id]; ok {
		return domain.CloneTransaction(tx), nil
	}
	if _, removed := u.removals[id]; removed {
		return nil, store.ErrNotFound
	}
	tx, exists := u.store.transactionsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	return domain.CloneTransaction(tx), nil
}

func (u *stagingUnit) UpsertTransaction(_ context.Context, tx domain.Transaction) error {
	if !validTransaction(tx) {
		return store.ErrInvalidTransaction
	}
	delete(u.removals, tx.ID)
	u.upserts[tx.ID] = domain.CloneTransaction(&tx)
	return nil
}

func (u *stagingUnit) RemoveTransaction(ctx context.Context, id string) error {
	if _, err := u.GetTransaction(ctx, id); err != nil {
		return err
	}
	delete(u.upserts, id)
	u.removals[id] = struct{}{}
	return nil
}

func validProduct(p domain.Product) bool {
	if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.Name) == "" {
		return false
	}
	return !p.Price.IsNegative() && p.Stock >= 0
}

func validTransaction(tx domain.Transaction) bool {
	if strings.TrimSpace(tx.ID) == "" || !tx.Type.Valid() {
		return false
	}
	if tx.Type == domain.TxTypeSale && len(tx.Items) == 0 {
		return false
	}
	for _, item := range tx.Items {
		if item.Quantity < 0 {
			return false
		}
	}
	return true
}
