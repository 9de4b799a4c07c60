package store

import (
	"context"
	"errors"

	"storefront/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidProduct     = errors.New("invalid product")
	ErrDuplicateUser      = errors.New("user already exists")
)

// Catalog is the stock-facing view of the product table used inside a unit
// of work.
type Catalog interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	SetStock(ctx context.Context, id string, stock int) error
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
}

// Ledger holds transactions keyed by id.
type Ledger interface {
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	UpsertTransaction(ctx context.Context, tx domain.Transaction) error
	RemoveTransaction(ctx context.Context, id string) error
}

// Unit is the set of operations available inside Atomic. Writes made
// through a Unit are visible to later reads of the same Unit and are
// discarded if the callback returns an error.
type Unit interface {
	Catalog
	Ledger
}

type Repository interface {
	Catalog
	Ledger

	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	ListCategories(ctx context.Context) ([]string, error)

	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error

	// Atomic runs fn against a Unit. Either every write fn made is
	// committed or none is.
	Atomic(ctx context.Context, fn func(Unit) error) error
}
