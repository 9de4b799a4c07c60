package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          string          `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Description string          `json:"description" db:"description"`
	Price       decimal.Decimal `json:"price" db:"price"`
	Category    string          `json:"category" db:"category"`
	ImageURL    string          `json:"image_url" db:"image_url"`
	Stock       int             `json:"stock" db:"stock"`
	DataAIHint  string          `json:"data_ai_hint,omitempty" db:"data_ai_hint"`
}

type ProductCreateRequest struct {
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category" validate:"required"`
	ImageURL    string          `json:"image_url" validate:"required"`
	Stock       int             `json:"stock" validate:"gte=0"`
	DataAIHint  string          `json:"data_ai_hint"`
}

type ProductUpdateRequest struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Category    *string          `json:"category,omitempty"`
	ImageURL    *string          `json:"image_url,omitempty"`
	Stock       *int             `json:"stock,omitempty"`
	DataAIHint  *string          `json:"data_ai_hint,omitempty"`
}

type ProductFilter struct {
	Category string
	Query    string
}

type RestockRequest struct {
	Quantity int `json:"quantity" validate:"gt=0"`
}

type ImportRowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

type ImportResult struct {
	Created []Product        `json:"created"`
	Skipped []ImportRowError `json:"skipped"`
}

// TransactionItem is a snapshot of a product at transaction time. It is
// copied by value and never refers back to the live catalog entry.
type TransactionItem struct {
	ProductID string          `json:"product_id" db:"product_id"`
	Name      string          `json:"name" db:"name"`
	Quantity  int             `json:"quantity" db:"quantity"`
	Price     decimal.Decimal `json:"price" db:"price"`
}

type TransactionType string

const (
	TxTypeSale    TransactionType = "sale"
	TxTypeIncome  TransactionType = "income"
	TxTypeExpense TransactionType = "expense"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TxTypeSale, TxTypeIncome, TxTypeExpense:
		return true
	default:
		return false
	}
}

// TxStatusPending and TxStatusCancelled are part of the data model but no
// operation moves a transaction into them.
const (
	TxStatusPending   = "Pending"
	TxStatusCompleted = "Completed"
	TxStatusCancelled = "Cancelled"
)

type Transaction struct {
	ID          string            `json:"id"`
	Date        time.Time         `json:"date"`
	Items       []TransactionItem `json:"items"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
	Status      string            `json:"status"`
	Type        TransactionType   `json:"type"`
	Description string            `json:"description,omitempty"`
	Category    string            `json:"category,omitempty"`
}

type TransactionFilter struct {
	Type TransactionType
	From time.Time
	To   time.Time
}

type OrderLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type PlaceOrderRequest struct {
	Lines       []OrderLine `json:"lines"`
	Description string      `json:"description,omitempty"`
}

// EditOrderItem is one line of a replacement item set. A nil Price or an
// empty Name is filled from the original order line for the same product,
// falling back to the current catalog entry.
type EditOrderItem struct {
	ProductID string           `json:"product_id"`
	Quantity  int              `json:"quantity"`
	Name      string           `json:"name,omitempty"`
	Price     *decimal.Decimal `json:"price,omitempty"`
}

type EditOrderRequest struct {
	Items []EditOrderItem `json:"items"`
}

type ManualRecordRequest struct {
	Type        TransactionType `json:"type" validate:"required,oneof=income expense"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"required"`
	Category    string          `json:"category"`
}

type CartLine struct {
	Product  Product `json:"product"`
	Quantity int     `json:"quantity"`
}

type CartView struct {
	Lines     []CartLine      `json:"lines"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
}

type CartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CheckoutRequest struct {
	Name          string `json:"name" validate:"required"`
	Email         string `json:"email" validate:"required,email"`
	Address       string `json:"address" validate:"required"`
	PaymentMethod string `json:"payment_method"`
}

type CheckoutResponse struct {
	Transaction   Transaction `json:"transaction"`
	PaymentMethod string      `json:"payment_method"`
}

type FinancialReport struct {
	Period           string          `json:"period"`
	TotalSales       decimal.Decimal `json:"total_sales"`
	TotalIncome      decimal.Decimal `json:"total_income"`
	TotalExpenses    decimal.Decimal `json:"total_expenses"`
	NetProfit        decimal.Decimal `json:"net_profit"`
	TransactionCount int             `json:"transaction_count"`
	ProductCount     int             `json:"product_count"`
	Transactions     []Transaction   `json:"transactions"`
}

type RecommendationResponse struct {
	Products []Product `json:"products"`
	Source   string    `json:"source"`
}

const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string    `db:"username"`
	Password  string    `db:"password_hash"`
	Role      string    `db:"role"`
	CreatedAt time.Time `db:"created_at"`
}
