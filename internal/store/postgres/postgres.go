package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/backend/internal/domain"
	"storefront/backend/internal/store"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func New(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sqlx.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the tables the store needs if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";\n") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	s.logger.Info("postgres schema ready")
	return nil
}

const productColumns = `id, name, description, price, category, image_url, stock, data_ai_hint`

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	conditions := make([]string, 0, 2)
	args := make([]any, 0, 2)
	if category := strings.TrimSpace(filter.Category); category != "" {
		args = append(args, category)
		conditions = append(conditions, fmt.Sprintf("lower(category) = lower($%d)", len(args)))
	}
	if query := strings.TrimSpace(filter.Query); query != "" {
		args = append(args, "%"+query+"%")
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", len(args)))
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY category, name`

	products := make([]domain.Product, 0, 64)
	if err := s.db.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]string, error) {
	categories := make([]string, 0, 8)
	err := s.db.SelectContext(ctx, &categories, `
		SELECT DISTINCT category
		FROM products
		WHERE category <> ''
		ORDER BY category
	`)
	if err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if !validProduct(product) {
		return nil, store.ErrInvalidProduct
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO products (`+productColumns+`, created_at, updated_at)
		VALUES (:id, :name, :description, :price, :category, :image_url, :stock, :data_ai_hint, now(), now())
	`, product)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidProduct
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	return updateProduct(ctx, s.db, product)
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return getProduct(ctx, s.db, id, false)
}

func (s *Store) SetStock(ctx context.Context, id string, stock int) error {
	return setStock(ctx, s.db, id, stock)
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return getTransaction(ctx, s.db, id)
}

func (s *Store) UpsertTransaction(ctx context.Context, tx domain.Transaction) error {
	return s.Atomic(ctx, func(u store.Unit) error {
		return u.UpsertTransaction(ctx, tx)
	})
}

func (s *Store) RemoveTransaction(ctx context.Context, id string) error {
	return removeTransaction(ctx, s.db, id)
}

type transactionRow struct {
	ID          string          `db:"id"`
	Date        time.Time       `db:"date"`
	TotalAmount decimal.Decimal `db:"total_amount"`
	Status      string          `db:"status"`
	Type        string          `db:"type"`
	Description string          `db:"description"`
	Category    string          `db:"category"`
}

func (r transactionRow) toDomain() domain.Transaction {
	return domain.Transaction{
		ID:          r.ID,
		Date:        r.Date.UTC(),
		Items:       []domain.TransactionItem{},
		TotalAmount: r.TotalAmount,
		Status:      r.Status,
		Type:        domain.TransactionType(r.Type),
		Description: r.Description,
		Category:    r.Category,
	}
}

type itemRow struct {
	TransactionID string          `db:"transaction_id"`
	ProductID     string          `db:"product_id"`
	Name          string          `db:"name"`
	Quantity      int             `db:"quantity"`
	Price         decimal.Decimal `db:"price"`
}

func (s *Store) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	conditions := make([]string, 0, 3)
	args := make([]any, 0, 3)
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		conditions = append(conditions, fmt.Sprintf("date >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		conditions = append(conditions, fmt.Sprintf("date < $%d", len(args)))
	}

	query := `SELECT id, date, total_amount, status, type, description, category FROM transactions`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY date DESC, id ASC`

	rows := make([]transactionRow, 0, 64)
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []domain.Transaction{}, nil
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	items := make([]itemRow, 0, len(rows))
	err := s.db.SelectContext(ctx, &items, `
		SELECT transaction_id, product_id, name, quantity, price
		FROM transaction_items
		WHERE transaction_id = ANY($1)
		ORDER BY transaction_id, line_no
	`, ids)
	if err != nil {
		return nil, err
	}
	itemsByTx := make(map[string][]domain.TransactionItem, len(rows))
	for _, item := range items {
		itemsByTx[item.TransactionID] = append(itemsByTx[item.TransactionID], domain.TransactionItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}

	result := make([]domain.Transaction, 0, len(rows))
	for _, row := range rows {
		tx := row.toDomain()
		if lines, ok := itemsByTx[row.ID]; ok {
			tx.Items = lines
		}
		result = append(result, tx)
	}
	return result, nil
}

// Atomic runs fn inside a serializable transaction. Product reads made
// through the unit take row locks until commit.
func (s *Store) Atomic(ctx context.Context, fn func(store.Unit) error) error {
	pgTx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	if err := fn(&unit{tx: pgTx}); err != nil {
		return err
	}
	return pgTx.Commit()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidTransaction
	}
	if user.Role == "" {
		user.Role = domain.RoleCustomer
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO app_users (username, password_hash, role, created_at, updated_at)
		VALUES (:username, :password_hash, :role, :created_at, now())
	`, user)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateUser
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	users := make([]domain.UserAccount, 0, 16)
	err := s.db.SelectContext(ctx, &users, `
		SELECT username, password_hash, role, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].CreatedAt = users[i].CreatedAt.UTC()
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password_hash = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

type unit struct {
	tx *sqlx.Tx
}

func (u *unit) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return getProduct(ctx, u.tx, id, true)
}

func (u *unit) SetStock(ctx context.Context, id string, stock int) error {
	return setStock(ctx, u.tx, id, stock)
}

func (u *unit) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	return updateProduct(ctx, u.tx, product)
}

func (u *unit) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return getTransaction(ctx, u.tx, id)
}

func (u *unit) UpsertTransaction(ctx context.Context, tx domain.Transaction) error {
	if !validTransaction(tx) {
		return store.ErrInvalidTransaction
	}

	_, err := u.tx.ExecContext(ctx, `
		INSERT INTO transactions (id, date, total_amount, status, type, description, category)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET
			date = EXCLUDED.date,
			total_amount = EXCLUDED.total_amount,
			status = EXCLUDED.status,
			type = EXCLUDED.type,
			description = EXCLUDED.description,
			category = EXCLUDED.category
	`, tx.ID, tx.Date.UTC(), tx.TotalAmount, tx.Status, string(tx.Type), tx.Description, tx.Category)
	if err != nil {
		return err
	}

	if _, err := u.tx.ExecContext(ctx, `DELETE FROM transaction_items WHERE transaction_id = $1`, tx.ID); err != nil {
		return err
	}
	for i, item := range tx.Items {
		_, err := u.tx.ExecContext(ctx, `
			INSERT INTO transaction_items (transaction_id, line_no, product_id, name, quantity, price)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, tx.ID, i, item.ProductID, item.Name, item.Quantity, item.Price)
		if err != nil {
			return err
		}
	}
	return nil
}

func (u *unit) RemoveTransaction(ctx context.Context, id string) error {
	return removeTransaction(ctx, u.tx, id)
}

func getProduct(ctx context.Context, q sqlx.QueryerContext, id string, forUpdate bool) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var product domain.Product
	if err := sqlx.GetContext(ctx, q, &product, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func updateProduct(ctx context.Context, e sqlx.ExtContext, product domain.Product) (*domain.Product, error) {
	if !validProduct(product) {
		return nil, store.ErrInvalidProduct
	}

	res, err := sqlx.NamedExecContext(ctx, e, `
		UPDATE products
		SET name = :name, description = :description, price = :price, category = :category,
			image_url = :image_url, stock = :stock, data_ai_hint = :data_ai_hint, updated_at = now()
		WHERE id = :id
	`, product)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func setStock(ctx context.Context, e sqlx.ExecerContext, id string, stock int) error {
	if stock < 0 {
		return store.ErrInvalidProduct
	}
	res, err := e.ExecContext(ctx, `
		UPDATE products
		SET stock = $2, updated_at = now()
		WHERE id = $1
	`, id, stock)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func getTransaction(ctx context.Context, q sqlx.QueryerContext, id string) (*domain.Transaction, error) {
	var row transactionRow
	err := sqlx.GetContext(ctx, q, &row, `
		SELECT id, date, total_amount, status, type, description, category
		FROM transactions
		WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	items := make([]itemRow, 0, 4)
	err = sqlx.SelectContext(ctx, q, &items, `
		SELECT transaction_id, product_id, name, quantity, price
		FROM transaction_items
		WHERE transaction_id = $1
		ORDER BY line_no
	`, id)
	if err != nil {
		return nil, err
	}

	tx := row.toDomain()
	for _, item := range items {
		tx.Items = append(tx.Items, domain.TransactionItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}
	return &tx, nil
}

func removeTransaction(ctx context.Context, e sqlx.ExecerContext, id string) error {
	res, err := e.ExecContext(ctx, `DELETE FROM transactions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
