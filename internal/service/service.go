package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/backend/internal/cart"
	"storefront/backend/internal/domain"
	"storefront/backend/internal/recommendation"
	"storefront/backend/internal/store"
	"storefront/backend/internal/xid"
)

var (
	ErrForbidden   = errors.New("admin role required")
	ErrValidation  = errors.New("validation failed")
	ErrWrongType   = errors.New("transaction is not a sale")
	ErrEmptyResult = errors.New("order must keep at least one item")
)

const placeholderImage = "https://placehold.co/600x400.png"

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo        store.Repository
	recommender *recommendation.Engine
	carts       *cart.Registry
	validate    *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

func New(repo store.Repository, recommender *recommendation.Engine, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recommender == nil {
		recommender = recommendation.NewEngine(nil, nil, 0, 0, logger)
	}

	return &Service{
		repo:        repo,
		recommender: recommender,
		carts:       cart.NewRegistry(),
		validate:    validator.New(),
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, filter)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]string, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	req.ImageURL = strings.TrimSpace(req.ImageURL)
	if err := s.validate.Struct(req); err != nil {
		return domain.Product{}, validationError(err)
	}
	price := domain.RoundMoney(req.Price)
	if !price.IsPositive() {
		return domain.Product{}, fmt.Errorf("%w: price must be greater than 0", ErrValidation)
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:          xid.New("prod"),
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		Price:       price,
		Category:    req.Category,
		ImageURL:    req.ImageURL,
		Stock:       req.Stock,
		DataAIHint:  strings.TrimSpace(req.DataAIHint),
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", created.ID, zap.String("name", created.Name), zap.Int("stock", created.Stock))
	return *created, nil
}

// UpdateProduct applies a partial update. The read and the write share one
// unit of work.
func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	id = strings.TrimSpace(id)
	var saved domain.Product
	err := s.repo.Atomic(ctx, func(u store.Unit) error {
		existing, err := u.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		updated, err := applyProductUpdate(*existing, req)
		if err != nil {
			return err
		}
		written, err := u.UpdateProduct(ctx, updated)
		if err != nil {
			return err
		}
		saved = *written
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", saved.ID, zap.String("price", saved.Price.StringFixed(domain.MoneyPlaces)), zap.Int("stock", saved.Stock))
	return saved, nil
}

func applyProductUpdate(updated domain.Product, req domain.ProductUpdateRequest) (domain.Product, error) {
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, fmt.Errorf("%w: name is required", ErrValidation)
		}
		updated.Name = name
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.Price != nil {
		price := domain.RoundMoney(*req.Price)
		if !price.IsPositive() {
			return domain.Product{}, fmt.Errorf("%w: price must be greater than 0", ErrValidation)
		}
		updated.Price = price
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			return domain.Product{}, fmt.Errorf("%w: category is required", ErrValidation)
		}
		updated.Category = category
	}
	if req.ImageURL != nil {
		imageURL := strings.TrimSpace(*req.ImageURL)
		if imageURL == "" {
			return domain.Product{}, fmt.Errorf("%w: image_url is required", ErrValidation)
		}
		updated.ImageURL = imageURL
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return domain.Product{}, fmt.Errorf("%w: stock must not be negative", ErrValidation)
		}
		updated.Stock = *req.Stock
	}
	if req.DataAIHint != nil {
		updated.DataAIHint = strings.TrimSpace(*req.DataAIHint)
	}
	return updated, nil
}

// DeleteProduct removes a catalog entry. Transactions keep their item
// snapshots of it.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}

	id = strings.TrimSpace(id)
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "product_delete", id)
	return nil
}

func (s *Service) RestockProduct(ctx context.Context, id string, req domain.RestockRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	if err := s.validate.Struct(req); err != nil {
		return domain.Product{}, validationError(err)
	}

	id = strings.TrimSpace(id)
	var restocked domain.Product
	err := s.repo.Atomic(ctx, func(u store.Unit) error {
		product, err := u.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		product.Stock += req.Quantity
		if err := u.SetStock(ctx, id, product.Stock); err != nil {
			return err
		}
		restocked = *product
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_restock", id, zap.Int("added", req.Quantity), zap.Int("stock", restocked.Stock))
	return restocked, nil
}

var importHeader = []string{"No", "Nama Produk", "Harga (Rp)", "Stock Qty", "Deskripsi", "AI Hint"}

// ImportProductsCSV creates one product per valid data row. Rows that fail
// validation are reported with their 1-based line number and skipped.
func (s *Service) ImportProductsCSV(ctx context.Context, r io.Reader) (domain.ImportResult, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.ImportResult{}, err
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return domain.ImportResult{}, fmt.Errorf("%w: missing header row", ErrValidation)
	}
	if len(header) < len(importHeader) {
		return domain.ImportResult{}, fmt.Errorf("%w: expected columns %s", ErrValidation, strings.Join(importHeader, ","))
	}
	for i, want := range importHeader {
		if !strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff")), want) {
			return domain.ImportResult{}, fmt.Errorf("%w: expected columns %s", ErrValidation, strings.Join(importHeader, ","))
		}
	}

	result := domain.ImportResult{Created: []domain.Product{}, Skipped: []domain.ImportRowError{}}
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			result.Skipped = append(result.Skipped, domain.ImportRowError{Row: line, Reason: err.Error()})
			continue
		}

		product, reason := parseImportRow(record)
		if reason != "" {
			result.Skipped = append(result.Skipped, domain.ImportRowError{Row: line, Reason: reason})
			continue
		}
		created, err := s.repo.CreateProduct(ctx, product)
		if err != nil {
			result.Skipped = append(result.Skipped, domain.ImportRowError{Row: line, Reason: err.Error()})
			continue
		}
		result.Created = append(result.Created, *created)
	}

	s.logAudit(ctx, "product_import", "", zap.Int("created", len(result.Created)), zap.Int("skipped", len(result.Skipped)))
	return result, nil
}

func parseImportRow(record []string) (domain.Product, string) {
	if len(record) < len(importHeader) {
		return domain.Product{}, "missing columns"
	}

	name := strings.TrimSpace(record[1])
	if name == "" {
		return domain.Product{}, "product name is required"
	}
	price, err := decimal.NewFromString(strings.TrimSpace(record[2]))
	if err != nil {
		return domain.Product{}, "price is not a number"
	}
	price = domain.RoundMoney(price)
	if !price.IsPositive() {
		return domain.Product{}, "price must be greater than 0"
	}
	stock, err := strconv.Atoi(strings.TrimSpace(record[3]))
	if err != nil || stock < 0 {
		return domain.Product{}, "stock must be a non-negative integer"
	}

	return domain.Product{
		ID:          xid.New("prod"),
		Name:        name,
		Description: strings.TrimSpace(record[4]),
		Price:       price,
		ImageURL:    placeholderImage,
		Stock:       stock,
		DataAIHint:  strings.TrimSpace(record[5]),
	}, ""
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return ErrForbidden
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(fields, ", "))
}

func (s *Service) logAudit(ctx context.Context, action string, entityID string, fields ...zap.Field) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}
	base := []zap.Field{
		zap.String("action", action),
		zap.String("entity_id", entityID),
		zap.String("actor", actor.Username),
		zap.String("actor_role", actor.Role),
	}
	s.logger.Info("audit", append(base, fields...)...)
}
