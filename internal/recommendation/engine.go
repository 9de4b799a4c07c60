package recommendation

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"storefront/backend/internal/cache"
	"storefront/backend/internal/domain"
)

const maxRecommendations = 3

// Suggester proposes product names related to the names already in a cart.
// Returned names need not exist in the catalog.
type Suggester interface {
	Name() string
	Suggest(ctx context.Context, cartNames []string, catalog []domain.Product) ([]string, error)
}

type Engine struct {
	suggester Suggester
	fallback  Suggester
	cache     cache.RecommendationCache
	cacheTTL  time.Duration
	timeout   time.Duration
	logger    *zap.Logger
}

func NewEngine(suggester Suggester, cacheStore cache.RecommendationCache, cacheTTL time.Duration, timeout time.Duration, logger *zap.Logger) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopRecommendationCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	fallback := CategorySuggester{}
	if suggester == nil {
		suggester = fallback
	}

	return &Engine{
		suggester: suggester,
		fallback:  fallback,
		cache:     cacheStore,
		cacheTTL:  cacheTTL,
		timeout:   timeout,
		logger:    logger,
	}
}

// Recommend maps suggestions for the cart to catalog products. Products
// already in the cart and products without stock are left out. Suggestion
// failures degrade to the category suggester and never surface as errors.
func (e *Engine) Recommend(ctx context.Context, lines []domain.CartLine, catalog []domain.Product) domain.RecommendationResponse {
	if len(lines) == 0 {
		return domain.RecommendationResponse{Products: []domain.Product{}, Source: "none"}
	}

	names := make([]string, 0, len(lines))
	inCart := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		names = append(names, line.Product.Name)
		inCart[line.Product.ID] = struct{}{}
	}

	cacheKey := buildCacheKey(names)
	if cached, ok, err := e.cache.Get(ctx, cacheKey); err != nil {
		e.logger.Warn("recommendation cache get failed", zap.Error(err))
	} else if ok {
		return domain.RecommendationResponse{Products: match(cached, catalog, inCart), Source: "cache"}
	}

	source := e.suggester.Name()
	suggested, err := e.suggest(ctx, e.suggester, names, catalog)
	if err != nil {
		e.logger.Warn("recommendation suggester failed", zap.String("suggester", source), zap.Error(err))
		source = e.fallback.Name()
		suggested, err = e.suggest(ctx, e.fallback, names, catalog)
		if err != nil {
			return domain.RecommendationResponse{Products: []domain.Product{}, Source: "none"}
		}
	}

	if err := e.cache.Set(ctx, cacheKey, suggested, e.cacheTTL); err != nil {
		e.logger.Warn("recommendation cache set failed", zap.Error(err))
	}
	return domain.RecommendationResponse{Products: match(suggested, catalog, inCart), Source: source}
}

func (e *Engine) suggest(ctx context.Context, s Suggester, names []string, catalog []domain.Product) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return s.Suggest(ctx, names, catalog)
}

func match(suggested []string, catalog []domain.Product, inCart map[string]struct{}) []domain.Product {
	byName := make(map[string]domain.Product, len(catalog))
	for _, p := range catalog {
		key := normalizeName(p.Name)
		if _, exists := byName[key]; !exists {
			byName[key] = p
		}
	}

	result := make([]domain.Product, 0, maxRecommendations)
	picked := make(map[string]struct{}, maxRecommendations)
	for _, name := range suggested {
		p, ok := byName[normalizeName(name)]
		if !ok || p.Stock <= 0 {
			continue
		}
		if _, skip := inCart[p.ID]; skip {
			continue
		}
		if _, dup := picked[p.ID]; dup {
			continue
		}
		picked[p.ID] = struct{}{}
		result = append(result, p)
		if len(result) == maxRecommendations {
			break
		}
	}
	return result
}

func buildCacheKey(names []string) string {
	normalized := make([]string, 0, len(names))
	for _, name := range names {
		normalized = append(normalized, normalizeName(name))
	}
	slices.Sort(normalized)
	normalized = slices.Compact(normalized)

	hash := sha1.Sum([]byte(strings.Join(normalized, "|")))
	return "storefront:recommendation:" + hex.EncodeToString(hash[:])
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
