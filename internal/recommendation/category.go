package recommendation

import (
	"context"
	"slices"
	"strings"

	"storefront/backend/internal/domain"
)

// CategorySuggester suggests catalog products sharing a category with the
// cart, cheapest first within each category.
type CategorySuggester struct{}

func (CategorySuggester) Name() string { return "category" }

func (CategorySuggester) Suggest(_ context.Context, cartNames []string, catalog []domain.Product) ([]string, error) {
	inCart := make(map[string]struct{}, len(cartNames))
	for _, name := range cartNames {
		inCart[normalizeName(name)] = struct{}{}
	}

	categories := make([]string, 0, 4)
	for _, p := range catalog {
		if _, ok := inCart[normalizeName(p.Name)]; !ok || p.Category == "" {
			continue
		}
		if !slices.Contains(categories, p.Category) {
			categories = append(categories, p.Category)
		}
	}

	candidates := make([]domain.Product, 0, len(catalog))
	for _, p := range catalog {
		if _, ok := inCart[normalizeName(p.Name)]; ok {
			continue
		}
		if slices.Contains(categories, p.Category) {
			candidates = append(candidates, p)
		}
	}
	slices.SortFunc(candidates, func(a, b domain.Product) int {
		ai := slices.Index(categories, a.Category)
		bi := slices.Index(categories, b.Category)
		if ai != bi {
			return ai - bi
		}
		if c := a.Price.Cmp(b.Price); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})

	names := make([]string, 0, len(candidates))
	for _, p := range candidates {
		names = append(names, p.Name)
	}
	return names, nil
}
