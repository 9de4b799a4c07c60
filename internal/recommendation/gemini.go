package recommendation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"storefront/backend/internal/domain"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiSuggester asks a Gemini model for related product names using a
// structured JSON response.
type GeminiSuggester struct {
	client *genai.Client
	model  string
}

func NewGeminiSuggester(ctx context.Context, apiKey string, model string) (*GeminiSuggester, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiSuggester{client: client, model: model}, nil
}

func (g *GeminiSuggester) Name() string { return "gemini" }

type suggestionPayload struct {
	RecommendedProducts []string `json:"recommendedProducts"`
}

func (g *GeminiSuggester) Suggest(ctx context.Context, cartNames []string, catalog []domain.Product) ([]string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(buildPrompt(cartNames, catalog), genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"recommendedProducts": {
					Type:  genai.TypeArray,
					Items: &genai.Schema{Type: genai.TypeString},
				},
			},
			Required: []string{"recommendedProducts"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	return parseSuggestions(resp.Text())
}

func buildPrompt(cartNames []string, catalog []domain.Product) string {
	var b strings.Builder
	b.WriteString("You are a helpful shopping assistant. Given the following list of items in the user's cart, ")
	b.WriteString("suggest other products that the user might be interested in. ")
	b.WriteString("Only return the names of the products in a JSON array.\n\n")
	b.WriteString("Cart items: ")
	b.WriteString(strings.Join(cartNames, ", "))
	if len(catalog) > 0 {
		names := make([]string, 0, len(catalog))
		for _, p := range catalog {
			names = append(names, p.Name)
		}
		b.WriteString("\nAvailable products: ")
		b.WriteString(strings.Join(names, ", "))
	}
	return b.String()
}

func parseSuggestions(text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("gemini returned an empty response")
	}
	var payload suggestionPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("decode gemini response: %w", err)
	}
	return payload.RecommendedProducts, nil
}
