package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("GEMINI_API_KEY", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.GeminiAPIKey != "" {
		t.Fatalf("expected empty GEMINI_API_KEY when unset, got %q", cfg.GeminiAPIKey)
	}
}

func TestLoadFallsBackOnInvalidDurations(t *testing.T) {
	t.Setenv("RECOMMENDATION_TTL_SECONDS", "-5")
	t.Setenv("RECOMMENDATION_TIMEOUT_SECONDS", "abc")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "0")

	cfg := Load()
	if cfg.RecommendationTTLSeconds != 300 {
		t.Fatalf("expected default ttl 300, got %d", cfg.RecommendationTTLSeconds)
	}
	if cfg.RecommendationTimeoutSeconds != 8 {
		t.Fatalf("expected default timeout 8, got %d", cfg.RecommendationTimeoutSeconds)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected default token ttl 480, got %d", cfg.AccessTokenTTLMinutes)
	}
}

func TestAddress(t *testing.T) {
	t.Setenv("PORT", "9090")
	if got := Load().Address(); got != ":9090" {
		t.Fatalf("expected :9090, got %s", got)
	}
}
