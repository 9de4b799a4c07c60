package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Env                          string
	Port                         string
	AllowedOrigin                string
	DatabaseURL                  string
	RedisAddr                    string
	RedisPassword                string
	RedisDB                      int
	RecommendationTTLSeconds     int
	RecommendationTimeoutSeconds int
	AuthSecret                   string
	AccessTokenTTLMinutes        int
	GeminiAPIKey                 string
	GeminiModel                  string
	SeedAdminPassword            string
}

// Load reads the environment, first merging a .env file from the working
// directory when one exists. Variables already set win over the file.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	ttl := positiveInt("RECOMMENDATION_TTL_SECONDS", 300)
	timeout := positiveInt("RECOMMENDATION_TIMEOUT_SECONDS", 8)
	tokenTTL := positiveInt("ACCESS_TOKEN_TTL_MINUTES", 480)

	cfg := Config{
		Env:                          getEnv("APP_ENV", "development"),
		Port:                         getEnv("PORT", "8080"),
		AllowedOrigin:                getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:9002"),
		DatabaseURL:                  os.Getenv("DATABASE_URL"),
		RedisAddr:                    os.Getenv("REDIS_ADDR"),
		RedisPassword:                os.Getenv("REDIS_PASSWORD"),
		RedisDB:                      redisDB,
		RecommendationTTLSeconds:     ttl,
		RecommendationTimeoutSeconds: timeout,
		AuthSecret:                   strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes:        tokenTTL,
		GeminiAPIKey:                 strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:                  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		SeedAdminPassword:            os.Getenv("SEED_ADMIN_PASSWORD"),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func positiveInt(key string, fallback int) int {
	val, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || val < 1 {
		return fallback
	}
	return val
}
