package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	EventID               string
	AuthSecret            string
	AccessTokenTTLMinutes int
	ManagerPIN            string

	LogFormat string
	LogLevel  string

	PaymentGatewayURL string
	PaymentGatewayKey string

	RateServiceURL      string
	RateRefreshInterval time.Duration
	RateCacheTTLSeconds int

	SettlementMaxAttempts int
}

// Load reads the environment, plus a .env file when one is present.
func Load() (Config, error) {
	_ = godotenv.Load()
	return loadFrom(env.Provider("", ".", func(s string) string { return s }))
}

func loadFrom(provider koanf.Provider) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(provider, nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	return Config{
		Port:                  valueOrDefault(k.String("PORT"), "8080"),
		AllowedOrigin:         valueOrDefault(k.String("ALLOWED_ORIGIN"), "http://127.0.0.1:3000"),
		DatabaseURL:           strings.TrimSpace(k.String("DATABASE_URL")),
		RedisAddr:             strings.TrimSpace(k.String("REDIS_ADDR")),
		RedisPassword:         k.String("REDIS_PASSWORD"),
		RedisDB:               parseInt(k.String("REDIS_DB"), 0, 0),
		EventID:               valueOrDefault(k.String("EVENT_ID"), "main-event"),
		AuthSecret:            strings.TrimSpace(k.String("AUTH_SECRET")),
		AccessTokenTTLMinutes: parseInt(k.String("ACCESS_TOKEN_TTL_MINUTES"), 480, 1),
		ManagerPIN:            strings.TrimSpace(k.String("MANAGER_PIN")),
		LogFormat:             valueOrDefault(k.String("LOG_FORMAT"), "json"),
		LogLevel:              valueOrDefault(k.String("LOG_LEVEL"), "info"),
		PaymentGatewayURL:     strings.TrimSpace(k.String("PAYMENT_GATEWAY_URL")),
		PaymentGatewayKey:     strings.TrimSpace(k.String("PAYMENT_GATEWAY_KEY")),
		RateServiceURL:        strings.TrimSpace(k.String("RATE_SERVICE_URL")),
		RateRefreshInterval:   parseDuration(k.String("RATE_REFRESH_INTERVAL"), "1h"),
		RateCacheTTLSeconds:   parseInt(k.String("RATE_CACHE_TTL_SECONDS"), 3600, 1),
		SettlementMaxAttempts: parseInt(k.String("SETTLEMENT_MAX_ATTEMPTS"), 3, 1),
	}, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) RateCacheTTL() time.Duration {
	return time.Duration(c.RateCacheTTLSeconds) * time.Second
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseInt(value string, fallback, minimum int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < minimum {
		return fallback
	}
	return n
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}
