// Package config loads service configuration from the environment, with an
// optional .env file for local runs.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/go_cart/pos-service/internal/domain"
	"github.com/fjod/go_cart/pos-service/internal/loyalty"
	"github.com/fjod/go_cart/pos-service/internal/pricing"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort           string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64
	LogLevel           string

	RedisAddr        string
	RedisPassword    string
	CustomerCacheTTL time.Duration

	MongoURI    string
	MongoDBName string

	KafkaBrokers []string
	AuditTopic   string

	CommerceBaseURL string
	CommerceTimeout time.Duration

	AuthSessionDuration time.Duration
	AuthAllowedRoles    domain.RoleSet

	Pricing pricing.Config
}

// Load reads .env (when present) and then the process environment. Values
// already set in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	var errs []error
	cfg := &Config{
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		RequestTimeout:     getDuration("REQUEST_TIMEOUT", 30*time.Second, &errs),
		ShutdownTimeout:    getDuration("SHUTDOWN_TIMEOUT", 10*time.Second, &errs),
		MaxRequestBodySize: 1 << 20,
		LogLevel:           getEnv("LOG_LEVEL", "info"),

		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		CustomerCacheTTL: getDuration("CUSTOMER_CACHE_TTL", 5*time.Minute, &errs),

		MongoURI:    getEnv("MONGO_URI", ""),
		MongoDBName: getEnv("MONGO_DB_NAME", "pos"),

		KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "")),
		AuditTopic:   getEnv("AUDIT_TOPIC", "pos-authorization-audit"),

		CommerceBaseURL: getEnv("COMMERCE_BASE_URL", "http://localhost:8081"),
		CommerceTimeout: getDuration("COMMERCE_TIMEOUT", 5*time.Second, &errs),

		AuthSessionDuration: time.Duration(getInt("AUTH_SESSION_MINUTES", 30, &errs)) * time.Minute,
	}

	roles, err := domain.ParseRoleSet(splitList(getEnv("AUTH_ALLOWED_ROLES", "manager,admin")))
	if err != nil {
		errs = append(errs, fmt.Errorf("AUTH_ALLOWED_ROLES: %w", err))
	}
	cfg.AuthAllowedRoles = roles

	order, err := pricing.ParseStackingOrder(getEnv("DISCOUNT_STACKING_ORDER", ""))
	if err != nil {
		errs = append(errs, fmt.Errorf("DISCOUNT_STACKING_ORDER: %w", err))
	}
	cfg.Pricing = pricing.Config{
		Order: order,
		Redemption: loyalty.Policy{
			MinRedeemPoints:       int64(getInt("LOYALTY_MIN_REDEEM_POINTS", 100, &errs)),
			CapPercentOfSubtotal:  getFloat("LOYALTY_REDEEM_CAP_PERCENT", 0.5, &errs),
			PointsPerCurrencyUnit: getFloat("LOYALTY_POINTS_PER_UNIT", 100, &errs),
		},
		EarnRate: getFloat("LOYALTY_EARN_RATE", 0.01, &errs),
		EarnBase: pricing.EarnBase(strings.ToLower(getEnv("LOYALTY_EARN_BASE", string(pricing.EarnOnTotal)))),
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.HTTPPort == "" {
		errs = append(errs, errors.New("HTTP_PORT is required"))
	}
	if c.RequestTimeout <= 0 || c.ShutdownTimeout <= 0 || c.CommerceTimeout <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if c.CustomerCacheTTL <= 0 {
		errs = append(errs, errors.New("CUSTOMER_CACHE_TTL must be positive"))
	}
	if c.AuthSessionDuration <= 0 {
		errs = append(errs, errors.New("AUTH_SESSION_MINUTES must be positive"))
	}
	if c.AuthAllowedRoles.IsEmpty() {
		errs = append(errs, errors.New("AUTH_ALLOWED_ROLES must name at least one role"))
	}
	if c.CommerceBaseURL == "" {
		errs = append(errs, errors.New("COMMERCE_BASE_URL is required"))
	}
	if c.MongoURI != "" && c.MongoDBName == "" {
		errs = append(errs, errors.New("MONGO_DB_NAME is required with MONGO_URI"))
	}
	if err := c.Pricing.Redemption.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Pricing.EarnBase {
	case pricing.EarnOnTotal, pricing.EarnOnSubtotal:
	default:
		errs = append(errs, fmt.Errorf("LOYALTY_EARN_BASE must be %q or %q", pricing.EarnOnTotal, pricing.EarnOnSubtotal))
	}
	if c.Pricing.EarnRate < 0 {
		errs = append(errs, errors.New("LOYALTY_EARN_RATE must not be negative"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return d
}

func getInt(key string, defaultValue int, errs *[]error) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}

func getFloat(key string, defaultValue float64, errs *[]error) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return defaultValue
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
