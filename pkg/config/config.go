package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"privacymixer/internal/models"
)

// AppConfig holds every setting the mixer binaries read from the environment
type AppConfig struct {
	FeeRate            decimal.Decimal
	StablecoinRate     float64
	HighValueRate      float64
	DefaultLockSeconds int64
	DefaultCurrency    models.Currency
	SeedDemo           bool

	Port      string
	LogLevel  string
	LogFormat string

	SnapshotSchedule string
	CommandQueue     string
	EventQueue       string

	DB       DatabaseConfig
	RabbitMQ RabbitMQConfig
	Relayer  RelayerConfig
}

// DatabaseConfig is the postgres mirror connection. An empty Host disables the mirror.
type DatabaseConfig struct {
	Host     string
	User     string
	Password string
	Name     string
	Port     string
	TimeZone string
}

// Enabled reports whether a database host is configured
func (c DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

// DSN builds the gorm postgres connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=%s",
		c.Host, c.User, c.Password, c.Name, c.Port, c.TimeZone)
}

// RabbitMQConfig is the broker connection. An empty Host disables messaging.
type RabbitMQConfig struct {
	Host     string
	User     string
	Password string
	Port     string
}

// Enabled reports whether a broker host is configured
func (c RabbitMQConfig) Enabled() bool {
	return c.Host != ""
}

// URL builds the amqp connection url
func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", c.User, c.Password, c.Host, c.Port)
}

// RelayerConfig prices relayed withdrawals
type RelayerConfig struct {
	GasLimit     uint64
	GasBuffer    decimal.Decimal
	GasPriceGwei decimal.Decimal
	Markup       decimal.Decimal
}

// Load reads a .env file when present, then the environment
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv parses the environment into an AppConfig, applying defaults for unset keys
func FromEnv() (*AppConfig, error) {
	p := &envParser{}

	cfg := &AppConfig{
		FeeRate:            p.decimal("MIXER_FEE_RATE", "0.015"),
		StablecoinRate:     p.float("MIXER_STABLECOIN_RATE", 2500),
		HighValueRate:      p.float("MIXER_HIGH_VALUE_RATE", 40),
		DefaultLockSeconds: p.int("MIXER_DEFAULT_LOCK_SECONDS", 86400),
		DefaultCurrency:    models.Currency(getEnv("MIXER_DEFAULT_CURRENCY", "ETH")).Normalize(),
		SeedDemo:           p.bool("MIXER_SEED_DEMO", false),

		Port:      getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		SnapshotSchedule: getEnv("SNAPSHOT_SCHEDULE", "0 */15 * * * *"),
		CommandQueue:     getEnv("COMMAND_QUEUE", "mixer_commands"),
		EventQueue:       getEnv("EVENT_QUEUE", "mixer_events"),

		DB: DatabaseConfig{
			Host:     os.Getenv("DB_HOST"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     os.Getenv("DB_NAME"),
			Port:     getEnv("DB_PORT", "5432"),
			TimeZone: getEnv("DB_TIMEZONE", "UTC"),
		},
		RabbitMQ: RabbitMQConfig{
			Host:     os.Getenv("RABBITMQ_HOST"),
			User:     getEnv("RABBITMQ_USER", "guest"),
			Password: getEnv("RABBITMQ_PASSWORD", "guest"),
			Port:     getEnv("RABBITMQ_PORT", "5672"),
		},
		Relayer: RelayerConfig{
			GasLimit:     uint64(p.int("RELAYER_GAS_LIMIT", 21000)),
			GasBuffer:    p.decimal("RELAYER_GAS_BUFFER", "1.2"),
			GasPriceGwei: p.decimal("RELAYER_GAS_PRICE_GWEI", "30"),
			Markup:       p.decimal("RELAYER_MARKUP", "1.5"),
		},
	}

	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges that parsing alone cannot catch
func (c *AppConfig) Validate() error {
	if c.FeeRate.IsNegative() || c.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("MIXER_FEE_RATE must be in [0, 1), got %s", c.FeeRate)
	}
	if c.StablecoinRate <= 0 {
		return fmt.Errorf("MIXER_STABLECOIN_RATE must be positive, got %v", c.StablecoinRate)
	}
	if c.HighValueRate <= 0 {
		return fmt.Errorf("MIXER_HIGH_VALUE_RATE must be positive, got %v", c.HighValueRate)
	}
	if c.DefaultLockSeconds <= 0 {
		return fmt.Errorf("MIXER_DEFAULT_LOCK_SECONDS must be positive, got %d", c.DefaultLockSeconds)
	}
	if _, ok := models.ParseCurrency(c.DefaultCurrency.String()); !ok {
		return fmt.Errorf("MIXER_DEFAULT_CURRENCY %q is not supported", c.DefaultCurrency)
	}
	if c.Relayer.GasLimit == 0 {
		return errors.New("RELAYER_GAS_LIMIT must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// envParser records the first parse failure so Load can report it
type envParser struct {
	err error
}

func (p *envParser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
}

func (p *envParser) decimal(key, fallback string) decimal.Decimal {
	raw := getEnv(key, fallback)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		p.fail(key, raw, err)
		return decimal.Zero
	}
	return d
}

func (p *envParser) float(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return f
}

func (p *envParser) int(key string, fallback int64) int64 {
	raw := os.Getenv(key)
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return n
}

func (p *envParser) bool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		p.fail(key, raw, err)
		return fallback
	}
	return b
}
