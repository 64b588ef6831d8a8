package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// MaxRewardLevels caps how many referral levels can earn from one purchase.
const MaxRewardLevels = 5

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	App      AppConfig
	Log      LogConfig
	Rewards  RewardsConfig
	Chain    ChainConfig
	Redis    RedisConfig
	Metrics  MetricsConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver     string // postgres, sqlite
	Host       string
	Port       string
	User       string
	Password   string
	DBName     string
	SSLMode    string
	SQLitePath string
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port           string
	AllowedOrigins []string
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Environment string
	JWTSecret   string
	JWTTTL      time.Duration
	NonceTTL    time.Duration

	// OperatorWallets may confirm purchases without chain verification and attach payouts
	OperatorWallets []string
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Format string // json, console
}

// RewardsConfig holds the referral reward policy
type RewardsConfig struct {
	// TierPercents[i] is the percentage of amount_usd paid to the referrer at level i+1.
	TierPercents   []decimal.Decimal
	RewardType     string
	RoundingPlaces int32
}

// ChainConfig holds blockchain verification settings
type ChainConfig struct {
	Network                string // solana-mainnet-beta, solana-devnet, evm
	RPCURL                 string
	VerifyOnConfirm        bool
	ConfirmPollInterval    time.Duration
	ConfirmGracePeriod     time.Duration
	ClaimReconcileInterval time.Duration
}

// RedisConfig holds redis settings for rate limiting
type RedisConfig struct {
	Addr             string
	Password         string
	DB               int
	WriteLimitPerMin int
}

// MetricsConfig holds prometheus settings
type MetricsConfig struct {
	Enabled bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	tiers, err := parseTiers(getEnv("REWARD_TIERS", "10,5,2"))
	if err != nil {
		return nil, err
	}

	config := &Config{
		Database: DatabaseConfig{
			Driver:     getEnv("DB_DRIVER", "postgres"),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "5432"),
			User:       getEnv("DB_USER", "postgres"),
			Password:   getEnv("DB_PASSWORD", ""),
			DBName:     getEnv("DB_NAME", "presale_referral"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			SQLitePath: getEnv("DB_SQLITE_PATH", "presale_referral.db"),
		},
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		},
		App: AppConfig{
			Environment: getEnv("APP_ENV", "development"),
			JWTSecret:   getEnv("JWT_SECRET", ""),
			JWTTTL:      getEnvDuration("JWT_TTL", 24*time.Hour),
			NonceTTL:    getEnvDuration("AUTH_NONCE_TTL", 5*time.Minute),

			OperatorWallets: splitList(getEnv("OPERATOR_WALLETS", "")),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Rewards: RewardsConfig{
			TierPercents:   tiers,
			RewardType:     getEnv("REWARD_TYPE", "tokens"),
			RoundingPlaces: int32(getEnvInt("REWARD_ROUNDING_PLACES", 6)),
		},
		Chain: ChainConfig{
			Network:                getEnv("CHAIN_NETWORK", "solana-devnet"),
			RPCURL:                 getEnv("CHAIN_RPC_URL", ""),
			VerifyOnConfirm:        getEnvBool("CHAIN_VERIFY_ON_CONFIRM", true),
			ConfirmPollInterval:    getEnvDuration("CHAIN_CONFIRM_POLL_INTERVAL", 0),
			ConfirmGracePeriod:     getEnvDuration("CHAIN_CONFIRM_GRACE_PERIOD", 30*time.Second),
			ClaimReconcileInterval: getEnvDuration("CHAIN_CLAIM_RECONCILE_INTERVAL", 0),
		},
		Redis: RedisConfig{
			Addr:             getEnv("REDIS_ADDR", ""),
			Password:         getEnv("REDIS_PASSWORD", ""),
			DB:               getEnvInt("REDIS_DB", 0),
			WriteLimitPerMin: getEnvInt("RATE_LIMIT_WRITES_PER_MIN", 30),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks required fields and the reward policy
func (c *Config) Validate() error {
	if c.App.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}

	if c.Rewards.RewardType != "tokens" && c.Rewards.RewardType != "usdt" {
		return fmt.Errorf("REWARD_TYPE must be tokens or usdt, got %q", c.Rewards.RewardType)
	}

	if c.Rewards.RoundingPlaces < 0 || c.Rewards.RoundingPlaces > 8 {
		return fmt.Errorf("REWARD_ROUNDING_PLACES must be between 0 and 8")
	}

	return nil
}

// GetDSN returns the connection string for the configured driver
func (c *Config) GetDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLitePath
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

// GetMigrationURL returns the lib/pq connection URL used by the migration CLI
func (c *Config) GetMigrationURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

// parseTiers parses a comma separated list of percentages, e.g. "10,5,2"
func parseTiers(raw string) ([]decimal.Decimal, error) {
	parts := splitList(raw)
	if len(parts) == 0 {
		return nil, fmt.Errorf("REWARD_TIERS must list at least one percentage")
	}
	if len(parts) > MaxRewardLevels {
		return nil, fmt.Errorf("REWARD_TIERS supports at most %d levels, got %d", MaxRewardLevels, len(parts))
	}

	tiers := make([]decimal.Decimal, 0, len(parts))
	total := decimal.Zero
	for _, p := range parts {
		pct, err := decimal.NewFromString(p)
		if err != nil {
			return nil, fmt.Errorf("invalid reward tier %q: %w", p, err)
		}
		if !pct.IsPositive() {
			return nil, fmt.Errorf("reward tier %q must be positive", p)
		}
		total = total.Add(pct)
		tiers = append(tiers, pct)
	}

	if total.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("reward tiers must sum to less than 100%%, got %s", total)
	}

	return tiers, nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}
