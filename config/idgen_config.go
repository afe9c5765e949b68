package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"idgen_server/pkg/snowflake"
)

// generateInstanceID creates an instance label using hostname and PID
func generateInstanceID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "idgen"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Port        string
	Environment string
	InstanceID  string

	// Logging
	LogLevel   string
	LogBackend string

	// Snowflake defaults for generators created on demand
	SnowflakeEpoch         int64
	SnowflakeNodeIDBits    int
	SnowflakeSequenceBits  int
	SnowflakeNodeID        int64
	SnowflakeMaxBackwardMs int64
	SnowflakePolicy        string

	// Redis (optional; standalone URL or sentinel)
	RedisURL            string
	RedisSentinelAddrs  []string
	RedisSentinelMaster string
	RedisPassword       string
	RedisDB             int

	// Node lease
	NodeLeaseEnabled bool
	NodeLeaseTTL     time.Duration

	// Security
	JWTSecret     string
	EncryptionKey string

	// HTTP
	AllowedOrigins  []string
	RateLimitPerMin int
	MaxBatchSize    int
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		InstanceID:  getEnv("INSTANCE_ID", generateInstanceID()),

		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogBackend: getEnv("LOG_BACKEND", "json"),

		SnowflakeEpoch:         getEnvInt64("SNOWFLAKE_EPOCH", snowflake.DefaultEpoch),
		SnowflakeNodeIDBits:    getEnvInt("SNOWFLAKE_NODE_ID_BITS", int(snowflake.DefaultNodeIDBits)),
		SnowflakeSequenceBits:  getEnvInt("SNOWFLAKE_SEQUENCE_BITS", int(snowflake.DefaultSequenceBits)),
		SnowflakeNodeID:        getEnvInt64("SNOWFLAKE_NODE_ID", snowflake.DefaultNodeID),
		SnowflakeMaxBackwardMs: getEnvInt64("SNOWFLAKE_MAX_BACKWARD_MS", snowflake.DefaultMaxClockBackwardMs),
		SnowflakePolicy:        getEnv("SNOWFLAKE_POLICY", "tolerant"),

		RedisURL:            getEnv("REDIS_URL", ""),
		RedisSentinelAddrs:  getEnvSlice("REDIS_SENTINEL_ADDRS", nil),
		RedisSentinelMaster: getEnv("REDIS_SENTINEL_MASTER", ""),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             getEnvInt("REDIS_DB", 0),

		NodeLeaseEnabled: getEnvBool("NODE_LEASE_ENABLED", true),
		NodeLeaseTTL:     time.Duration(getEnvInt("NODE_LEASE_TTL_SEC", 30)) * time.Second,

		JWTSecret:     getEnv("JWT_SECRET", ""),
		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),

		AllowedOrigins:  getEnvSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		RateLimitPerMin: getEnvInt("RATE_LIMIT_PER_MIN", 600),
		MaxBatchSize:    getEnvInt("MAX_BATCH_SIZE", 1000),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and the snowflake defaults.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, is.Port),
		validation.Field(&c.Environment, validation.Required, validation.In("development", "staging", "production", "test")),
		validation.Field(&c.SnowflakeNodeIDBits, validation.Min(0), validation.Max(62)),
		validation.Field(&c.SnowflakeSequenceBits, validation.Min(0), validation.Max(62)),
		validation.Field(&c.SnowflakeMaxBackwardMs, validation.Min(int64(0))),
		validation.Field(&c.SnowflakePolicy, validation.In("tolerant", "strict")),
		validation.Field(&c.RedisDB, validation.Min(0), validation.Max(15)),
		validation.Field(&c.NodeLeaseTTL, validation.Min(time.Second)),
		validation.Field(&c.RateLimitPerMin, validation.Min(0)),
		validation.Field(&c.MaxBatchSize, validation.Required, validation.Min(1), validation.Max(100000)),
		validation.Field(&c.RedisSentinelMaster, validation.When(len(c.RedisSentinelAddrs) > 0, validation.Required)),
	)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if _, err := snowflake.New(c.SnowflakeConfig()); err != nil {
		return fmt.Errorf("invalid snowflake config: %w", err)
	}
	return nil
}

// SnowflakeConfig converts the SNOWFLAKE_* settings into a generator config.
func (c *Config) SnowflakeConfig() snowflake.Config {
	policy, _ := snowflake.ParsePolicy(c.SnowflakePolicy)
	return snowflake.Config{
		Epoch:              c.SnowflakeEpoch,
		NodeIDBits:         uint8(c.SnowflakeNodeIDBits),
		SequenceBits:       uint8(c.SnowflakeSequenceBits),
		NodeID:             c.SnowflakeNodeID,
		MaxClockBackwardMs: c.SnowflakeMaxBackwardMs,
		Policy:             policy,
	}
}

// RedisEnabled reports whether any Redis endpoint is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisURL != "" || len(c.RedisSentinelAddrs) > 0
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
