package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Process roles.
const (
	RoleAll    = "all"
	RoleAPI    = "api"
	RoleWorker = "worker"
)

type Config struct {
	LogLevel        slog.Level
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Role            string

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	ResultTTL     time.Duration

	NATSURL        string
	NATSStreamName string
	NATSMaxDeliver int
	NATSAckWait    time.Duration

	Providers        []string
	ProviderTimeout  time.Duration
	ResultTimeout    time.Duration
	JoinTimeout      time.Duration
	JoinPollInterval time.Duration
	AggregateTimeout time.Duration
	GapConcurrency   int

	ORSBaseURL       string
	ORSAPIKey        string
	GoogleMapsAPIKey string

	EmissionsSource string
	RegionsSource   string
	FerriesSource   string
	Timezone        string

	FuelPricePerLitre float64
	FuelLitresPerKm   float64
	TollPerKm         float64
	FerryPortRadiusKm float64

	DatabaseURL string

	RateLimitPerSecond float64
	RateLimitBurst     int
	RateLimitWhitelist []string
}

func Load() (*Config, error) {
	// a missing .env file is fine
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel:        getLogLevelEnv("LOG_LEVEL", slog.LevelInfo),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		ReadTimeout:     getDurationEnv("READ_TIMEOUT", 10*time.Second),
		WriteTimeout:    getDurationEnv("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
		Role:            strings.ToLower(getEnv("ROLE", RoleAll)),

		RedisEnabled:  getBoolEnv("REDIS_ENABLED", false),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		ResultTTL:     getDurationEnv("RESULT_TTL", 24*time.Hour),

		NATSURL:        getEnv("NATS_URL", ""),
		NATSStreamName: getEnv("NATS_STREAM_NAME", "JOURNEY_TASKS"),
		NATSMaxDeliver: getIntEnv("NATS_MAX_DELIVER", 5),
		NATSAckWait:    getDurationEnv("NATS_ACK_WAIT", 2*time.Minute),

		Providers:        getCSVEnv("PROVIDERS"),
		ProviderTimeout:  getDurationEnv("PROVIDER_TIMEOUT", 30*time.Second),
		ResultTimeout:    getDurationEnv("RESULT_TIMEOUT", 2*time.Minute),
		JoinTimeout:      getDurationEnv("JOIN_TIMEOUT", 45*time.Second),
		JoinPollInterval: getDurationEnv("JOIN_POLL_INTERVAL", 500*time.Millisecond),
		AggregateTimeout: getDurationEnv("AGGREGATE_TIMEOUT", 30*time.Second),
		GapConcurrency:   getIntEnv("GAP_CONCURRENCY", 8),

		ORSBaseURL:       getEnv("ORS_BASE_URL", "https://api.openrouteservice.org"),
		ORSAPIKey:        getEnv("ORS_API_KEY", ""),
		GoogleMapsAPIKey: getEnv("GOOGLE_MAPS_API_KEY", ""),

		EmissionsSource: getEnv("EMISSIONS_SOURCE", ""),
		RegionsSource:   getEnv("REGIONS_SOURCE", ""),
		FerriesSource:   getEnv("FERRIES_SOURCE", ""),
		Timezone:        getEnv("TIMEZONE", "Europe/Paris"),

		FuelPricePerLitre: getFloatEnv("FUEL_PRICE_EUR_PER_L", 1.5),
		FuelLitresPerKm:   getFloatEnv("FUEL_L_PER_KM", 0.0664),
		TollPerKm:         getFloatEnv("TOLL_EUR_PER_KM", 0.025),
		FerryPortRadiusKm: getFloatEnv("FERRY_PORT_RADIUS_KM", 30),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RateLimitPerSecond: getFloatEnv("RATE_LIMIT_PER_SECOND", 5),
		RateLimitBurst:     getIntEnv("RATE_LIMIT_BURST", 20),
		RateLimitWhitelist: getCSVEnv("RATE_LIMIT_WHITELIST"),
	}

	if len(cfg.Providers) == 0 {
		cfg.Providers = []string{"car", "ferry"}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Role {
	case RoleAll, RoleAPI, RoleWorker:
	default:
		return fmt.Errorf("ROLE must be one of all, api, worker: got %q", c.Role)
	}
	if c.Role != RoleAll && c.NATSURL == "" {
		return fmt.Errorf("ROLE=%s needs NATS_URL: the in-process queue only works with ROLE=all", c.Role)
	}
	if c.Role != RoleAll && !c.RedisEnabled {
		return fmt.Errorf("ROLE=%s needs REDIS_ENABLED: the memory store is not shared between processes", c.Role)
	}
	if c.JoinTimeout <= 0 || c.JoinPollInterval <= 0 || c.AggregateTimeout <= 0 {
		return fmt.Errorf("JOIN_TIMEOUT, JOIN_POLL_INTERVAL and AGGREGATE_TIMEOUT must be positive")
	}
	// a join task holds its message for the join wait plus the aggregation
	joinBudget := c.JoinTimeout + c.AggregateTimeout
	if c.ResultTimeout <= joinBudget {
		return fmt.Errorf("RESULT_TIMEOUT (%s) must exceed JOIN_TIMEOUT + AGGREGATE_TIMEOUT (%s)", c.ResultTimeout, joinBudget)
	}
	if c.NATSURL != "" && c.NATSAckWait <= joinBudget {
		return fmt.Errorf("NATS_ACK_WAIT (%s) must exceed JOIN_TIMEOUT + AGGREGATE_TIMEOUT (%s)", c.NATSAckWait, joinBudget)
	}
	return nil
}

// ServesAPI reports whether the process runs the HTTP intake.
func (c *Config) ServesAPI() bool { return c.Role != RoleWorker }

// RunsWorkers reports whether the process consumes tasks.
func (c *Config) RunsWorkers() bool { return c.Role != RoleAPI }

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getFloatEnv(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getLogLevelEnv(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}

	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return defaultVal
	}
}

func getCSVEnv(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}

	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			result = append(result, t)
		}
	}
	return result
}
