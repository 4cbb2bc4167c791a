package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Config holds runtime configuration values for the wiki link server.
type Config struct {
	DBDriver          string
	DBPath            string
	DBDSN             string
	ServerPort        int
	LogLevel          string
	SentryDSN         string
	Environment       string
	ShutdownGrace     time.Duration
	RateLimit         RateLimitConfig
	Auth              AuthConfig
	Cache             CacheConfig
	Events            EventsConfig
	ReconcileSchedule string
}

// RateLimitConfig controls the per-client token bucket.
type RateLimitConfig struct {
	Burst             int
	RequestsPerSecond float64
	ClientTTL         time.Duration
}

// AuthConfig controls bearer token verification for mutating routes.
type AuthConfig struct {
	Enabled  bool
	Issuer   string
	ClientID string
}

// CacheConfig selects the response cache backend.
type CacheConfig struct {
	Backend       string
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// EventsConfig configures the optional Kafka event sink.
type EventsConfig struct {
	KafkaBrokers []string
	KafkaTopic   string
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

const (
	defaultDBDriver       = DriverSQLite
	defaultDBPath         = "./data/wiki.db"
	defaultServerPort     = 8080
	defaultLogLevel       = "info"
	defaultEnvironment    = "development"
	defaultShutdownGrace  = 10 * time.Second
	defaultRateBurst      = 60
	defaultRateRPS        = 20.0
	defaultRateClientTTL  = 10 * time.Minute
	defaultCacheBackend   = CacheMemory
	defaultCacheTTL       = 5 * time.Minute
	defaultRedisAddr      = "localhost:6379"
	defaultKafkaTopic     = "wiki-events"
	defaultAuthEnabledRaw = "true"
)

// Load reads configuration values from environment variables, applying defaults where necessary.
func Load() (*Config, error) {
	cfg := &Config{
		DBDriver:          strings.ToLower(getEnv("DB_DRIVER", defaultDBDriver)),
		DBPath:            getEnv("DB_PATH", defaultDBPath),
		DBDSN:             os.Getenv("DB_DSN"),
		LogLevel:          getEnv("LOG_LEVEL", defaultLogLevel),
		SentryDSN:         os.Getenv("SENTRY_DSN"),
		Environment:       getEnv("ENV", defaultEnvironment),
		ShutdownGrace:     defaultShutdownGrace,
		ReconcileSchedule: strings.TrimSpace(os.Getenv("RECONCILE_SCHEDULE")),
		Auth: AuthConfig{
			Issuer:   strings.TrimSpace(os.Getenv("AUTH_ISSUER")),
			ClientID: strings.TrimSpace(os.Getenv("AUTH_CLIENT_ID")),
		},
		Cache: CacheConfig{
			Backend:       strings.ToLower(getEnv("CACHE_BACKEND", defaultCacheBackend)),
			RedisAddr:     getEnv("REDIS_ADDR", defaultRedisAddr),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
		},
		Events: EventsConfig{
			KafkaTopic: getEnv("KAFKA_TOPIC", defaultKafkaTopic),
		},
	}

	switch cfg.DBDriver {
	case DriverSQLite:
	case DriverPostgres:
		if strings.TrimSpace(cfg.DBDSN) == "" {
			return nil, eris.New("DB_DSN is required when DB_DRIVER is postgres")
		}
	default:
		return nil, eris.Errorf("unsupported DB_DRIVER value: %s", cfg.DBDriver)
	}

	switch cfg.Cache.Backend {
	case CacheMemory, CacheRedis, CacheNone:
	default:
		return nil, eris.Errorf("unsupported CACHE_BACKEND value: %s", cfg.Cache.Backend)
	}

	if brokersRaw := os.Getenv("KAFKA_BROKERS"); brokersRaw != "" {
		brokers, err := parseList(brokersRaw)
		if err != nil {
			return nil, eris.Wrap(err, "parsing KAFKA_BROKERS")
		}
		cfg.Events.KafkaBrokers = brokers
	}

	portValue := getEnv("SERVER_PORT", strconv.Itoa(defaultServerPort))
	port, err := strconv.Atoi(portValue)
	if err != nil {
		return nil, eris.Wrapf(err, "invalid SERVER_PORT value: %s", portValue)
	}
	cfg.ServerPort = port

	authEnabledValue := getEnv("AUTH_ENABLED", defaultAuthEnabledRaw)
	authEnabled, err := strconv.ParseBool(authEnabledValue)
	if err != nil {
		return nil, eris.Wrapf(err, "invalid AUTH_ENABLED value: %s", authEnabledValue)
	}
	cfg.Auth.Enabled = authEnabled

	burstValue := getEnv("RATE_LIMIT_BURST", strconv.Itoa(defaultRateBurst))
	burst, err := strconv.Atoi(burstValue)
	if err != nil {
		return nil, eris.Wrapf(err, "invalid RATE_LIMIT_BURST value: %s", burstValue)
	}
	cfg.RateLimit.Burst = burst

	rpsValue := getEnv("RATE_LIMIT_RPS", strconv.FormatFloat(defaultRateRPS, 'f', -1, 64))
	rps, err := strconv.ParseFloat(rpsValue, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "invalid RATE_LIMIT_RPS value: %s", rpsValue)
	}
	cfg.RateLimit.RequestsPerSecond = rps

	if cfg.RateLimit.ClientTTL, err = getDuration("RATE_LIMIT_CLIENT_TTL", defaultRateClientTTL); err != nil {
		return nil, err
	}

	if cfg.Cache.TTL, err = getDuration("CACHE_TTL", defaultCacheTTL); err != nil {
		return nil, err
	}

	redisDBValue := getEnv("REDIS_DB", "0")
	redisDB, err := strconv.Atoi(redisDBValue)
	if err != nil {
		return nil, eris.Wrapf(err, "invalid REDIS_DB value: %s", redisDBValue)
	}
	cfg.Cache.RedisDB = redisDB

	return cfg, nil
}

// IsDevelopment reports whether the server runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, defaultEnvironment)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}

	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, eris.Wrapf(err, "invalid %s value: %s", key, raw)
	}
	return value, nil
}

func parseList(raw string) ([]string, error) {
	// Accept either a JSON array of strings or a comma separated list.
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "[") {
		var arrayInput []string
		if err := json.Unmarshal([]byte(trimmed), &arrayInput); err != nil {
			return nil, eris.Wrap(err, "decoding JSON")
		}
		return compact(arrayInput)
	}

	return compact(strings.Split(trimmed, ","))
}

func compact(values []string) ([]string, error) {
	result := make([]string, 0, len(values))
	for _, value := range values {
		if v := strings.TrimSpace(value); v != "" {
			result = append(result, v)
		}
	}

	if len(result) == 0 {
		return nil, eris.New("list is empty")
	}

	return result, nil
}
