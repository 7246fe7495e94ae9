// Package config reads process configuration from environment variables so
// main stays lean. Every knob has a development default; production deploys
// override via the environment.
package config

import (
	"os"
	"strings"
	"time"

	platformstrings "ipwatch/pkg/platform/strings"
)

// Config is the full process configuration.
type Config struct {
	Server   Server
	Database Database
	Redis    Redis
	Provider Provider
	Cache    Cache
	Kafka    Kafka

	// ISPDictPath points at the tab-delimited ISP name dictionary. A
	// missing file leaves normalization in pass-through mode.
	ISPDictPath string

	// AdminToken guards the administrative routes. Empty disables them.
	AdminToken string
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// Database configures the Postgres store. An empty URL selects the
// in-memory store.
type Database struct {
	URL string
}

// Redis configures the shared resolution-cache backing. An empty URL keeps
// the cache purely in-process.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Provider configures the external intelligence API.
type Provider struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Cache carries the TTLs for the resolution cache namespaces.
type Cache struct {
	DefaultTTL      time.Duration
	ResolutionTTL   time.Duration
	StatsTTL        time.Duration
	JanitorInterval time.Duration
}

// Kafka configures the optional audit event sink. No brokers disables it.
type Kafka struct {
	Brokers []string
	Topic   string
}

// FromEnv builds the configuration from environment variables.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:            getenv("IPWATCH_ADDR", ":8080"),
			RequestTimeout:  getduration("IPWATCH_REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getduration("IPWATCH_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: Database{
			URL: os.Getenv("DATABASE_URL"),
		},
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Provider: Provider{
			BaseURL: getenv("PROVIDER_BASE_URL", "https://ipqualityscore.com/api/json/ip"),
			APIKey:  os.Getenv("PROVIDER_API_KEY"),
			Timeout: getduration("PROVIDER_TIMEOUT", 8*time.Second),
		},
		Cache: Cache{
			DefaultTTL:      getduration("CACHE_DEFAULT_TTL", 10*time.Minute),
			ResolutionTTL:   getduration("CACHE_RESOLUTION_TTL", time.Hour),
			StatsTTL:        getduration("CACHE_STATS_TTL", 10*time.Second),
			JanitorInterval: getduration("CACHE_JANITOR_INTERVAL", time.Minute),
		},
		Kafka: Kafka{
			Brokers: getlist("KAFKA_BROKERS"),
			Topic:   getenv("KAFKA_AUDIT_TOPIC", "ipwatch.lookups"),
		},
		ISPDictPath: getenv("ISP_DICT_PATH", "isp_names.tsv"),
		AdminToken:  os.Getenv("ADMIN_TOKEN"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getlist(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	out := platformstrings.DedupeAndTrim(strings.Split(v, ","))
	if len(out) == 0 {
		return nil
	}
	return out
}
