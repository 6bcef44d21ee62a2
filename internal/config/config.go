// Package config loads Collector and Gateway configuration from the
// environment, with an optional YAML file layered underneath for defaults.
package config

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// =============================================================================
// Collector configuration
// =============================================================================

type CollectorConfig struct {
	ApplianceURLs     []string      `yaml:"appliance_urls"`
	MixingStrategy    string        `yaml:"mixing_strategy"`
	FetchChunkSize    int           `yaml:"fetch_chunk_size"`
	FetchIntervalMs   int           `yaml:"fetch_interval_ms"`
	BufferSize        int           `yaml:"buffer_size"`
	PushURL           string        `yaml:"push_url"`
	PushIntervalMs    int           `yaml:"push_interval_ms"`
	HMACSecretKeyHex  string        `yaml:"hmac_secret_key"`
	MaxRetries        int           `yaml:"max_retries"`
	InitialBackoffMs  int           `yaml:"initial_backoff_ms"`
	MaxBackoff        time.Duration `yaml:"-"`
	FetchTimeout      time.Duration `yaml:"-"`
	PushTimeout       time.Duration `yaml:"-"`
}

// HMACSecretKey decodes the configured hex key.
func (c *CollectorConfig) HMACSecretKey() ([]byte, error) {
	return hex.DecodeString(c.HMACSecretKeyHex)
}

// FetchInterval is the fetch task period.
func (c *CollectorConfig) FetchInterval() time.Duration {
	return time.Duration(c.FetchIntervalMs) * time.Millisecond
}

// PushInterval is the push task period.
func (c *CollectorConfig) PushInterval() time.Duration {
	return time.Duration(c.PushIntervalMs) * time.Millisecond
}

// InitialBackoff is the starting backoff for fetch retries and for the
// fetch-failure backoff ladder. The push path's 507 backoff does not use it.
func (c *CollectorConfig) InitialBackoff() time.Duration {
	return time.Duration(c.InitialBackoffMs) * time.Millisecond
}

// LoadCollectorConfig reads QRNG_* environment variables, optionally
// layered on top of a YAML file named by CONFIG_PATH, and validates the
// result.
func LoadCollectorConfig() (*CollectorConfig, error) {
	cfg := &CollectorConfig{}
	if path := getEnv("CONFIG_PATH", ""); path != "" {
		if err := loadYAML(path, cfg); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	cfg.ApplianceURLs = splitCSVOrDefault(getEnv("QRNG_APPLIANCE_URLS", ""), cfg.ApplianceURLs)
	cfg.MixingStrategy = getEnv("QRNG_MIXING_STRATEGY", orDefault(cfg.MixingStrategy, "none"))
	if v := getEnvInt("QRNG_FETCH_CHUNK_SIZE", 0); v > 0 {
		cfg.FetchChunkSize = v
	} else if cfg.FetchChunkSize == 0 {
		cfg.FetchChunkSize = 4096
	}
	if v := getEnvInt("QRNG_FETCH_INTERVAL_MS", 0); v > 0 {
		cfg.FetchIntervalMs = v
	} else if cfg.FetchIntervalMs == 0 {
		cfg.FetchIntervalMs = 100
	}
	if v := getEnvInt("QRNG_BUFFER_SIZE", 0); v > 0 {
		cfg.BufferSize = v
	} else if cfg.BufferSize == 0 {
		cfg.BufferSize = 1 << 20
	}
	cfg.PushURL = getEnv("QRNG_PUSH_URL", cfg.PushURL)
	if v := getEnvInt("QRNG_PUSH_INTERVAL_MS", 0); v > 0 {
		cfg.PushIntervalMs = v
	} else if cfg.PushIntervalMs == 0 {
		cfg.PushIntervalMs = 500
	}
	cfg.HMACSecretKeyHex = getEnv("QRNG_HMAC_SECRET_KEY", cfg.HMACSecretKeyHex)
	if v := getEnvInt("QRNG_MAX_RETRIES", 0); v > 0 {
		cfg.MaxRetries = v
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if v := getEnvInt("QRNG_INITIAL_BACKOFF_MS", 0); v > 0 {
		cfg.InitialBackoffMs = v
	} else if cfg.InitialBackoffMs == 0 {
		cfg.InitialBackoffMs = 100
	}
	cfg.MaxBackoff = 5 * time.Minute
	cfg.FetchTimeout = 30 * time.Second
	cfg.PushTimeout = 30 * time.Second

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

const maxRequestSize = 65536

// Validate enforces the Collector's configuration invariants.
func (c *CollectorConfig) Validate() error {
	if len(c.ApplianceURLs) == 0 {
		return fmt.Errorf("config: at least one QRNG_APPLIANCE_URLS entry is required")
	}
	for _, u := range c.ApplianceURLs {
		if !isParseableURL(u) {
			return fmt.Errorf("config: unparseable appliance URL %q", u)
		}
	}
	if !isParseableURL(c.PushURL) {
		return fmt.Errorf("config: unparseable QRNG_PUSH_URL %q", c.PushURL)
	}
	if len(c.ApplianceURLs) > 1 && c.MixingStrategy == "none" {
		return fmt.Errorf("config: QRNG_MIXING_STRATEGY must not be 'none' with more than one source")
	}
	switch c.MixingStrategy {
	case "none", "xor", "hkdf":
	default:
		return fmt.Errorf("config: unknown QRNG_MIXING_STRATEGY %q", c.MixingStrategy)
	}
	if c.FetchChunkSize < 1 || c.FetchChunkSize > maxRequestSize {
		return fmt.Errorf("config: QRNG_FETCH_CHUNK_SIZE must be in [1, %d]", maxRequestSize)
	}
	if c.BufferSize < c.FetchChunkSize {
		return fmt.Errorf("config: QRNG_BUFFER_SIZE must be >= QRNG_FETCH_CHUNK_SIZE")
	}
	key, err := c.HMACSecretKey()
	if err != nil {
		return fmt.Errorf("config: QRNG_HMAC_SECRET_KEY must be hex-decodable: %w", err)
	}
	if len(key) == 0 {
		return fmt.Errorf("config: QRNG_HMAC_SECRET_KEY must not be empty")
	}
	if allZero(key) {
		return fmt.Errorf("config: QRNG_HMAC_SECRET_KEY must not be all-zero")
	}
	return nil
}

// =============================================================================
// Gateway configuration
// =============================================================================

type GatewayConfig struct {
	ListenAddress     string `yaml:"listen_address"`
	BufferSize        int    `yaml:"buffer_size"`
	BufferTTLSecs     int    `yaml:"buffer_ttl_secs"`
	APIKeys           []string `yaml:"api_keys"`
	RateLimitPerSec   float64  `yaml:"rate_limit_per_second"`
	HMACSecretKeyHex  string   `yaml:"hmac_secret_key"`
	MetricsEnabled    bool     `yaml:"metrics_enabled"`
	RedisAddr         string   `yaml:"redis_addr"`
	RedisPassword     string   `yaml:"redis_password"`
	RedisDB           int      `yaml:"redis_db"`
}

func (c *GatewayConfig) HMACSecretKey() ([]byte, error) {
	return hex.DecodeString(c.HMACSecretKeyHex)
}

func (c *GatewayConfig) BufferTTL() time.Duration {
	if c.BufferTTLSecs <= 0 {
		return 0
	}
	return time.Duration(c.BufferTTLSecs) * time.Second
}

// LoadGatewayConfig reads QRNG_* environment variables for the Gateway.
func LoadGatewayConfig() (*GatewayConfig, error) {
	cfg := &GatewayConfig{}
	if path := getEnv("CONFIG_PATH", ""); path != "" {
		if err := loadYAML(path, cfg); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	cfg.ListenAddress = getEnv("QRNG_LISTEN_ADDRESS", orDefault(cfg.ListenAddress, "0.0.0.0:8080"))
	if v := getEnvInt("QRNG_BUFFER_SIZE", 0); v > 0 {
		cfg.BufferSize = v
	} else if cfg.BufferSize == 0 {
		cfg.BufferSize = 4 << 20
	}
	if v := getEnvInt("QRNG_BUFFER_TTL_SECS", -1); v >= 0 {
		cfg.BufferTTLSecs = v
	}
	cfg.APIKeys = splitCSVOrDefault(getEnv("QRNG_API_KEYS", ""), cfg.APIKeys)
	if v := getEnvFloat("QRNG_RATE_LIMIT_PER_SECOND", 0); v > 0 {
		cfg.RateLimitPerSec = v
	} else if cfg.RateLimitPerSec == 0 {
		cfg.RateLimitPerSec = 10
	}
	cfg.HMACSecretKeyHex = getEnv("QRNG_HMAC_SECRET_KEY", cfg.HMACSecretKeyHex)
	cfg.MetricsEnabled = getEnvBool("QRNG_METRICS_ENABLED", true)
	cfg.RedisAddr = getEnv("QRNG_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("QRNG_REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvInt("QRNG_REDIS_DB", cfg.RedisDB)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the Gateway's configuration invariants.
func (c *GatewayConfig) Validate() error {
	if c.BufferSize <= 0 {
		return fmt.Errorf("config: QRNG_BUFFER_SIZE must be > 0")
	}
	if len(c.APIKeys) == 0 {
		return fmt.Errorf("config: at least one QRNG_API_KEYS entry is required")
	}
	if c.RateLimitPerSec <= 0 {
		return fmt.Errorf("config: QRNG_RATE_LIMIT_PER_SECOND must be > 0")
	}
	key, err := c.HMACSecretKey()
	if err != nil {
		return fmt.Errorf("config: QRNG_HMAC_SECRET_KEY must be hex-decodable: %w", err)
	}
	if len(key) == 0 {
		return fmt.Errorf("config: QRNG_HMAC_SECRET_KEY must not be empty (required to accept pushes)")
	}
	if allZero(key) {
		return fmt.Errorf("config: QRNG_HMAC_SECRET_KEY must not be all-zero")
	}
	return nil
}

// =============================================================================
// Helper functions
// =============================================================================

func loadYAML(path string, out interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return yaml.NewDecoder(f).Decode(out)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func splitCSV(s string) []string {
	parts := make([]string, 0)
	for _, p := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

func splitCSVOrDefault(s string, fallback []string) []string {
	if s == "" {
		return fallback
	}
	return splitCSV(s)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func isParseableURL(raw string) bool {
	if raw == "" {
		return false
	}
	parsed, err := url.Parse(raw)
	return err == nil && parsed.Scheme != "" && parsed.Host != ""
}
