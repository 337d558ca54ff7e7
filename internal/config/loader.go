package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Defaults applied by WithDefaults when a field is unset.
const (
	DefaultAddr            = ":8080"
	DefaultCacheDirName    = "infera_cache"
	DefaultCacheSizeLimit  = int64(1 << 30)
	DefaultHTTPTimeoutSecs = 30
	DefaultRetryAttempts   = 3
	DefaultRetryDelayMS    = 1000
	DefaultLogLevel        = "warn"
)

// Config holds runtime parameters for the library and the server.
// Zero values mean "unspecified" and are replaced by WithDefaults, except
// RetryDelayMS where nil is unset and an explicit 0 means no delay.
type Config struct {
	Addr              string   `json:"addr" yaml:"addr" toml:"addr"`
	CacheDir          string   `json:"cache_dir" yaml:"cache_dir" toml:"cache_dir"`
	CacheSizeLimit    int64    `json:"cache_size_limit_bytes" yaml:"cache_size_limit_bytes" toml:"cache_size_limit_bytes"`
	HTTPTimeoutSecs   int      `json:"http_timeout_secs" yaml:"http_timeout_secs" toml:"http_timeout_secs"`
	RetryAttempts     int      `json:"http_retry_attempts" yaml:"http_retry_attempts" toml:"http_retry_attempts"`
	RetryDelayMS      *int     `json:"http_retry_delay_ms" yaml:"http_retry_delay_ms" toml:"http_retry_delay_ms"`
	CacheMaxAgeSecs   int64    `json:"cache_max_age_secs" yaml:"cache_max_age_secs" toml:"cache_max_age_secs"`
	AutoloadDir       string   `json:"autoload_dir" yaml:"autoload_dir" toml:"autoload_dir"`
	Engine            string   `json:"engine" yaml:"engine" toml:"engine"`
	LogLevel          string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat         string   `json:"log_format" yaml:"log_format" toml:"log_format"`
	MaxBodyBytes      int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	CORSEnabled       bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSAllowedOrigin []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" toml:"cors_allowed_origins"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// ApplyEnv overlays INFERA_* environment variables onto cfg. Malformed numeric
// values are ignored so a typo never prevents startup.
func ApplyEnv(cfg Config, getenv func(string) string) Config {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv("INFERA_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := getenv("INFERA_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if n, ok := envInt64(getenv("INFERA_CACHE_SIZE_LIMIT")); ok {
		cfg.CacheSizeLimit = n
	}
	if n, ok := envInt64(getenv("INFERA_HTTP_TIMEOUT")); ok {
		cfg.HTTPTimeoutSecs = int(n)
	}
	if n, ok := envInt64(getenv("INFERA_HTTP_RETRY_ATTEMPTS")); ok {
		cfg.RetryAttempts = int(n)
	}
	if n, ok := envInt64(getenv("INFERA_HTTP_RETRY_DELAY")); ok {
		ms := int(n)
		cfg.RetryDelayMS = &ms
	}
	if n, ok := envInt64(getenv("INFERA_CACHE_MAX_AGE")); ok {
		cfg.CacheMaxAgeSecs = n
	}
	if v := getenv("INFERA_AUTOLOAD_DIR"); v != "" {
		cfg.AutoloadDir = v
	}
	if v := getenv("INFERA_ENGINE"); v != "" {
		cfg.Engine = v
	}
	if v := getenv("INFERA_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	return cfg
}

func envInt64(v string) (int64, bool) {
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.CacheDir == "" {
		c.CacheDir = filepath.Join(os.TempDir(), DefaultCacheDirName)
	}
	if c.CacheSizeLimit <= 0 {
		c.CacheSizeLimit = DefaultCacheSizeLimit
	}
	if c.HTTPTimeoutSecs <= 0 {
		c.HTTPTimeoutSecs = DefaultHTTPTimeoutSecs
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	switch {
	case c.RetryDelayMS == nil:
		ms := DefaultRetryDelayMS
		c.RetryDelayMS = &ms
	case *c.RetryDelayMS < 0:
		ms := 0
		c.RetryDelayMS = &ms
	}
	if c.CacheMaxAgeSecs < 0 {
		c.CacheMaxAgeSecs = 0
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	return c
}

// HTTPTimeout returns the per-request download timeout.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSecs) * time.Second
}

// RetryDelay returns the base delay between download attempts.
func (c Config) RetryDelay() time.Duration {
	if c.RetryDelayMS == nil {
		return DefaultRetryDelayMS * time.Millisecond
	}
	return time.Duration(*c.RetryDelayMS) * time.Millisecond
}

// CacheMaxAge returns how old a cache entry may get before it is downloaded
// again. Zero means entries never go stale.
func (c Config) CacheMaxAge() time.Duration {
	return time.Duration(c.CacheMaxAgeSecs) * time.Second
}

// Resolve loads path (if non-empty), overlays the environment and applies defaults.
func Resolve(path string) (Config, error) {
	var cfg Config
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	return ApplyEnv(cfg, os.Getenv).WithDefaults(), nil
}
