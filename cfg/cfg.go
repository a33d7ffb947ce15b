package cfg

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

const (
	DefaultHost     = "http://localhost:8000"
	DefaultStoreURL = "redis://127.0.0.1/"
)

type Secret struct {
	value []byte
}

func NewSecret(s string) Secret {
	return Secret{value: []byte(s)}
}
func (s Secret) Value() string {
	return string(s.value)
}
func (s Secret) Wipe() {
	for i := range s.value {
		s.value[i] = 0
	}
}
func (s Secret) String() string {
	return "***REDACTED***"
}

// Cfg is built once at startup and shared read-only afterwards.
type Cfg struct {
	Host               string
	StoreURL           string
	Port               string
	Environment        string
	LogLevel           string
	IDLength           int
	MaxPasteSize       int64
	StoreTimeout       time.Duration
	StorePool          bool
	StoreUsername      string
	StorePassword      Secret
	KeyPrefix          string
	SwallowWriteErrors bool
	ContextTimeout     time.Duration
	RateLimit          RateLimitCfg
	TrustedProxies     []string
	MetricsUser        string
	MetricsPass        Secret
}

type RateLimitCfg struct {
	RPM     int
	Burst   int
	Clients int
}

func Load() (*Cfg, error) {
	if err := loadDotEnv(getEnv("ENV_FILE", ".env")); err != nil {
		return nil, err
	}
	c := &Cfg{}
	c.Host = getEnv("HOST", DefaultHost)
	c.StoreURL = getEnv("REDIS_URL", getEnv("STORE_URL", DefaultStoreURL))
	c.Port = getEnv("PORT", "8000")
	c.Environment = getEnv("ENVIRONMENT", "development")
	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.StoreUsername = getEnv("STORE_USERNAME", "")
	c.StorePassword = NewSecret(getEnv("STORE_PASSWORD", ""))
	c.KeyPrefix = getEnv("KEY_PREFIX", "")
	c.TrustedProxies = getSlice("TRUSTED_PROXIES", []string{})
	c.MetricsUser = getEnv("METRICS_USER", "")
	c.MetricsPass = NewSecret(getEnv("METRICS_PASS", ""))
	var err error
	c.IDLength, err = getInt("ID_LENGTH", 12)
	if err != nil {
		return nil, err
	}
	c.MaxPasteSize, err = getInt64("MAX_PASTE_SIZE", 128*1024)
	if err != nil {
		return nil, err
	}
	c.StoreTimeout, err = getDuration("STORE_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	c.StorePool, err = getBool("STORE_POOL", false)
	if err != nil {
		return nil, err
	}
	c.SwallowWriteErrors, err = getBool("SWALLOW_WRITE_ERRORS", false)
	if err != nil {
		return nil, err
	}
	c.ContextTimeout, err = getDuration("CONTEXT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	c.RateLimit.RPM, err = getInt("RATE_LIMIT_RPM", 120)
	if err != nil {
		return nil, err
	}
	c.RateLimit.Burst, err = getInt("RATE_LIMIT_BURST", 20)
	if err != nil {
		return nil, err
	}
	c.RateLimit.Clients, err = getInt("RATE_LIMIT_CLIENTS", 10000)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func Validate(c *Cfg) error {
	u, err := url.Parse(c.Host)
	if err != nil {
		return errors.Wrap(err, "invalid HOST")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("HOST must be an absolute http:// or https:// URL")
	}
	if c.StoreURL == "" {
		return errors.New("REDIS_URL is required")
	}
	su, err := url.Parse(c.StoreURL)
	if err != nil {
		return errors.Wrap(err, "invalid REDIS_URL")
	}
	switch su.Scheme {
	case "redis", "rediss", "unix", "sqlite", "mem":
	default:
		return fmt.Errorf("REDIS_URL scheme %q not supported", su.Scheme)
	}
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return errors.New("PORT must be a number")
	}
	if c.IDLength < 1 || c.IDLength > 64 {
		return errors.New("ID_LENGTH must be between 1 and 64")
	}
	if c.MaxPasteSize <= 0 {
		return errors.New("MAX_PASTE_SIZE must be positive")
	}
	if c.MaxPasteSize > 10*1024*1024 {
		return errors.New("MAX_PASTE_SIZE cannot exceed 10MB")
	}
	if c.StoreTimeout <= 0 {
		return errors.New("STORE_TIMEOUT must be positive")
	}
	if c.ContextTimeout <= 0 {
		return errors.New("CONTEXT_TIMEOUT must be positive")
	}
	if c.RateLimit.RPM <= 0 {
		return errors.New("RATE_LIMIT_RPM must be positive")
	}
	if c.RateLimit.Burst <= 0 {
		return errors.New("RATE_LIMIT_BURST must be positive")
	}
	if c.RateLimit.Clients <= 0 {
		return errors.New("RATE_LIMIT_CLIENTS must be positive")
	}
	for _, proxy := range c.TrustedProxies {
		if strings.Contains(proxy, "/") {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return fmt.Errorf("invalid CIDR in TRUSTED_PROXIES: %s", proxy)
			}
		} else if net.ParseIP(proxy) == nil {
			return fmt.Errorf("invalid IP in TRUSTED_PROXIES: %s", proxy)
		}
	}
	if c.Environment == "production" {
		if c.MetricsUser == "" || c.MetricsPass.Value() == "" {
			return errors.New("METRICS_USER and METRICS_PASS are required in production")
		}
	}
	return nil
}

// BaseURL is Host without trailing slashes.
func (c *Cfg) BaseURL() string {
	return strings.TrimRight(c.Host, "/")
}

func (c *Cfg) Wipe() {
	c.StorePassword.Wipe()
	c.MetricsPass.Wipe()
}

// loadDotEnv never overrides variables already present in the environment.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "stat %s", path)
	}
	return errors.Wrapf(godotenv.Load(path), "load %s", path)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
func getInt(key string, fallback int) (int, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return v, nil
}
func getInt64(key string, fallback int64) (int64, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return v, nil
}
func getBool(key string, fallback bool) (bool, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid boolean for %s: %w", key, err)
	}
	return v, nil
}
func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := getEnv(key, "")
	if s == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return v, nil
}
func getSlice(key string, fallback []string) []string {
	s := getEnv(key, "")
	if s == "" {
		return fallback
	}
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
