package infra

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	JWTSecret          string
	PublicBaseURL      string
	GeoIPDBPath        string
	CORSAllowedOrigins []string
	TrustedProxies     []netip.Prefix
	TrustCloudflare    bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	FreeCallsLimit  int
	FreeCallsWindow time.Duration
	QuotaFailOpen   bool

	ProviderDefaults   map[string]ProviderDefault
	TextPlatforms      []string
	ImagePlatforms     []string
	ProviderTimeout    time.Duration
	StatusPollInterval time.Duration

	DispatchMode      string
	WorkerConcurrency int

	StorageBackend string
	StoragePath    string
	GCSBucket      string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

const (
	DispatchInline = "inline"
	DispatchQueue  = "queue"

	StorageFile = "file"
	StorageGCS  = "gcs"
)

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		Port:               port,
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		PublicBaseURL:      strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:"+port), "/"),
		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", nil),
		TrustCloudflare:    getEnvBool("TRUST_CLOUDFLARE", false),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getEnvInt("REDIS_DB", 0),
		FreeCallsLimit:     getEnvInt("FREE_CALLS_LIMIT", 3),
		FreeCallsWindow:    time.Hour * time.Duration(getEnvInt("FREE_CALLS_WINDOW_HOURS", 24)),
		QuotaFailOpen:      getEnvBool("QUOTA_FAIL_OPEN", false),
		ProviderDefaults:   loadProviderDefaults(),
		TextPlatforms:      getEnvList("TEXT_PLATFORMS", []string{"deepseek", "gemini"}),
		ImagePlatforms:     getEnvList("IMAGE_PLATFORMS", []string{"jimeng", "seedream", "gemini"}),
		ProviderTimeout:    time.Second * time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 60)),
		StatusPollInterval: time.Second * time.Duration(getEnvInt("STATUS_POLL_INTERVAL_SECONDS", 5)),
		DispatchMode:       strings.ToLower(getEnv("DISPATCH_MODE", DispatchInline)),
		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 4),
		StorageBackend:     strings.ToLower(getEnv("STORAGE_BACKEND", StorageFile)),
		StoragePath:        getEnv("STORAGE_PATH", "./storage"),
		GCSBucket:          os.Getenv("GCS_BUCKET"),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	proxies, err := parsePrefixes(getEnvList("TRUSTED_PROXIES", nil))
	if err != nil {
		return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}
	cfg.TrustedProxies = proxies

	switch cfg.DispatchMode {
	case DispatchInline, DispatchQueue:
	default:
		return nil, fmt.Errorf("DISPATCH_MODE must be %q or %q", DispatchInline, DispatchQueue)
	}

	switch cfg.StorageBackend {
	case StorageFile:
	case StorageGCS:
		if cfg.GCSBucket == "" {
			return nil, fmt.Errorf("GCS_BUCKET is required when STORAGE_BACKEND=gcs")
		}
	default:
		return nil, fmt.Errorf("unsupported STORAGE_BACKEND %q", cfg.StorageBackend)
	}

	if cfg.FreeCallsLimit < 0 {
		cfg.FreeCallsLimit = 0
	}
	if cfg.WorkerConcurrency <= 0 {
		cfg.WorkerConcurrency = 1
	}

	return cfg, nil
}

// ProviderDefault is the operator supplied credential used for anonymous callers.
type ProviderDefault struct {
	Endpoint string
	Token    string
	Model    string
}

// KnownPlatforms lists every platform identifier accepted by the service.
var KnownPlatforms = []string{"deepseek", "gemini", "openai", "doubao", "claude", "jimeng", "seedream", "dreamina"}

var builtinEndpoints = map[string]string{
	"gemini": "https://generativelanguage.googleapis.com/v1beta",
	"claude": "https://api.anthropic.com",
}

func loadProviderDefaults() map[string]ProviderDefault {
	out := make(map[string]ProviderDefault)
	for _, platform := range KnownPlatforms {
		prefix := strings.ToUpper(platform)
		def := ProviderDefault{
			Endpoint: strings.TrimSpace(getEnv(prefix+"_ENDPOINT", builtinEndpoints[platform])),
			Token:    strings.TrimSpace(os.Getenv(prefix + "_API_KEY")),
			Model:    strings.TrimSpace(os.Getenv(prefix + "_MODEL")),
		}
		if def.Endpoint == "" || def.Token == "" {
			continue
		}
		out[platform] = def
	}
	return out
}

// parsePrefixes accepts CIDR ranges and bare addresses.
func parsePrefixes(entries []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(entries))
	for _, entry := range entries {
		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, err
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, err
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvList splits a comma separated variable, dropping blanks and lowercasing entries.
func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
