package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenAddr string
	// APIKeys maps an API key to the owner identity it authenticates.
	APIKeys map[string]string

	ProviderURL   string
	ProviderKey   string
	ProviderModel string

	MaxUploadBytes int64
	MaxQueueDepth  int
	MaxParallel    int

	JobRetention    time.Duration
	CacheTTL        time.Duration
	CacheDBPath     string
	CleanupInterval time.Duration

	ProviderTimeout time.Duration
	MaxAttempts     int
	RetryBaseDelay  time.Duration

	RateLimitRPS int
	CORSOrigins  []string

	WatchDir   string
	WatchOwner string
	TmpDir     string
}

func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:    getEnv("SCRIBED_LISTEN_ADDR", ":8080"),
		ProviderURL:   getEnv("SCRIBED_PROVIDER_URL", "https://api.openai.com/v1"),
		ProviderKey:   getEnv("SCRIBED_PROVIDER_KEY", ""),
		ProviderModel: getEnv("SCRIBED_PROVIDER_MODEL", "whisper-1"),
		CacheDBPath:   getEnv("SCRIBED_CACHE_DB_PATH", ""),
		WatchDir:      getEnv("SCRIBED_WATCH_DIR", ""),
		WatchOwner:    getEnv("SCRIBED_WATCH_OWNER", ""),
		TmpDir:        getEnv("SCRIBED_TMP_DIR", os.TempDir()),
	}

	rawKeys := getEnv("SCRIBED_API_KEYS", "")
	if rawKeys == "" {
		return nil, errors.New("SCRIBED_API_KEYS must not be empty")
	}
	cfg.APIKeys = make(map[string]string)
	for _, pair := range strings.Split(rawKeys, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		owner, key, ok := strings.Cut(pair, ":")
		if !ok || owner == "" || key == "" {
			return nil, fmt.Errorf("SCRIBED_API_KEYS entry %q must be owner:key", pair)
		}
		cfg.APIKeys[key] = owner
	}
	if len(cfg.APIKeys) == 0 {
		return nil, errors.New("SCRIBED_API_KEYS contains no valid owner:key pairs")
	}

	if cfg.ProviderKey == "" {
		return nil, errors.New("SCRIBED_PROVIDER_KEY must not be empty")
	}

	maxUploadMB, err := getEnvInt("SCRIBED_MAX_UPLOAD_MB", 12)
	if err != nil {
		return nil, fmt.Errorf("SCRIBED_MAX_UPLOAD_MB: %w", err)
	}
	if maxUploadMB < 1 {
		return nil, errors.New("SCRIBED_MAX_UPLOAD_MB must be > 0")
	}
	cfg.MaxUploadBytes = int64(maxUploadMB) << 20

	cfg.MaxQueueDepth, err = getEnvInt("SCRIBED_MAX_QUEUE_DEPTH", 32)
	if err != nil {
		return nil, fmt.Errorf("SCRIBED_MAX_QUEUE_DEPTH: %w", err)
	}
	if cfg.MaxQueueDepth < 1 {
		return nil, errors.New("SCRIBED_MAX_QUEUE_DEPTH must be > 0")
	}

	cfg.MaxParallel, err = getEnvInt("SCRIBED_MAX_PARALLEL", 2)
	if err != nil {
		return nil, fmt.Errorf("SCRIBED_MAX_PARALLEL: %w", err)
	}
	if cfg.MaxParallel < 1 {
		return nil, errors.New("SCRIBED_MAX_PARALLEL must be > 0")
	}

	cfg.MaxAttempts, err = getEnvInt("SCRIBED_MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, fmt.Errorf("SCRIBED_MAX_ATTEMPTS: %w", err)
	}
	if cfg.MaxAttempts < 1 {
		return nil, errors.New("SCRIBED_MAX_ATTEMPTS must be > 0")
	}

	cfg.RateLimitRPS, err = getEnvInt("SCRIBED_RATE_LIMIT_RPS", 0)
	if err != nil {
		return nil, fmt.Errorf("SCRIBED_RATE_LIMIT_RPS: %w", err)
	}

	cfg.JobRetention, err = getEnvDuration("SCRIBED_JOB_RETENTION", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("SCRIBED_JOB_RETENTION: %w", err)
	}
	cfg.CacheTTL, err = getEnvDuration("SCRIBED_CACHE_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("SCRIBED_CACHE_TTL: %w", err)
	}
	cfg.CleanupInterval, err = getEnvDuration("SCRIBED_CLEANUP_INTERVAL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SCRIBED_CLEANUP_INTERVAL: %w", err)
	}
	cfg.ProviderTimeout, err = getEnvDuration("SCRIBED_PROVIDER_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SCRIBED_PROVIDER_TIMEOUT: %w", err)
	}
	cfg.RetryBaseDelay, err = getEnvDuration("SCRIBED_RETRY_BASE_DELAY", 500*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("SCRIBED_RETRY_BASE_DELAY: %w", err)
	}

	if rawOrigins := getEnv("SCRIBED_CORS_ORIGINS", ""); rawOrigins != "" {
		for _, o := range strings.Split(rawOrigins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	if cfg.WatchDir != "" && cfg.WatchOwner == "" {
		return nil, errors.New("SCRIBED_WATCH_OWNER required when SCRIBED_WATCH_DIR is set")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", v)
	}
	return d, nil
}
