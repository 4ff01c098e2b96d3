package config

import (
	"os"
	"strconv"
	"time"
)

const DefaultTokenEndpoint = "https://tokens.indieauth.com/token"

type Config struct {
	Addr          string
	DBPath        string
	BaseURL       string
	TokenEndpoint string
	FetchTimeout  time.Duration
	MaxUploads    int
	RateLimits    RateLimits
}

type RateLimits struct {
	CreatePerMinute int
}

func Load() Config {
	addr := envString("MICROPUB_ADDR", "")
	if addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		} else {
			addr = ":8080"
		}
	}
	cfg := Config{
		Addr:          addr,
		DBPath:        envString("MICROPUB_DB", "micropub.db"),
		BaseURL:       envString("MICROPUB_BASE_URL", "http://localhost:8080"),
		TokenEndpoint: envString("MICROPUB_TOKEN_ENDPOINT", DefaultTokenEndpoint),
		FetchTimeout:  envDuration("MICROPUB_FETCH_TIMEOUT", 5*time.Second),
		MaxUploads:    envInt("MICROPUB_MAX_UPLOADS", 20),
		RateLimits: RateLimits{
			CreatePerMinute: envInt("MICROPUB_RL_CREATE_PER_MIN", 30),
		},
	}

	return cfg
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
