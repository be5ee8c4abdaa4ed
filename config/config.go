package config

import (
	"fmt"
	"os"
	"time"
)

// Config is the full process configuration, read once at startup.
type Config struct {
	ListenAddr  string
	PostgresURL string
	JWTKey      string
	TokenAge    time.Duration
	LogLevel    string
}

const defaultTokenAge = time.Hour

// Load reads the environment. POSTGRES_URL and JWT_KEY are required,
// everything else has a default.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":39190"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		TokenAge:   defaultTokenAge,
	}

	pgURL, ok := os.LookupEnv("POSTGRES_URL")
	if !ok {
		return Config{}, fmt.Errorf("missing postgres url")
	}
	cfg.PostgresURL = pgURL

	jwtKey, ok := os.LookupEnv("JWT_KEY")
	if !ok {
		return Config{}, fmt.Errorf("missing jwt signing key")
	}
	cfg.JWTKey = jwtKey

	if raw, ok := os.LookupEnv("TOKEN_AGE"); ok {
		age, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid TOKEN_AGE: %w", err)
		}
		cfg.TokenAge = age
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
