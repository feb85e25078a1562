// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries everything the server reads from the environment.
type Config struct {
	Addr        string
	DatabaseURL string
	RedisAddr   string
	RedisDB     int

	XirsysURL    string
	XirsysIdent  string
	XirsysSecret string
	IceCacheTTL  time.Duration

	AllowedOrigins []string

	SweepInterval time.Duration
	StaleTimeout  time.Duration
	RoomMaxAge    time.Duration
}

// Load reads the configuration from environment variables, applying
// defaults for everything optional.
func Load() Config {
	return Config{
		Addr:        ":" + getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		RedisDB:     getEnvInt("REDIS_DB", 0),

		XirsysURL:    os.Getenv("XIRSYS_URL"),
		XirsysIdent:  os.Getenv("XIRSYS_IDENT"),
		XirsysSecret: os.Getenv("XIRSYS_SECRET"),
		IceCacheTTL:  getEnvDuration("ICE_CACHE_TTL", 5*time.Minute),

		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"*"}),

		SweepInterval: getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),
		StaleTimeout:  getEnvDuration("STALE_TIMEOUT", 30*time.Minute),
		RoomMaxAge:    getEnvDuration("ROOM_MAX_AGE", 24*time.Hour),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return v
}

func getEnvList(key string, def []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
