package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

const devSecret = "supersecret-dev-key"

type Config struct {
	Mode     Mode
	HTTPAddr string
	LogLevel slog.Level

	DBDriver string
	DBDSN    string

	AuthSecret      string
	EnableLocalAuth bool
	AdminUser       string
	AdminPassHash   string // bcrypt

	CORSOriginsOnline  []string
	CORSOriginsOffline []string

	GradeScaleFile     string
	EmptyCountedPolicy string // pass|fail

	CacheDriver   string // memory|redis|none
	CacheTTL      time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	EnableLMSSync   bool
	LMSBaseURL      string
	LMSTokenURL     string
	LMSClientID     string
	LMSClientSecret string
	LMSRPS          float64
	LMSTimeout      time.Duration
}

func FromEnv() Config {
	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	return Config{
		Mode:     mode,
		HTTPAddr: envOr("HTTP_ADDR", ":8080"),
		LogLevel: envLevel("LOG_LEVEL", slog.LevelInfo),

		DBDriver: envOr("DB_DRIVER", "sqlite"),
		DBDSN:    envOr("DB_DSN", ""),

		AuthSecret:      envOr("AUTH_HMAC_SECRET", devSecret),
		EnableLocalAuth: envBool("ENABLE_LOCAL_AUTH", mode == ModeOffline),
		AdminUser:       envOr("ADMIN_USER", "admin"),
		AdminPassHash:   envOr("ADMIN_PASS_HASH", ""),

		CORSOriginsOnline:  csvOr("CORS_ORIGINS_ONLINE", "https://grades.mindengage.ai"),
		CORSOriginsOffline: csvOr("CORS_ORIGINS_OFFLINE", "http://localhost:3000,http://localhost:3010"),

		GradeScaleFile:     os.Getenv("GRADE_SCALE_FILE"),
		EmptyCountedPolicy: envOr("EMPTY_COUNTED_POLICY", "pass"),

		CacheDriver:   strings.ToLower(envOr("CACHE_DRIVER", "memory")),
		CacheTTL:      envDuration("CACHE_TTL", 10*time.Minute),
		RedisAddr:     envOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),

		EnableLMSSync:   envBool("ENABLE_LMS_SYNC", false),
		LMSBaseURL:      os.Getenv("LMS_BASE_URL"),
		LMSTokenURL:     os.Getenv("LMS_TOKEN_URL"),
		LMSClientID:     os.Getenv("LMS_CLIENT_ID"),
		LMSClientSecret: os.Getenv("LMS_CLIENT_SECRET"),
		LMSRPS:          envFloat("LMS_RPS", 5),
		LMSTimeout:      envDuration("LMS_TIMEOUT", 15*time.Second),
	}
}

// Validate catches settings that would only fail later at request time.
func (c Config) Validate() error {
	var errs []error
	if c.Mode != ModeOffline && c.Mode != ModeOnline {
		errs = append(errs, fmt.Errorf("MODE must be offline or online, got %q", c.Mode))
	}
	if c.Mode == ModeOnline && c.AuthSecret == devSecret {
		errs = append(errs, errors.New("AUTH_HMAC_SECRET must be set in online mode"))
	}
	switch c.CacheDriver {
	case "memory", "redis", "none":
	default:
		errs = append(errs, fmt.Errorf("CACHE_DRIVER must be memory, redis or none, got %q", c.CacheDriver))
	}
	if c.EnableLMSSync && c.LMSBaseURL == "" {
		errs = append(errs, errors.New("LMS_BASE_URL is required when ENABLE_LMS_SYNC is set"))
	}
	return errors.Join(errs...)
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

func envInt(k string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return n
	}
	return def
}

func envFloat(k string, def float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(k), 64); err == nil {
		return f
	}
	return def
}

func envDuration(k string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(k)); err == nil {
		return d
	}
	return def
}

func envLevel(k string, def slog.Level) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(os.Getenv(k))); err == nil {
		return l
	}
	return def
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
