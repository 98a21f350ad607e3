package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
)

const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

type Config struct {
	BotToken         string `validate:"required"`
	AdminIDs         []int64
	PromoChannel     string
	ShareBotUsername string
	RandomListLimit  int `validate:"gt=0"`
	MovieListLimit   int `validate:"gt=0"`

	BroadcastChunkSize   int     `validate:"gt=0"`
	BroadcastConcurrency int     `validate:"gt=0"`
	BroadcastRate        float64 `validate:"gte=0"`

	StoreDriver   string        `validate:"oneof=sqlite mongo"`
	DBPath        string        `validate:"required_if=StoreDriver sqlite"`
	DBTimeout     time.Duration `validate:"gte=0"`
	DBMaxRetries  int           `validate:"gt=0"`
	DBRetryDelay  time.Duration `validate:"gt=0"`
	MongoURI      string        `validate:"required_if=StoreDriver mongo"`
	MongoDatabase string

	RedisAddr  string
	SessionTTL time.Duration `validate:"gt=0"`

	LegacyJSONPath       string
	PremiumSweepSchedule string

	WebhookURL    string `validate:"omitempty,url"`
	WebhookSecret string
	Port          string `validate:"required"`
	// ShutdownGrace bounds how long in-flight updates may run after a stop signal.
	ShutdownGrace time.Duration `validate:"gt=0"`

	LogLevel  string
	LogFormat string
}

var validate = validator.New()

// Load reads the environment. Unset keys fall back to defaults; malformed ones
// are reported rather than silently replaced.
func Load() (*Config, error) {
	e := &envReader{}
	cfg := &Config{
		BotToken:         e.str("BOT_TOKEN", ""),
		AdminIDs:         e.ids("ADMIN_IDS"),
		PromoChannel:     e.str("PROMO_CHANNEL", "@primekin0"),
		ShareBotUsername: strings.TrimPrefix(e.str("SHARE_BOT_USERNAME", ""), "@"),
		RandomListLimit:  e.int("RANDOM_LIST_LIMIT", 15),
		MovieListLimit:   e.int("MOVIE_LIST_LIMIT", 50),

		BroadcastChunkSize:   e.int("BROADCAST_CHUNK_SIZE", 50),
		BroadcastConcurrency: e.int("BROADCAST_CONCURRENCY", 20),
		BroadcastRate:        e.float("BROADCAST_RATE", 25),

		StoreDriver:   strings.ToLower(e.str("STORE_DRIVER", DriverSQLite)),
		DBPath:        e.str("DB_PATH", "bot.db"),
		DBTimeout:     e.duration("DB_TIMEOUT", 30*time.Second),
		DBMaxRetries:  e.int("DB_MAX_RETRIES", 5),
		DBRetryDelay:  e.duration("DB_RETRY_DELAY", 50*time.Millisecond),
		MongoURI:      e.str("MONGODB_URI", ""),
		MongoDatabase: e.str("MONGODB_DATABASE", "kinobot"),

		RedisAddr:  e.str("REDIS_ADDR", ""),
		SessionTTL: e.duration("SESSION_TTL", 24*time.Hour),

		LegacyJSONPath:       e.str("LEGACY_JSON_PATH", "movies.json"),
		PremiumSweepSchedule: e.strAllowEmpty("PREMIUM_SWEEP_SCHEDULE", "@every 1h"),

		WebhookURL:    e.str("WEBHOOK_URL", ""),
		WebhookSecret: e.str("WEBHOOK_SECRET", ""),
		Port:          strings.TrimPrefix(e.str("PORT", "8080"), ":"),
		ShutdownGrace: e.duration("SHUTDOWN_GRACE", 30*time.Second),

		LogLevel:  e.str("LOG_LEVEL", "info"),
		LogFormat: e.str("LOG_FORMAT", ""),
	}
	if len(e.errs) > 0 {
		return nil, errors.Join(e.errs...)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

type envReader struct {
	errs []error
}

func (e *envReader) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// strAllowEmpty distinguishes an unset key from one set to empty.
func (e *envReader) strAllowEmpty(key, def string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return strings.TrimSpace(v)
}

func (e *envReader) int(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (e *envReader) float(key string, def float64) float64 {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

// duration reads a Go duration; a bare number is taken as seconds.
func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	if secs, err := cast.ToFloat64E(v); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	d, err := cast.ToDurationE(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (e *envReader) ids(key string) []int64 {
	var out []int64
	for _, part := range strings.Split(e.str(key, ""), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := cast.ToInt64E(part)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s: %q: %w", key, part, err))
			continue
		}
		out = append(out, id)
	}
	return out
}
