package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("ADMIN_IDS", "10, 20,,30")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20, 30}, cfg.AdminIDs)
	assert.Equal(t, "@primekin0", cfg.PromoChannel)
	assert.Equal(t, 15, cfg.RandomListLimit)
	assert.Equal(t, 50, cfg.BroadcastChunkSize)
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, 30*time.Second, cfg.DBTimeout)
	assert.Equal(t, 50*time.Millisecond, cfg.DBRetryDelay)
	assert.Equal(t, "@every 1h", cfg.PremiumSweepSchedule)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.ShutdownGrace)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("SHARE_BOT_USERNAME", "@kino_bot")
	t.Setenv("BROADCAST_RATE", "0")
	t.Setenv("PREMIUM_SWEEP_SCHEDULE", "")
	t.Setenv("STORE_DRIVER", "Mongo")
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	t.Setenv("PORT", ":9000")
	t.Setenv("DB_TIMEOUT", "45")
	t.Setenv("DB_RETRY_DELAY", "100ms")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "kino_bot", cfg.ShareBotUsername)
	assert.Zero(t, cfg.BroadcastRate)
	assert.Empty(t, cfg.PremiumSweepSchedule)
	assert.Equal(t, DriverMongo, cfg.StoreDriver)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 45*time.Second, cfg.DBTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.DBRetryDelay)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing token", map[string]string{"BOT_TOKEN": ""}},
		{"bad admin id", map[string]string{"BOT_TOKEN": "x", "ADMIN_IDS": "1,abc"}},
		{"zero limit", map[string]string{"BOT_TOKEN": "x", "RANDOM_LIST_LIMIT": "0"}},
		{"unknown driver", map[string]string{"BOT_TOKEN": "x", "STORE_DRIVER": "postgres"}},
		{"mongo without uri", map[string]string{"BOT_TOKEN": "x", "STORE_DRIVER": "mongo"}},
		{"bad duration", map[string]string{"BOT_TOKEN": "x", "SESSION_TTL": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nexport KINOBOT_A=\"one\"\nKINOBOT_B=two\nnot a pair\n"), 0o600))
	t.Setenv("KINOBOT_B", "kept")
	t.Setenv("KINOBOT_A", "")
	require.NoError(t, os.Unsetenv("KINOBOT_A"))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "one", os.Getenv("KINOBOT_A"))
	assert.Equal(t, "kept", os.Getenv("KINOBOT_B"))

	assert.Error(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing")))
}
