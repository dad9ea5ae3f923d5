package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hselingforschool/olymp-queue-bot/internal/domain/matching"
)

// chdirTemp runs the test in an empty directory so a developer's .env is not
// picked up.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_OWNER_ID", "42")
	t.Setenv("TELEGRAM_OWNER_HANDLE", "organizer")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(42), cfg.Telegram.OwnerID)
	assert.Equal(t, "@organizer", cfg.Telegram.OwnerHandle)
	assert.Equal(t, matching.BusynessDesc, cfg.Matching.BusynessOrder)
	assert.Equal(t, LockBackendLocal, cfg.Matching.LockBackend)
	assert.Equal(t, 30*time.Second, cfg.Matching.LockTTL)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.True(t, cfg.Features.IsEnabled(FeatureBlockDistribution))
}

func TestLoad_DotEnv(t *testing.T) {
	dir := chdirTemp(t)
	env := "TELEGRAM_BOT_TOKEN=from-file\nTELEGRAM_OWNER_ID=7\nMATCHING_BUSYNESS_ORDER=ASC\nLOCK_BACKEND=redis\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600))
	t.Setenv("TELEGRAM_OWNER_ID", "8")

	cfg, err := Load()
	require.NoError(t, err)
	t.Cleanup(func() {
		for _, k := range []string{"TELEGRAM_BOT_TOKEN", "MATCHING_BUSYNESS_ORDER", "LOCK_BACKEND"} {
			_ = os.Unsetenv(k)
		}
	})

	assert.Equal(t, "from-file", cfg.Telegram.Token)
	assert.Equal(t, int64(8), cfg.Telegram.OwnerID, "real environment wins over .env")
	assert.Equal(t, matching.BusynessAsc, cfg.Matching.BusynessOrder)
	assert.Equal(t, LockBackendRedis, cfg.Matching.LockBackend)
}

func TestLoad_InvalidOwnerID(t *testing.T) {
	chdirTemp(t)
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_OWNER_ID", "not-a-number")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_OWNER_ID")
}

func TestValidate_AggregatesErrors(t *testing.T) {
	cfg := &Config{
		App:      AppConfig{Environment: EnvProduction},
		Telegram: TelegramConfig{UseWebhook: true},
		Matching: MatchingConfig{BusynessOrder: "random", LockBackend: "etcd"},
		Storage:  StorageConfig{Bucket: "blocks"},
		HTTP:     HTTPConfig{Enabled: true, Port: 70000},
	}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"TELEGRAM_BOT_TOKEN",
		"TELEGRAM_OWNER_ID",
		"TELEGRAM_WEBHOOK_URL",
		"DATABASE_URL",
		"MATCHING_BUSYNESS_ORDER",
		"LOCK_BACKEND",
		"LOCK_TTL",
		"STORAGE_ACCESS_KEY_ID",
		"HTTP_PORT",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestFeatureFlags(t *testing.T) {
	t.Setenv("FEATURE_ANNOUNCE_PHASE_BROADCASTS", "false")
	t.Setenv("FEATURE_HTTP_STATUS_API", "maybe")

	ff := LoadFeatureFlags()
	assert.False(t, ff.IsEnabled(FeaturePhaseBroadcasts))
	assert.True(t, ff.IsEnabled(FeatureStatusAPI), "unparsable override keeps the default")
	assert.False(t, ff.IsEnabled("no.such.feature"))

	require.NoError(t, ff.EnableFeature(FeaturePhaseBroadcasts))
	assert.True(t, ff.IsEnabled(FeaturePhaseBroadcasts))

	var flagErr *FeatureFlagError
	require.ErrorAs(t, ff.DisableFeature("no.such.feature"), &flagErr)

	all := ff.GetAllFeatures()
	require.Len(t, all, 4)
	assert.Equal(t, FeaturePhaseBroadcasts, all[0].Name)
}
