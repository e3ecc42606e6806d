package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/ranger/internal/model"
)

// resetConfig isolates the global viper state and config flags for one test
func resetConfig(t *testing.T) {
	t.Helper()
	viper.Reset()
	oldFile := cfgFile
	t.Cleanup(func() {
		viper.Reset()
		cfgFile = oldFile
	})
}

func TestLoadConfig_Defaults(t *testing.T) {
	resetConfig(t)

	cfg, err := loadConfig()
	require.NoError(t, err)

	def := model.DefaultConfig()
	assert.Equal(t, def.Storage, cfg.Storage)
	assert.Equal(t, def.Loop, cfg.Loop)
	assert.Equal(t, def.SelfMod.AllowList, cfg.SelfMod.AllowList)
	assert.Equal(t, def.Advisor.Thresholds, cfg.Advisor.Thresholds)
	assert.Equal(t, 15*time.Minute, cfg.Cache.MemoryTTL)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	resetConfig(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  db_path: /var/lib/ranger/knowledge.db
loop:
  interval: 10s
server:
  addr: 127.0.0.1:9000
`), 0600))

	t.Setenv("RANGER_LOGGING_LEVEL", "debug")
	t.Setenv("RANGER_LLM_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	cfgFile = path
	initConfig()

	cfg, err := loadConfig()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/ranger/knowledge.db", cfg.Storage.DBPath)
	assert.Equal(t, 10*time.Second, cfg.Loop.Interval)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "123:abc", cfg.Telegram.Token)

	// Keys absent from the file keep their defaults
	assert.Equal(t, "backups/db", cfg.Storage.BackupDir)
	assert.Equal(t, 60*time.Second, cfg.Loop.Backoff)
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	require.NoError(t, writeDefaultConfig(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# Ranger Configuration File"))
	assert.Contains(t, string(data), "RANGER_LLM_API_KEY")

	var cfg model.Config
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Equal(t, model.DefaultConfig().Storage, cfg.Storage)
	assert.Equal(t, model.DefaultConfig().Advisor.Interval, cfg.Advisor.Interval)

	err = writeDefaultConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "héll...", truncate("héllo world", 4))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "3f2a9c1d", shortID("3f2a9c1d-1111-2222-3333-444455556666"))
	assert.Equal(t, "abc", shortID("abc"))
}

func TestBackgroundLoopRejectsBadSchedule(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Loop.BackupSchedule = "not a cron spec"

	_, err := newBackgroundLoop(&app{cfg: cfg})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backup-db")
}
