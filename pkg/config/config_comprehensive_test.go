package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.SetDataDir(t.TempDir())
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, StrategyConsentRequired, cfg.Keywords.Strategy)
	assert.Equal(t, []string{"dm me", "send link", "info", "details", "interested"}, cfg.Keywords.General)
	assert.Contains(t, cfg.Messages.DirectMessage, "{link}")
	assert.Equal(t, "https://your-website.com", cfg.Messages.DefaultLink)
	assert.Equal(t, 5, cfg.Monitoring.MaxPostsToCheck)
	assert.Equal(t, 5*time.Minute, cfg.Monitoring.CheckInterval)
	assert.Equal(t, 10*time.Minute, cfg.Auth.RetryDelay)
	assert.Equal(t, 5*time.Minute, cfg.Auth.VerifyInterval)
	assert.Equal(t, 30*time.Second, cfg.Instagram.Timeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("IGDMBOT_INSTAGRAM_USERNAME", "shop")
	t.Setenv("IGDMBOT_INSTAGRAM_SESSION_ID", "sess-123")
	t.Setenv("IGDMBOT_KEYWORD_STRATEGY", "any_keyword")
	t.Setenv("IGDMBOT_KEYWORDS", "price, link\nbuy")
	t.Setenv("IGDMBOT_CHECK_INTERVAL", "90s")
	t.Setenv("IGDMBOT_MAX_POSTS_TO_CHECK", "9")
	t.Setenv("IGDMBOT_ENABLE_DIRECT_DM", "false")
	t.Setenv("IGDMBOT_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "shop", cfg.Instagram.Username)
	assert.Equal(t, "sess-123", cfg.Instagram.SessionID)
	assert.Equal(t, StrategyAnyKeyword, cfg.Keywords.Strategy)
	assert.Equal(t, []string{"price", "link", "buy"}, cfg.Keywords.General)
	assert.Equal(t, 90*time.Second, cfg.Monitoring.CheckInterval)
	assert.Equal(t, 9, cfg.Monitoring.MaxPostsToCheck)
	assert.False(t, cfg.Messages.EnableDirectDM)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromEnvInvalidValues(t *testing.T) {
	t.Setenv("IGDMBOT_CHECK_INTERVAL", "often")
	t.Setenv("IGDMBOT_MAX_DMS_PER_HOUR", "lots")

	cfg := DefaultConfig()
	err := cfg.LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IGDMBOT_CHECK_INTERVAL")
	assert.Contains(t, err.Error(), "IGDMBOT_MAX_DMS_PER_HOUR")
}

func TestLoadFromFile(t *testing.T) {
	t.Run("yaml keeps defaults for missing keys", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "igdmbot.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
instagram:
  username: file_user
keywords:
  strategy: any_keyword
  general: [buy]
monitoring:
  check_interval: 2m
`), 0600))

		cfg := DefaultConfig()
		require.NoError(t, cfg.LoadFromFile(path))

		assert.Equal(t, "file_user", cfg.Instagram.Username)
		assert.Equal(t, []string{"buy"}, cfg.Keywords.General)
		assert.Equal(t, 2*time.Minute, cfg.Monitoring.CheckInterval)
		// untouched fields keep their defaults
		assert.Equal(t, DefaultConfig().Keywords.Consent, cfg.Keywords.Consent)
		assert.Equal(t, 5, cfg.Monitoring.MaxPostsToCheck)
	})

	t.Run("toml file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "igdmbot.toml")
		require.NoError(t, os.WriteFile(path, []byte(`
[instagram]
mode = "graph"
account_id = "1789"

[rate_limit]
min_delay = "3s"
max_delay = "4s"
`), 0600))

		cfg := DefaultConfig()
		require.NoError(t, cfg.LoadFromFile(path))

		assert.Equal(t, ModeGraph, cfg.Instagram.Mode)
		assert.Equal(t, "1789", cfg.Instagram.AccountID)
		assert.Equal(t, 3*time.Second, cfg.RateLimit.MinDelay)
		assert.Equal(t, 4*time.Second, cfg.RateLimit.MaxDelay)
	})

	t.Run("data dir rebases storage paths", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "igdmbot.yaml")
		require.NoError(t, os.WriteFile(path, []byte("storage:\n  data_dir: "+dir+"\n"), 0600))

		cfg := DefaultConfig()
		require.NoError(t, cfg.LoadFromFile(path))
		assert.Equal(t, filepath.Join(dir, "session.json"), cfg.Storage.SessionFile)
		assert.Equal(t, filepath.Join(dir, "igdmbot.db"), cfg.Storage.DatabasePath)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("keywords: [unclosed"), 0600))
		assert.Error(t, DefaultConfig().LoadFromFile(path))
	})

	t.Run("missing file", func(t *testing.T) {
		assert.Error(t, DefaultConfig().LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml")))
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad strategy", func(c *Config) { c.Keywords.Strategy = "sometimes" }, "keyword strategy"},
		{"no keywords", func(c *Config) { c.Keywords.General = nil }, "at least one keyword"},
		{"consent strategy without consent list", func(c *Config) { c.Keywords.Consent = nil }, "consent keywords"},
		{"any keyword without consent list", func(c *Config) {
			c.Keywords.Strategy = StrategyAnyKeyword
			c.Keywords.Consent = nil
		}, ""},
		{"inverted delays", func(c *Config) { c.RateLimit.MaxDelay = 0 }, "call delay range"},
		{"webhook without token", func(c *Config) { c.Webhook.Enabled = true }, "verify token"},
		{"bad mode", func(c *Config) { c.Instagram.Mode = "api" }, "instagram mode"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestResolvedMode(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ModeWeb, cfg.ResolvedMode())

	cfg.Instagram.AccessToken = "tok"
	assert.Equal(t, ModeGraph, cfg.ResolvedMode())

	cfg.Instagram.Password = "pw"
	assert.Equal(t, ModeWeb, cfg.ResolvedMode())

	cfg.Instagram.Mode = ModeGraph
	assert.Equal(t, ModeGraph, cfg.ResolvedMode())
}

func TestSave(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	var decoded Config
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, cfg.Keywords, decoded.Keywords)
	assert.Equal(t, cfg.Monitoring.CheckInterval, decoded.Monitoring.CheckInterval)
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	dir := t.TempDir()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"username":  "flag_user",
		"data-dir":  dir,
		"interval":  time.Minute,
		"log-level": "warn",
		"listen":    ":9999",
		"webhook":   true,
	})

	assert.Equal(t, "flag_user", cfg.Instagram.Username)
	assert.Equal(t, filepath.Join(dir, "session.json"), cfg.Storage.SessionFile)
	assert.Equal(t, time.Minute, cfg.Monitoring.CheckInterval)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, ":9999", cfg.Webhook.ListenAddr)
	assert.True(t, cfg.Webhook.Enabled)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("IGDMBOT_DATA_DIR", dir)
	t.Setenv("IGDMBOT_DEFAULT_LINK", "https://env.example")

	path := filepath.Join(dir, "igdmbot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
keywords:
  general: [file]
messages:
  default_link: https://file.example
`), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "runtime.yaml"), []byte(`
keywords:
  general: [runtime]
`), 0600))

	cfg, err := Load(path, map[string]interface{}{"log-level": "error"})
	require.NoError(t, err)

	assert.Equal(t, []string{"runtime"}, cfg.Keywords.General)
	assert.Equal(t, "https://env.example", cfg.Messages.DefaultLink)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestHolderUpdate(t *testing.T) {
	cfg := testConfig(t)
	h := NewHolder(cfg, true)

	snap := h.Snapshot()
	updated, err := h.Update(func(c *Config) error {
		c.Keywords.General = append(c.Keywords.General, "pricing")
		c.Keywords.Strategy = StrategyAnyKeyword
		return nil
	})
	require.NoError(t, err)

	assert.Contains(t, updated.Keywords.General, "pricing")
	assert.NotContains(t, snap.Keywords.General, "pricing", "earlier snapshots are unaffected")
	assert.Equal(t, StrategyAnyKeyword, h.Snapshot().Keywords.Strategy)

	// persisted and reloadable
	reloaded := testConfig(t)
	reloaded.Storage.RuntimeFile = cfg.Storage.RuntimeFile
	require.NoError(t, reloaded.LoadRuntimeOverrides())
	assert.Contains(t, reloaded.Keywords.General, "pricing")
	assert.Equal(t, StrategyAnyKeyword, reloaded.Keywords.Strategy)
}

func TestHolderRejectsInvalidUpdate(t *testing.T) {
	h := NewHolder(testConfig(t), true)

	_, err := h.Update(func(c *Config) error {
		c.Keywords.Strategy = "nope"
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, StrategyConsentRequired, h.Snapshot().Keywords.Strategy)
}

func TestHolderSnapshotIsolation(t *testing.T) {
	h := NewHolder(testConfig(t), false)

	snap := h.Snapshot()
	snap.Keywords.General[0] = "mutated"
	assert.NotEqual(t, "mutated", h.Snapshot().Keywords.General[0])

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = h.Update(func(c *Config) error {
				c.Monitoring.PostIDs = append(c.Monitoring.PostIDs, "p")
				return nil
			})
		}()
		go func() {
			defer wg.Done()
			_ = h.Snapshot()
		}()
	}
	wg.Wait()
	assert.Len(t, h.Snapshot().Monitoring.PostIDs, 10)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b c", "d"}, SplitList(" a ,b c\n\n d,"))
	assert.Empty(t, SplitList(""))
}
