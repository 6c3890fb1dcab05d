package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raid-guild/hive-x402-facilitator-go/config"
	"github.com/raid-guild/hive-x402-facilitator-go/store"
)

func parseServeFlags(t *testing.T, args ...string) *config.Config {
	t.Helper()

	cmd := NewServeCmd()
	require.NoError(t, cmd.ParseFlags(args))

	c, err := loadConfig(cmd, viper.New())
	require.NoError(t, err)
	return c
}

func TestServeFlags(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c := parseServeFlags(t)
		assert.Equal(t, config.DefaultListen, c.Listen)
		assert.Equal(t, store.BackendBadger, c.Nonce.Backend)
		assert.True(t, c.RateLimit.Enabled)
	})

	t.Run("flags override", func(t *testing.T) {
		c := parseServeFlags(t,
			"--listen", "127.0.0.1:9000",
			"--nonce-backend", "memory",
			"--hive-nodes", "https://a.example, https://b.example",
			"--hive-timeout", "3s",
			"--rate-limit=false",
			"--trusted-proxies", "10.0.0.1,10.1.0.0/16",
		)
		assert.Equal(t, "127.0.0.1:9000", c.Listen)
		assert.Equal(t, store.BackendMemory, c.Nonce.Backend)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.Hive.Nodes)
		assert.Equal(t, 3*time.Second, c.Hive.Timeout)
		assert.False(t, c.RateLimit.Enabled)
		assert.Equal(t, []string{"10.0.0.1", "10.1.0.0/16"}, c.TrustedProxies)
	})

	t.Run("port env without listen flag", func(t *testing.T) {
		t.Setenv("FACILITATOR_PORT", "5050")
		c := parseServeFlags(t)
		assert.Equal(t, ":5050", c.Listen)
	})

	t.Run("flag beats env", func(t *testing.T) {
		t.Setenv("X402_NONCE_BACKEND", "redis")
		c := parseServeFlags(t, "--nonce-backend", "memory")
		assert.Equal(t, store.BackendMemory, c.Nonce.Backend)
	})

	t.Run("config file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "facilitator.yaml")
		require.NoError(t, os.WriteFile(file, []byte("log_level: debug\nrate_limit:\n  max: 5\n"), 0o600))

		c := parseServeFlags(t, "--config", file)
		assert.Equal(t, "debug", c.LogLevel)
		assert.Equal(t, 5, c.RateLimit.Max)
	})

	t.Run("invalid", func(t *testing.T) {
		cmd := NewServeCmd()
		require.NoError(t, cmd.ParseFlags([]string{"--api-key", "k", "--auth-database-url", "postgres://x"}))
		_, err := loadConfig(cmd, viper.New())
		assert.Error(t, err)
	})
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	VersionCmd.SetOut(&out)
	VersionCmd.Run(VersionCmd, nil)
	assert.Equal(t, Version+"\n", out.String())
}
