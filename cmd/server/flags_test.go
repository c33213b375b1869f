package main

import (
	"flag"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maynagashev/formdef/internal/config"
)

// resetFlags clears flag definitions between tests.
func resetFlags() {
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)
}

func TestParseFlags(t *testing.T) {
	originalArgs := os.Args
	t.Cleanup(func() { os.Args = originalArgs })

	t.Run("all flags", func(t *testing.T) {
		resetFlags()
		os.Args = []string{"cmd", "-config=server.yaml", "-port=8081", "-cert-file=cert.pem",
			"-key-file=key.pem", "-database-dsn=postgres://x", "-log-level=debug", "-no-migrate"}

		f := parseFlags()

		assert.Equal(t, "server.yaml", f.ConfigPath)
		assert.Equal(t, "8081", f.Port)
		assert.Equal(t, "cert.pem", f.CertFile)
		assert.Equal(t, "key.pem", f.KeyFile)
		assert.Equal(t, "postgres://x", f.DatabaseDSN)
		assert.Equal(t, "debug", f.LogLevel)
		assert.True(t, f.NoMigrate)
	})

	t.Run("no flags", func(t *testing.T) {
		resetFlags()
		os.Args = []string{"cmd"}

		f := parseFlags()

		assert.Equal(t, &flagValues{}, f)
	})
}

func TestFlagValuesApply(t *testing.T) {
	base := func() *config.Config {
		return &config.Config{
			Server:   config.ServerConfig{Port: "8080"},
			Database: config.DatabaseConfig{Host: "localhost", Migrate: true},
			Log:      config.LogConfig{Level: "info"},
		}
	}

	t.Run("overrides only set values", func(t *testing.T) {
		cfg := base()
		f := &flagValues{Port: "9090", DatabaseDSN: "postgres://y", NoMigrate: true}

		require.NoError(t, f.apply(cfg))

		assert.Equal(t, "9090", cfg.Server.Port)
		assert.Equal(t, "postgres://y", cfg.Database.ConnString())
		assert.False(t, cfg.Database.Migrate)
		assert.Equal(t, "info", cfg.Log.Level)
	})

	t.Run("certificate without key", func(t *testing.T) {
		cfg := base()
		f := &flagValues{CertFile: "cert.pem"}

		require.Error(t, f.apply(cfg))
	})
}
