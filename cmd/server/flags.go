package main

import (
	"flag"

	"github.com/maynagashev/formdef/internal/config"
)

// flagValues are command-line overrides. Empty values leave the loaded config unchanged.
type flagValues struct {
	ConfigPath  string
	Port        string
	CertFile    string
	KeyFile     string
	DatabaseDSN string
	LogLevel    string
	NoMigrate   bool
}

// parseFlags parses the command line.
func parseFlags() *flagValues {
	f := &flagValues{}

	flag.StringVar(&f.ConfigPath, "config", "", "Path to a YAML config file (default: ./config.yaml if present)")
	flag.StringVar(&f.Port, "port", "", "HTTP port (env: SERVER_PORT)")
	flag.StringVar(&f.CertFile, "cert-file", "", "TLS certificate file (env: TLS_CERT_FILE)")
	flag.StringVar(&f.KeyFile, "key-file", "", "TLS key file (env: TLS_KEY_FILE)")
	flag.StringVar(&f.DatabaseDSN, "database-dsn", "", "PostgreSQL connection string (env: DATABASE_DSN)")
	flag.StringVar(&f.LogLevel, "log-level", "", "Log level: debug, info, warn, error (env: LOG_LEVEL)")
	flag.BoolVar(&f.NoMigrate, "no-migrate", false, "Skip schema migrations on startup")

	flag.Parse()
	return f
}

// apply overrides cfg with the flags that were set and re-validates it.
func (f *flagValues) apply(cfg *config.Config) error {
	if f.Port != "" {
		cfg.Server.Port = f.Port
	}
	if f.CertFile != "" {
		cfg.Server.CertFile = f.CertFile
	}
	if f.KeyFile != "" {
		cfg.Server.KeyFile = f.KeyFile
	}
	if f.DatabaseDSN != "" {
		cfg.Database.DSN = f.DatabaseDSN
	}
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.NoMigrate {
		cfg.Database.Migrate = false
	}
	return cfg.Validate()
}
