// Package config loads the server configuration from defaults, an optional YAML file and
// environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete server configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Minio    MinioConfig
	Log      LogConfig
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            string
	CertFile        string
	KeyFile         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// TLSEnabled reports whether both a certificate and a key are configured.
func (s ServerConfig) TLSEnabled() bool {
	return s.CertFile != "" && s.KeyFile != ""
}

// DatabaseConfig configures the PostgreSQL connection. DSN, when set, wins over the
// individual connection fields.
type DatabaseConfig struct {
	DSN             string
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	Migrate         bool
}

// ConnString returns the DSN used to open the database.
func (d DatabaseConfig) ConnString() string {
	if d.DSN != "" {
		return d.DSN
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, d.Port),
		Path:     d.Name,
		RawQuery: url.Values{"sslmode": []string{d.SSLMode}}.Encode(),
	}
	return u.String()
}

// MinioConfig configures version publishing. Publishing is off without an endpoint.
type MinioConfig struct {
	Endpoint string
	User     string
	Password string
	Bucket   string
	Region   string
	UseSSL   bool
}

// Enabled reports whether an object storage endpoint is configured.
func (m MinioConfig) Enabled() bool {
	return m.Endpoint != ""
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string
	Format string
}

// keys maps configuration keys to the environment variables that override them.
var keys = map[string]string{
	"server.port":             "SERVER_PORT",
	"server.cert_file":        "TLS_CERT_FILE",
	"server.key_file":         "TLS_KEY_FILE",
	"server.read_timeout":     "SERVER_READ_TIMEOUT",
	"server.write_timeout":    "SERVER_WRITE_TIMEOUT",
	"server.idle_timeout":     "SERVER_IDLE_TIMEOUT",
	"server.shutdown_timeout": "SERVER_SHUTDOWN_TIMEOUT",

	"database.dsn":                "DATABASE_DSN",
	"database.host":               "POSTGRES_HOST",
	"database.port":               "POSTGRES_PORT",
	"database.user":               "POSTGRES_USER",
	"database.password":           "POSTGRES_PASSWORD",
	"database.name":               "POSTGRES_DB",
	"database.sslmode":            "POSTGRES_SSLMODE",
	"database.max_open_conns":     "DATABASE_MAX_OPEN_CONNS",
	"database.max_idle_conns":     "DATABASE_MAX_IDLE_CONNS",
	"database.conn_max_lifetime":  "DATABASE_CONN_MAX_LIFETIME",
	"database.conn_max_idle_time": "DATABASE_CONN_MAX_IDLE_TIME",
	"database.migrate":            "DATABASE_MIGRATE",

	"minio.endpoint": "MINIO_ENDPOINT",
	"minio.user":     "MINIO_USER",
	"minio.password": "MINIO_PASSWORD",
	"minio.bucket":   "MINIO_BUCKET",
	"minio.region":   "MINIO_REGION",
	"minio.use_ssl":  "MINIO_USE_SSL",

	"log.level":  "LOG_LEVEL",
	"log.format": "LOG_FORMAT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.idle_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "formdef")
	v.SetDefault("database.password", "secret")
	v.SetDefault("database.name", "formdef")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.conn_max_idle_time", 5*time.Minute)
	v.SetDefault("database.migrate", true)

	v.SetDefault("minio.user", "minioadmin")
	v.SetDefault("minio.password", "minioadmin")
	v.SetDefault("minio.bucket", "formdef-versions")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads the configuration. An explicit path must exist; without one a config.yaml in
// the working directory is used when present.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for key, env := range keys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetString("server.port"),
			CertFile:        v.GetString("server.cert_file"),
			KeyFile:         v.GetString("server.key_file"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			IdleTimeout:     v.GetDuration("server.idle_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Database: DatabaseConfig{
			DSN:             v.GetString("database.dsn"),
			Host:            v.GetString("database.host"),
			Port:            v.GetString("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			Name:            v.GetString("database.name"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetDuration("database.conn_max_idle_time"),
			Migrate:         v.GetBool("database.migrate"),
		},
		Minio: MinioConfig{
			Endpoint: v.GetString("minio.endpoint"),
			User:     v.GetString("minio.user"),
			Password: v.GetString("minio.password"),
			Bucket:   v.GetString("minio.bucket"),
			Region:   v.GetString("minio.region"),
			UseSSL:   v.GetBool("minio.use_ssl"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server port is empty")
	}
	if (c.Server.CertFile == "") != (c.Server.KeyFile == "") {
		return errors.New("TLS needs both a certificate file and a key file")
	}
	if c.Database.DSN == "" && c.Database.Host == "" {
		return errors.New("database DSN or host is required")
	}
	if c.Minio.Enabled() && c.Minio.Bucket == "" {
		return errors.New("minio bucket is required when an endpoint is set")
	}
	return nil
}
