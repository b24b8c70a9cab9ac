package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/entityhistory/internal/db"
	"github.com/spf13/viper"
)

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// SnapshotConfig configures how snapshot inputs are read.
type SnapshotConfig struct {
	ConcurrentLoads bool
	ConsistentReads bool
	BatchWait       time.Duration
}

// Config is the full application configuration.
type Config struct {
	Database db.Config
	Server   ServerConfig
	Snapshot SnapshotConfig
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Database: db.DefaultConfig(),
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
		},
		Snapshot: SnapshotConfig{
			ConsistentReads: true,
			BatchWait:       5 * time.Millisecond,
		},
	}
}

// Load reads config.yaml from configPath (if present) and applies
// ENTITYHISTORY_* environment overrides, e.g. ENTITYHISTORY_DATABASE_HOST.
// The returned bool reports whether a config file was found.
func Load(configPath string) (Config, bool, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.SetEnvPrefix("ENTITYHISTORY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range []string{
		"database.host", "database.port", "database.user", "database.password",
		"database.dbname", "database.sslmode", "database.max_conns",
		"server.addr", "server.allowed_origins", "server.read_timeout", "server.write_timeout",
		"snapshot.concurrent_loads", "snapshot.consistent_reads", "snapshot.batch_wait",
	} {
		if err := v.BindEnv(key); err != nil {
			return cfg, false, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	found := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, false, fmt.Errorf("failed to read config: %w", err)
		}
		found = false
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("database.max_conns") {
		cfg.Database.MaxConns = v.GetInt32("database.max_conns")
	}

	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}
	if v.IsSet("server.read_timeout") {
		cfg.Server.ReadTimeout = v.GetDuration("server.read_timeout")
	}
	if v.IsSet("server.write_timeout") {
		cfg.Server.WriteTimeout = v.GetDuration("server.write_timeout")
	}

	if v.IsSet("snapshot.concurrent_loads") {
		cfg.Snapshot.ConcurrentLoads = v.GetBool("snapshot.concurrent_loads")
	}
	if v.IsSet("snapshot.consistent_reads") {
		cfg.Snapshot.ConsistentReads = v.GetBool("snapshot.consistent_reads")
	}
	if v.IsSet("snapshot.batch_wait") {
		cfg.Snapshot.BatchWait = v.GetDuration("snapshot.batch_wait")
	}

	return cfg, found, nil
}
