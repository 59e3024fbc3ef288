// Package config manages auth server configuration using koanf/v2.
//
// Layering: built-in development defaults, then an optional .env file, then
// process environment variables with the WRAUTH_ prefix.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all process-wide settings.
type Config struct {
	// Database (user/server catalog)
	DatabaseIP       string `koanf:"database_ip"`
	DatabasePort     int    `koanf:"database_port"`
	DatabaseUser     string `koanf:"database_user"`
	DatabasePassword string `koanf:"database_password"`
	DatabaseName     string `koanf:"database_name"`

	// Networking: both listeners bind this address. Ports are protocol
	// constants, not configuration.
	ServerIP string `koanf:"server_ip"`

	// Logging: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// MetricsAddr is the prometheus listen address. Empty = disabled.
	MetricsAddr string `koanf:"metrics_addr"`
}

// Default returns a Config with development defaults.
func Default() Config {
	return Config{
		DatabaseIP:       "127.0.0.1",
		DatabasePort:     5432,
		DatabaseUser:     "wrauth",
		DatabasePassword: "wrauth",
		DatabaseName:     "auth_test",
		ServerIP:         "127.0.0.1",
		LogLevel:         "info",
		MetricsAddr:      "",
	}
}

// DSN returns the PostgreSQL connection string for the catalog pool.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DatabaseUser, c.DatabasePassword, c.DatabaseIP, c.DatabasePort, c.DatabaseName,
	)
}

// envPrefix is the environment variable prefix, WRAUTH_DATABASE_IP → database_ip.
const envPrefix = "WRAUTH_"

// Load reads configuration: defaults, then the .env file at path (skipped if
// absent), then environment overrides.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	for key, val := range defaultMap() {
		if err := k.Set(key, val); err != nil {
			return Config{}, fmt.Errorf("set default %s: %w", key, err)
		}
	}

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), dotenv.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return Config{}, fmt.Errorf("load env overrides: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// envKeyMapper transforms WRAUTH_DATABASE_IP -> database_ip.
// Keys are flat, so underscores are kept as-is.
func envKeyMapper(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, envPrefix))
}

func defaultMap() map[string]any {
	d := Default()
	return map[string]any{
		"database_ip":       d.DatabaseIP,
		"database_port":     d.DatabasePort,
		"database_user":     d.DatabaseUser,
		"database_password": d.DatabasePassword,
		"database_name":     d.DatabaseName,
		"server_ip":         d.ServerIP,
		"log_level":         d.LogLevel,
		"metrics_addr":      d.MetricsAddr,
	}
}
