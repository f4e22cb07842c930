package config

import (
	"github.com/kelseyhightower/envconfig"
)

// Config holds all environment-driven configuration for the application.
// The listen port and the database connection string come from the command
// line instead (see cmd/api).
type Config struct {
	Server ServerConfig
	Log    LogConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	ShutdownTimeout int `envconfig:"SHUTDOWN_TIMEOUT" default:"30"` // seconds
	BodyLimitMB     int `envconfig:"BODY_LIMIT_MB" default:"32"`    // import CSVs can be large
	DBConnRetries   int `envconfig:"DB_CONN_RETRIES" default:"5"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Pretty bool   `envconfig:"LOG_PRETTY" default:"false"`
}

// Load parses environment variables into the Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
