package database

import (
	stdsql "database/sql"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds archive connection settings, read from DB_* variables.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoadConfigFromEnv reads DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME,
// DB_SSLMODE, DB_MAX_OPEN_CONNS and DB_MAX_IDLE_CONNS, with local defaults.
func LoadConfigFromEnv() (Config, error) {
	ints := map[string]int{"DB_PORT": 5432, "DB_MAX_OPEN_CONNS": 10, "DB_MAX_IDLE_CONNS": 5}
	for key := range ints {
		raw := os.Getenv(key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("invalid %s: %q", key, raw)
		}
		ints[key] = n
	}

	return Config{
		Host:            getEnvOrDefault("DB_HOST", "localhost"),
		Port:            ints["DB_PORT"],
		User:            getEnvOrDefault("DB_USER", "medcopilot"),
		Password:        os.Getenv("DB_PASSWORD"),
		Database:        getEnvOrDefault("DB_NAME", "medcopilot"),
		SSLMode:         getEnvOrDefault("DB_SSLMODE", "disable"),
		MaxOpenConns:    ints["DB_MAX_OPEN_CONNS"],
		MaxIdleConns:    ints["DB_MAX_IDLE_CONNS"],
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}, nil
}

// DSN returns the pgx connection string for c.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func (c Config) applyPool(db *stdsql.DB) {
	db.SetMaxOpenConns(c.MaxOpenConns)
	db.SetMaxIdleConns(c.MaxIdleConns)
	db.SetConnMaxLifetime(c.ConnMaxLifetime)
	db.SetConnMaxIdleTime(c.ConnMaxIdleTime)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
