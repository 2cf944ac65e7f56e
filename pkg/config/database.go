// pkg/config/database.go
package config

import (
	"fmt"
	"strconv"
	"time"
)

type StoreBackend string

const (
	StoreBackendPostgres StoreBackend = "postgres"
	StoreBackendSQLite   StoreBackend = "sqlite"
	StoreBackendMemory   StoreBackend = "memory"
)

type DatabaseConfig struct {
	Backend         StoreBackend
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// FallbackToMemory substitutes the volatile store when the durable one is unreachable
	FallbackToMemory bool
}

func (dc DatabaseConfig) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dc.Host, dc.Port, dc.User, dc.Password, dc.Name, dc.SSLMode,
	)
}

func (dc DatabaseConfig) Validate() error {
	switch dc.Backend {
	case StoreBackendPostgres, StoreBackendSQLite, StoreBackendMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be one of postgres, sqlite, memory (got %q)", dc.Backend)
	}
	if dc.Backend == StoreBackendSQLite && dc.SQLitePath == "" {
		return fmt.Errorf("SQLITE_PATH is required for the sqlite backend")
	}
	return nil
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (rc RedisConfig) Address() string {
	return rc.Host + ":" + strconv.Itoa(rc.Port)
}

type LedgerBackend string

const (
	LedgerBackendMemory LedgerBackend = "memory"
	LedgerBackendRedis  LedgerBackend = "redis"
)

type LedgerConfig struct {
	Backend LedgerBackend
	// TTL is refreshed on every append; zero keeps threads forever
	TTL time.Duration
}

func (lc LedgerConfig) Validate() error {
	switch lc.Backend {
	case LedgerBackendMemory, LedgerBackendRedis:
		return nil
	default:
		return fmt.Errorf("LEDGER_BACKEND must be memory or redis (got %q)", lc.Backend)
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Backend:          StoreBackend(getEnv("STORE_BACKEND", "postgres")),
		Host:             getEnv("DB_HOST", "localhost"),
		Port:             getEnvInt("DB_PORT", 5432),
		User:             getEnv("DB_USER", "postgres"),
		Password:         getEnv("DB_PASSWORD", "postgres"),
		Name:             getEnv("DB_NAME", "graphdo"),
		SSLMode:          getEnv("DB_SSL_MODE", "disable"),
		SQLitePath:       getEnv("SQLITE_PATH", "graphdo.db"),
		MaxOpenConns:     getEnvInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:     getEnvInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime:  getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		FallbackToMemory: getEnvBool("STORE_FALLBACK_MEMORY", false),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Host:     getEnv("REDIS_HOST", "localhost"),
		Port:     getEnvInt("REDIS_PORT", 6379),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvInt("REDIS_DB", 0),
	}
}

func loadLedgerConfig() LedgerConfig {
	return LedgerConfig{
		Backend: LedgerBackend(getEnv("LEDGER_BACKEND", "memory")),
		TTL:     getEnvDuration("LEDGER_TTL", 24*time.Hour),
	}
}
