package config

import (
	"log/slog"
	"time"
)

// Store backends.
const (
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
)

// Config is the root configuration for a ledger daemon.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	Server   ServerConfig   `yaml:"server"`
	Store    StoreConfig    `yaml:"store"`
	Database DBConfig       `yaml:"database"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Journal  JournalConfig  `yaml:"journal"`
	Audit    AuditConfig    `yaml:"audit"`
	Events   EventsConfig   `yaml:"events"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// InstanceConfig identifies this daemon.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	AuthMaxSkew     time.Duration `yaml:"auth_max_skew"` // Allowed signed-request clock skew
}

// StoreConfig selects the ledger record store.
type StoreConfig struct {
	Backend    string `yaml:"backend"` // badger or postgres
	Dir        string `yaml:"dir"`     // Badger data directory
	InMemory   bool   `yaml:"in_memory"`
	SyncWrites bool   `yaml:"sync_writes"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// LedgerConfig holds engine settings.
type LedgerConfig struct {
	ProgramID        string `yaml:"program_id"` // Base58; empty uses the built-in id
	IssuerCapacity   int    `yaml:"issuer_capacity"`
	InvestorCapacity int    `yaml:"investor_capacity"`
}

// JournalConfig holds event journal settings. The journal needs the database.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxPending    int           `yaml:"max_pending"`
}

// AuditConfig holds vault reconciler settings.
type AuditConfig struct {
	Disabled    bool          `yaml:"disabled"`
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
}

// EventsConfig holds event hub settings.
type EventsConfig struct {
	InitialBacklog int `yaml:"initial_backlog"`
	MaxBacklog     int `yaml:"max_backlog"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// NeedsDatabase reports whether any component uses PostgreSQL.
func (c *Config) NeedsDatabase() bool {
	return c.Store.Backend == BackendPostgres || c.Journal.Enabled
}

// SlogLevel maps Level to a slog level, defaulting to info.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
