package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultServerAddr       = ":8080"
	DefaultReadTimeout      = 15 * time.Second
	DefaultWriteTimeout     = 15 * time.Second
	DefaultShutdownTimeout  = 10 * time.Second
	DefaultMaxBodyBytes     = 1 << 20
	DefaultAuthMaxSkew      = 30 * time.Second
	DefaultStoreBackend     = BackendBadger
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 10
	DefaultMinConns         = 2
	DefaultIssuerCapacity   = 5
	DefaultInvestorCapacity = 5
	DefaultBatchSize        = 500
	DefaultFlushInterval    = 1 * time.Second
	DefaultMaxPending       = 50000
	DefaultAuditInterval    = 1 * time.Minute
	DefaultAuditConcurrency = 8
	DefaultInitialBacklog   = 64
	DefaultMaxBacklog       = 4096
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
)

func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.Server.AuthMaxSkew == 0 {
		c.Server.AuthMaxSkew = DefaultAuthMaxSkew
	}

	// Store defaults
	if c.Store.Backend == "" {
		c.Store.Backend = DefaultStoreBackend
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Ledger defaults
	if c.Ledger.IssuerCapacity == 0 {
		c.Ledger.IssuerCapacity = DefaultIssuerCapacity
	}
	if c.Ledger.InvestorCapacity == 0 {
		c.Ledger.InvestorCapacity = DefaultInvestorCapacity
	}

	// Journal defaults
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultFlushInterval
	}
	if c.Journal.MaxPending == 0 {
		c.Journal.MaxPending = DefaultMaxPending
	}

	// Audit defaults
	if c.Audit.Interval == 0 {
		c.Audit.Interval = DefaultAuditInterval
	}
	if c.Audit.Concurrency == 0 {
		c.Audit.Concurrency = DefaultAuditConcurrency
	}

	// Events defaults
	if c.Events.InitialBacklog == 0 {
		c.Events.InitialBacklog = DefaultInitialBacklog
	}
	if c.Events.MaxBacklog == 0 {
		c.Events.MaxBacklog = DefaultMaxBacklog
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}
