package config

import (
	"errors"
	"fmt"

	"github.com/rickgao/reits-ledger/internal/model"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Server.MaxBodyBytes < 1 {
		return errors.New("server.max_body_bytes must be >= 1")
	}

	switch c.Store.Backend {
	case BackendBadger:
		if c.Store.Dir == "" && !c.Store.InMemory {
			return errors.New("store.dir is required for the badger backend")
		}
	case BackendPostgres:
	default:
		return fmt.Errorf("store.backend must be %q or %q, got %q", BackendBadger, BackendPostgres, c.Store.Backend)
	}

	if c.NeedsDatabase() {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
	}

	if c.Ledger.ProgramID != "" {
		if _, err := model.ParseAddress(c.Ledger.ProgramID); err != nil {
			return fmt.Errorf("ledger.program_id: %w", err)
		}
	}
	if c.Ledger.IssuerCapacity < 1 {
		return errors.New("ledger.issuer_capacity must be >= 1")
	}
	if c.Ledger.InvestorCapacity < 1 {
		return errors.New("ledger.investor_capacity must be >= 1")
	}

	if c.Journal.BatchSize < 1 {
		return errors.New("journal.batch_size must be >= 1")
	}
	if c.Journal.MaxPending < c.Journal.BatchSize {
		return fmt.Errorf("journal.max_pending (%d) must be >= batch_size (%d)", c.Journal.MaxPending, c.Journal.BatchSize)
	}

	if c.Audit.Concurrency < 1 {
		return errors.New("audit.concurrency must be >= 1")
	}

	if c.Events.MaxBacklog < c.Events.InitialBacklog {
		return fmt.Errorf("events.max_backlog (%d) must be >= initial_backlog (%d)", c.Events.MaxBacklog, c.Events.InitialBacklog)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
