package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/reits-ledger/internal/audit"
	"github.com/rickgao/reits-ledger/internal/auth"
	"github.com/rickgao/reits-ledger/internal/config"
	"github.com/rickgao/reits-ledger/internal/database"
	"github.com/rickgao/reits-ledger/internal/escrow"
	"github.com/rickgao/reits-ledger/internal/events"
	"github.com/rickgao/reits-ledger/internal/journal"
	"github.com/rickgao/reits-ledger/internal/ledger"
	"github.com/rickgao/reits-ledger/internal/metrics"
	"github.com/rickgao/reits-ledger/internal/model"
	"github.com/rickgao/reits-ledger/internal/server"
	"github.com/rickgao/reits-ledger/internal/store"
	"github.com/rickgao/reits-ledger/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/reitsd.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting reitsd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"instance_id", cfg.Instance.ID,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("reitsd failed", "error", err)
		os.Exit(1)
	}
	logger.Info("reitsd stopped")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	var pool *pgxpool.Pool
	if cfg.NeedsDatabase() {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)
		var err error
		pool, err = database.Connect(ctx, cfg.Database, "reitsd-"+cfg.Instance.ID)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		var migrations []database.Migration
		if cfg.Store.Backend == config.BackendPostgres {
			migrations = append(migrations, database.Migration{Name: "ledger_records", SQL: store.Schema})
		}
		if cfg.Journal.Enabled {
			migrations = append(migrations, database.Migration{Name: "ledger_events", SQL: journal.Schema})
		}
		if err := database.Migrate(ctx, pool, logger, migrations...); err != nil {
			return err
		}
	}

	st, err := openStore(cfg, pool, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	programID := ledger.DefaultProgramID
	if cfg.Ledger.ProgramID != "" {
		// Validate has already parsed it.
		programID = model.MustParseAddress(cfg.Ledger.ProgramID)
	}

	m := metrics.New()
	hub := events.NewHub(events.HubConfig{
		InitialBacklog: cfg.Events.InitialBacklog,
		MaxBacklog:     cfg.Events.MaxBacklog,
	}, logger.With("component", "events"))
	defer hub.Stop()

	engine, err := ledger.New(ledger.Config{
		ProgramID:        programID,
		IssuerCapacity:   cfg.Ledger.IssuerCapacity,
		InvestorCapacity: cfg.Ledger.InvestorCapacity,
	}, st,
		ledger.WithLogger(logger.With("component", "ledger")),
		ledger.WithAuthority(escrow.NewDerived(programID)),
		ledger.WithPublisher(hub),
		ledger.WithRecorder(m),
	)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	logger.Info("ledger engine ready",
		"program_id", engine.ProgramID(),
		"configs", engine.ConfigsAddress(),
		"backend", cfg.Store.Backend,
	)

	var writer *journal.Writer
	if cfg.Journal.Enabled {
		writer = journal.New(journal.Config{
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
			MaxPending:    cfg.Journal.MaxPending,
		}, pool, hub, m, logger.With("component", "journal"))
		if err := writer.Start(ctx); err != nil {
			return fmt.Errorf("start journal: %w", err)
		}
	}

	var auditor *audit.Auditor
	auditResults := func() []audit.Result { return nil }
	if !cfg.Audit.Disabled {
		auditor = audit.New(audit.Config{
			Interval:    cfg.Audit.Interval,
			Concurrency: cfg.Audit.Concurrency,
		}, engine, m, logger.With("component", "audit"))
		if err := auditor.Start(ctx); err != nil {
			return fmt.Errorf("start auditor: %w", err)
		}
		auditResults = auditor.Last
	}

	health := map[string]server.HealthCheck{
		"store": func(ctx context.Context) error {
			return st.View(ctx, func(store.Tx) error { return nil })
		},
	}
	if pool != nil {
		health["database"] = pool.Ping
	}

	srv, err := server.New(server.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
	}, server.Deps{
		Engine:   engine,
		Hub:      hub,
		Verifier: auth.NewVerifier(cfg.Server.AuthMaxSkew),
		Recorder: m,
		Metrics:  m.Handler(),
		Health:   health,
		Audit:    auditResults,
	}, logger.With("component", "server"))
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		reportStats(gctx, hub, writer, logger)
		return nil
	})

	logger.Info("reitsd running", "addr", cfg.Server.Addr)
	err = g.Wait()

	// The server has drained, so no more events are published.
	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if auditor != nil {
		if serr := auditor.Stop(shutdownCtx); serr != nil {
			logger.Warn("auditor stop failed", "error", serr)
		}
	}
	if writer != nil {
		if serr := writer.Stop(shutdownCtx); serr != nil {
			logger.Warn("journal stop failed", "error", serr)
		}
	}
	return err
}

func openStore(cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		return store.NewPostgres(pool, logger.With("component", "store")), nil
	default:
		st, err := store.OpenBadger(store.BadgerConfig{
			Dir:        cfg.Store.Dir,
			InMemory:   cfg.Store.InMemory,
			SyncWrites: cfg.Store.SyncWrites,
		}, logger.With("component", "store"))
		if err != nil {
			return nil, fmt.Errorf("open badger store: %w", err)
		}
		return st, nil
	}
}

// reportStats logs hub and journal counters once a minute.
func reportStats(ctx context.Context, hub *events.Hub, writer *journal.Writer, logger *slog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hs := hub.Stats()
			attrs := []any{
				"subscribers", hs.Subscribers,
				"published", hs.Published,
				"dropped", hs.Dropped,
			}
			if writer != nil {
				js := writer.Stats()
				attrs = append(attrs,
					"journal_inserts", js.Inserts,
					"journal_pending", writer.Pending(),
					"journal_errors", js.Errors,
				)
			}
			logger.Info("stats", attrs...)
		}
	}
}
