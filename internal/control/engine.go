package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietanh/walletledger/internal/core/config"
	"github.com/vietanh/walletledger/internal/core/domain"
	"github.com/vietanh/walletledger/internal/health"
	"github.com/vietanh/walletledger/internal/infra/storage"
	"github.com/vietanh/walletledger/internal/infra/storage/memory"
	"github.com/vietanh/walletledger/internal/infra/storage/postgres"
	"github.com/vietanh/walletledger/internal/ledger"
	"github.com/vietanh/walletledger/internal/txn"

	redisclient "github.com/vietanh/walletledger/internal/infra/redis"

	"github.com/pressly/goose/v3"
)

// Engine is the main application struct that wires the ledger components.
type Engine struct {
	cfg          Config
	Ledger       *ledger.Store
	Recorder     *txn.Recorder
	Tracker      *txn.Tracker
	Networks     *domain.NetworkRegistry
	healthMon    *health.Monitor
	healthServer *health.Server
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger
}

// Config holds the application configuration.
type Config struct {
	Port     int
	Networks []config.NetworkConfig
	Redis    redisclient.Config
	Database postgres.Config
}

// NewEngine creates an Engine with all dependencies initialized.
func NewEngine(cfg Config) (*Engine, error) {

	// 1. Initialize Storage
	var walletRepo storage.WalletRepository
	var txRepo storage.TransactionRepository
	var db *postgres.DB

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), postgres.Config{
			URL:      cfg.Database.URL,
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		// Run migrations
		// Note: Goose needs direct *sql.DB which sqlx.DB wraps
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		walletRepo = postgres.NewWalletRepo(db)
		txRepo = postgres.NewTxRepo(db)

		slog.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		walletRepo = memory.NewWalletRepo(store)
		txRepo = memory.NewTxRepo(store)

		slog.Info("Using Memory storage")
	}

	// 2. Build the network registry from config overrides
	networks := config.BuildRegistry(cfg.Networks)

	// 3. Initialize Redis sheet cache (optional)
	var redisClient *redisclient.Client
	var cache ledger.SheetCache
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, sheet cache disabled", "error", err)
		} else {
			ttl := time.Duration(cfg.Redis.TTL) * time.Second
			cache = redisclient.NewSheetCache(redisClient, ttl)
			slog.Info("Sheet cache enabled")
		}
	}

	// 4. Core services
	store := ledger.NewStore(walletRepo, networks, cache)
	recorder := txn.NewRecorder(txRepo, walletRepo, networks)
	tracker := txn.NewTracker(txRepo, networks)

	// 5. Health Monitor
	healthMon := health.NewMonitor()
	if db != nil {
		healthMon.Register("postgres", true, db.Health)
	}
	if redisClient != nil {
		healthMon.Register("redis", false, redisClient.Health)
	}

	healthServer := health.NewServer(healthMon, cfg.Port)

	return &Engine{
		cfg:          cfg,
		Ledger:       store,
		Recorder:     recorder,
		Tracker:      tracker,
		Networks:     networks,
		healthMon:    healthMon,
		healthServer: healthServer,
		db:           db,
		redisClient:  redisClient,
		log:          slog.Default(),
	}, nil
}

// Start starts the engine and all its components.
func (e *Engine) Start(ctx context.Context) error {
	// Start Health Server
	go func() {
		if err := e.healthServer.Start(); err != nil {
			e.log.Error("Health server failed", "error", err)
		}
	}()

	// Start DB Metrics Collector
	if e.db != nil {
		e.db.StartMetricsCollector(ctx)
	}

	e.log.Info("Engine started", "port", e.cfg.Port, "networks", len(e.Networks.Networks()))
	return nil
}

// Stop stops the engine.
func (e *Engine) Stop(ctx context.Context) error {
	e.log.Info("Stopping Engine...")

	if err := e.healthServer.Stop(ctx); err != nil {
		e.log.Warn("Failed to stop health server", "error", err)
	}

	if e.redisClient != nil {
		if err := e.redisClient.Close(); err != nil {
			e.log.Warn("Failed to close Redis", "error", err)
		}
	}

	if e.db != nil {
		if err := e.db.Close(); err != nil {
			e.log.Warn("Failed to close database", "error", err)
		}
	}

	e.log.Info("Engine stopped")
	return nil
}
