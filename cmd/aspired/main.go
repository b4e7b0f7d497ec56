// aspired es el daemon principal: API HTTP, scheduler de syncs y sealer
// de recibos en un solo proceso.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	rdb "github.com/redis/go-redis/v9"

	"github.com/swayz032/Aspire-Desktop-sub001/internal/config"
	httpserver "github.com/swayz032/Aspire-Desktop-sub001/internal/http"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/http/handlers"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/observability/logger"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/provider/plaid"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/receipt"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/store"
	pgdriver "github.com/swayz032/Aspire-Desktop-sub001/internal/store/pg"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/syncer"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/vault"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/webhook"
	migrations "github.com/swayz032/Aspire-Desktop-sub001/migrations/postgres"
)

func main() {
	_ = godotenv.Load(".env")

	configPath := flag.String("config", "configs/config.example.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       os.Getenv("LOG_LEVEL"),
		ServiceName: "aspired",
	})
	defer func() { _ = logger.Sync() }()
	lg := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storeCfg := store.Config{Driver: cfg.Storage.Driver, DSN: cfg.Storage.DSN}
	storeCfg.Postgres.MaxOpenConns = cfg.Storage.Postgres.MaxOpenConns
	storeCfg.Postgres.MinIdleConns = cfg.Storage.Postgres.MinIdleConns
	storeCfg.Postgres.ConnMaxLifetime = cfg.Storage.Postgres.ConnMaxLifetime
	repo, err := store.Open(ctx, storeCfg)
	if err != nil {
		lg.Fatal("store open failed", logger.Err(err))
	}
	defer repo.Close()

	if cfg.Flags.Migrate {
		if pgs, ok := repo.(*pgdriver.Store); ok {
			if err := pgs.RunMigrationsFS(ctx, migrations.FS); err != nil {
				lg.Fatal("migrations failed", logger.Err(err))
			}
			lg.Info("migrations applied")
		}
	}

	var locker syncer.Locker
	if cfg.Redis.Addr != "" {
		client := rdb.NewClient(&rdb.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
		if err := client.Ping(ctx).Err(); err != nil {
			lg.Fatal("redis ping failed", logger.Err(err))
		}
		locker = syncer.NewRedisLocker(client)
		lg.Info("sync locks: redis", logger.String("addr", cfg.Redis.Addr))
	} else {
		locker = syncer.NewLocalLocker()
		lg.Warn("sync locks: in-process only (no redis configured)")
	}

	providerClient, err := plaid.New(plaid.Config{
		ClientID:    cfg.Provider.ClientID,
		Secret:      cfg.Provider.Secret,
		Environment: cfg.Provider.Environment,
		BaseURL:     cfg.Provider.BaseURL,
	})
	if err != nil {
		lg.Fatal("provider client init failed", logger.Err(err))
	}

	v := vault.New(repo)
	ledger := receipt.NewLedger(repo)
	engine := syncer.NewEngine(repo, v, providerClient, ledger, locker, config.Dur(cfg.Sync.LockTTL))
	verifier := webhook.NewVerifier(providerClient, config.Dur(cfg.Webhook.KeyCacheTTL), cfg.Webhook.SkipVerification)

	h := handlers.New(repo, v, providerClient, engine, ledger, verifier)
	srv := httpserver.NewServer(cfg.Server.Addr, httpserver.NewRouter(h))

	sealer := receipt.NewSealer(repo, config.Dur(cfg.Receipts.SealInterval), cfg.Receipts.SealBatch)
	go sealer.Run(ctx)

	if cfg.Sync.Interval != "" {
		sched := syncer.NewScheduler(engine, repo,
			config.Dur(cfg.Sync.Interval), cfg.Sync.Parallelism,
			config.Dur(cfg.Sync.RunTimeout), cfg.Sync.SyncOnStart)
		go sched.Run(ctx)
	} else {
		lg.Info("sync scheduler disabled")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
		lg.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			lg.Error("http server failed", logger.Err(err))
		}
	}

	shutdownTimeout := config.Dur(cfg.Server.ShutdownTimeout)
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}
	shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		lg.Error("graceful shutdown failed", logger.Err(err))
	}
	lg.Info("bye")
}
