package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andrenbrandao/bnb-transfers/pkg/accounts"
	"github.com/andrenbrandao/bnb-transfers/pkg/api"
	"github.com/andrenbrandao/bnb-transfers/pkg/config"
	"github.com/andrenbrandao/bnb-transfers/pkg/ledger"
	"github.com/andrenbrandao/bnb-transfers/pkg/logging"
	"github.com/andrenbrandao/bnb-transfers/pkg/recipients"
	"github.com/andrenbrandao/bnb-transfers/pkg/repositories"
	"github.com/andrenbrandao/bnb-transfers/pkg/telemetry"
	"github.com/andrenbrandao/bnb-transfers/pkg/transfers"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ledgerStore is what the services need from either store driver.
type ledgerStore interface {
	ledger.Store
	recipients.Directory
	accounts.Store
	api.Pinger
}

func seedDB(ctx context.Context, pool *pgxpool.Pool, path string) error {
	seedSql, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error while trying to read %s: %w", path, err)
	}

	if _, err := pool.Exec(ctx, string(seedSql)); err != nil {
		return fmt.Errorf("unable to seed database: %w", err)
	}

	return nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ledgerStore, func(), error) {
	if cfg.LedgerDriver == config.DriverMemory {
		store := repositories.NewMemory()
		if err := store.SeedDemo(ctx); err != nil {
			return nil, nil, err
		}
		logger.Warn("using the in-memory ledger, balances are lost on restart")
		return store, func() {}, nil
	}

	pool, err := repositories.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.ConnectTimeout, logger)
	if err != nil {
		return nil, nil, err
	}

	if cfg.MigrateOnStart {
		if err := repositories.Migrate(cfg.DatabaseURL, logger); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}

	if cfg.SeedFile != "" {
		if err := seedDB(ctx, pool, cfg.SeedFile); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("database seeded", zap.String("file", cfg.SeedFile))
	}

	return repositories.NewPostgres(pool, cfg.TxTimeout), pool.Close, nil
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	logger.Info("Starting up server...")

	if cfg.TelemetryEnabled {
		shutdown, err := telemetry.Setup()
		if err != nil {
			return err
		}
		defer shutdown()
	}

	outcomes, err := telemetry.NewOutcomes()
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	recipientService := recipients.NewService(store)
	orchestrator := transfers.New(
		ledger.NewEngine(store),
		recipientService,
		transfers.WithLimit(cfg.TransferLimit()),
		transfers.WithOutcomes(outcomes),
	)
	accountService := accounts.NewService(store, accounts.Branch{Name: cfg.BranchName, IFSC: cfg.IFSCCode})

	gin.SetMode(gin.ReleaseMode)
	server := api.NewServer(logger, orchestrator, recipientService, accountService, store)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Handler(cfg.CORSOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Listening to requests", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
