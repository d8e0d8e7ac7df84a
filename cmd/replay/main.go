package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"solana-lending-index/internal/config"
	"solana-lending-index/internal/ledger"
	"solana-lending-index/internal/observability"
	"solana-lending-index/internal/storage"
	chstore "solana-lending-index/internal/storage/clickhouse"
	"solana-lending-index/internal/storage/migrations"
	pgstore "solana-lending-index/internal/storage/postgres"
	"solana-lending-index/internal/valuation"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := log.New(os.Stdout, "[replay] ", log.LstdFlags|log.Lshortfile)

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}
	if cfg.RiskParamsFile == "" {
		logger.Fatal("RISK_PARAMS_FILE is required")
	}

	// Start metrics server if enabled
	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	err := run(ctx, cfg, logger)

	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// run wires the replay and valuation loops and blocks until the context is
// cancelled. A halted replay parks only its own protocol.
func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	params, err := valuation.LoadParameterFile(cfg.RiskParamsFile)
	if err != nil {
		return err
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return err
	}

	eventStore := pgstore.NewEventStore(pool)
	stateStore := pgstore.NewLoanStateStore(pool)

	// Health snapshots land in postgres (latest) and, when configured,
	// ClickHouse (append-only history).
	sinks := []storage.HealthSnapshotStore{pgstore.NewHealthSnapshotStore(pool)}
	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			return err
		}
		defer conn.Close()
		sinks = append(sinks, chstore.NewHealthHistoryStore(conn))
	}

	source := ledger.NewStoreEventSource(eventStore)

	g, gctx := errgroup.WithContext(ctx)

	for _, address := range cfg.ProtocolAddresses {
		flavor := cfg.ProtocolFlavors[address]
		pp, ok := params[address]
		if !ok {
			return fmt.Errorf("no risk parameters for protocol %s", address)
		}

		engine := ledger.NewEngine(ledger.EngineOptions{
			Protocol: address,
			Handlers: ledger.HandlersFor(flavor),
			Dust:     ledger.DustTable(pp.Dust),
			Logger:   logger,
		})

		replayer := ledger.NewReplayer(ledger.ReplayerOptions{
			Protocol: address,
			Source:   source,
			States:   stateStore,
			Engine:   engine,
			Interval: cfg.ReplayInterval,
			Logger:   logger,
		})
		// Each protocol is supervised independently: a halted replay parks
		// that protocol for operator intervention without tearing down the
		// others.
		g.Go(func() error {
			if err := replayer.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Printf("Replay stopped for protocol %s, other protocols continue: %v", address, err)
			}
			return nil
		})

		valuator := valuation.NewValuator(address, valuation.ConventionFor(flavor), pp.Collateral, pp.Debt)
		snapshotter := valuation.NewSnapshotter(valuation.SnapshotterOptions{
			Protocol: address,
			Valuator: valuator,
			States:   stateStore,
			Sinks:    sinks,
			Interval: cfg.SnapshotInterval,
			Logger:   logger,
		})
		g.Go(func() error {
			if err := snapshotter.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Printf("Snapshotter stopped for protocol %s, other protocols continue: %v", address, err)
			}
			return nil
		})
	}

	logger.Printf("Replaying %d protocols", len(cfg.ProtocolAddresses))
	return g.Wait()
}
