package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"solana-lending-index/internal/collection"
	"solana-lending-index/internal/config"
	"solana-lending-index/internal/observability"
	"solana-lending-index/internal/ratelimit"
	"solana-lending-index/internal/solana"
	"solana-lending-index/internal/storage/migrations"
	pgstore "solana-lending-index/internal/storage/postgres"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := log.New(os.Stdout, "[collector] ", log.LstdFlags|log.Lshortfile)

	if err := cfg.Validate(); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
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

// run wires the collection pipeline and blocks until the context is
// cancelled or a component fails.
func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return err
	}

	protocolStore := pgstore.NewProtocolStore(pool)
	watermarkStore := pgstore.NewWatermarkStore(pool)
	txStore := pgstore.NewTransactionStore(pool)

	rpc := solana.NewHTTPClient(cfg.RPCEndpoint)
	limiter := ratelimit.New(cfg.CallsPerSecond)
	addresses := config.NewAddressSet(cfg.ProtocolAddresses)
	registry := collection.NewRegistry(protocolStore, rpc, limiter, logger)

	// The slot tracker is best-effort; without it the scanner polls getSlot.
	var slots collection.SlotSource
	if cfg.WSEndpoint != "" {
		tracker, err := solana.NewSlotTracker(ctx, cfg.WSEndpoint, nil, logger)
		if err != nil {
			logger.Printf("Slot tracker unavailable, falling back to polling: %v", err)
		} else {
			defer tracker.Close()
			slots = tracker
		}
	}

	protos, err := registry.Sync(ctx, addresses.ProtocolAddresses())
	if err != nil {
		return err
	}
	logger.Printf("Collecting for %d protocols", len(protos))

	g, gctx := errgroup.WithContext(ctx)

	// One backward walker per protocol; each returns nil once its history
	// is exhausted.
	for _, p := range protos {
		walker := collection.NewSignatureWalker(collection.SignatureWalkerOptions{
			RPC:          rpc,
			Limiter:      limiter,
			Transactions: txStore,
			Watermarks:   watermarkStore,
			BatchSize:    cfg.SignatureBatchSize,
			Logger:       logger,
		})
		p := p
		g.Go(func() error {
			return walker.Run(gctx, p)
		})
	}

	scanner := collection.NewBlockScanner(collection.BlockScannerOptions{
		RPC:          rpc,
		Limiter:      limiter,
		Registry:     registry,
		Addresses:    addresses,
		Protocols:    protocolStore,
		Transactions: txStore,
		SlotSource:   slots,
		Window:       cfg.ScanWindow,
		Interval:     cfg.ScanInterval,
		Logger:       logger,
	})
	g.Go(func() error {
		return scanner.Run(gctx)
	})

	backfiller := collection.NewBodyBackfiller(collection.BodyBackfillerOptions{
		RPC:          rpc,
		Limiter:      limiter,
		Transactions: txStore,
		Interval:     cfg.BackfillInterval,
		Logger:       logger,
	})
	g.Go(func() error {
		return backfiller.Run(gctx)
	})

	return g.Wait()
}
