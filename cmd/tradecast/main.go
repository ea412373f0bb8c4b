package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradecast/internal/api"
	"tradecast/internal/broadcaster"
	"tradecast/internal/config"
	"tradecast/internal/confirm"
	"tradecast/internal/delivery"
	"tradecast/internal/executor"
	"tradecast/internal/orchestrator"
	"tradecast/internal/reaper"
	"tradecast/internal/registry"
	"tradecast/internal/retry"
	"tradecast/internal/storage"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
)

func main() {
	// 1. Load configuration
	_ = godotenv.Load()
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// 2. Configure logger
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Configuration loaded",
		"rpc_url", cfg.RPCURL,
		"network", cfg.DefaultNetwork,
		"api_port", cfg.APIPort,
		"log_level", cfg.LogLevel,
	)

	// 3. Initialize database connection
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repository, err := storage.NewPostgresRepository(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer repository.Close()
	slog.Info("Database connected successfully")

	// 4. Chain client, gas estimation, transaction submission
	chainClient, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		log.Fatalf("Failed to connect to chain RPC: %v", err)
	}
	defer chainClient.Close()

	estimator := executor.NewGasEstimator(chainClient, cfg.GasSafetyMult, cfg.GasCacheTTL, cfg.ChainTimeout)

	var submitter executor.Submitter
	if cfg.SubmitterKey != "" {
		chainSubmitter, err := executor.NewChainSubmitter(chainClient, cfg.SubmitterKey, cfg.ChainID, cfg.ChainTimeout)
		if err != nil {
			log.Fatalf("Failed to configure transaction submitter: %v", err)
		}
		estimator.SetFrom(chainSubmitter.From())
		submitter = chainSubmitter
		slog.Info("Transaction submitter configured",
			"from", chainSubmitter.From().Hex(),
			"chain_id", cfg.ChainID,
		)
	} else {
		slog.Warn("No SUBMITTER_PRIVATE_KEY set, on-chain execution disabled")
	}

	// 5. Protocol executors
	lending, err := executor.NewLendingExecutor(estimator, submitter)
	if err != nil {
		log.Fatalf("Failed to create lending executor: %v", err)
	}
	swap, err := executor.NewSwapExecutor(estimator, submitter)
	if err != nil {
		log.Fatalf("Failed to create swap executor: %v", err)
	}
	executors := executor.NewRegistry(lending, swap)

	// 6. Contract registry
	contracts := registry.New(repository, cfg.RegistryCacheTTL)

	// 7. Delivery channel with push retry loop
	channel := delivery.NewChannel(repository, cfg.DeliveryMaxAttempts, cfg.HeartbeatInterval, cfg.StatsPushInterval)
	go channel.Run(ctx)
	go runDeliveryRetries(ctx, channel, cfg.DeliveryRetryInterval)

	// 8. Pipeline: broadcaster, confirmation machine, reaper
	bc := broadcaster.New(repository, contracts, channel, cfg.BroadcastExpiry, cfg.DefaultNetwork)
	go runBroadcastCleanup(ctx, bc, cfg.CleanupSweepInterval, cfg.BroadcastRetention)
	machine := confirm.New(repository, contracts, channel)

	sweeper := reaper.New(repository, channel, retry.NewStrategy(retry.LoadConfig()),
		cfg.ConfirmationSweepInterval, cfg.SubscriptionSweepInterval, cfg.ExpiryWarningHorizon)
	go sweeper.Run(ctx)

	// 9. Execution coordinator, only when submission is possible
	if submitter != nil {
		coordinator := orchestrator.New(repository, machine, executors, cfg.ExecutionSweepInterval)
		go coordinator.Run(ctx)
	}

	// 10. HTTP API
	server := api.NewServer(cfg.APIPort, repository, bc, machine, channel)
	if err := server.Start(); err != nil {
		log.Fatalf("Failed to start API server: %v", err)
	}

	// 11. Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	slog.Warn("Interrupt received, shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Error shutting down API server", "error", err)
	}

	slog.Info("tradecast stopped")
}

// runBroadcastCleanup periodically deletes settled broadcasts older than the
// retention window.
func runBroadcastCleanup(ctx context.Context, bc *broadcaster.Broadcaster, every, retention time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := bc.CleanupSettled(ctx, retention); err != nil {
				slog.Error("Broadcast cleanup pass failed", "error", err)
			}
		}
	}
}

// runDeliveryRetries periodically resends failed deliveries whose recipients
// reconnected.
func runDeliveryRetries(ctx context.Context, channel *delivery.Channel, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			delivered, err := channel.RetryFailed(ctx)
			if err != nil {
				slog.Error("Delivery retry pass failed", "error", err)
				continue
			}
			if delivered > 0 {
				slog.Info("Delivery retry pass completed", "delivered", delivered)
			}
		}
	}
}
