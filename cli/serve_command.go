package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"hearth/agent"
	"hearth/api"
	"hearth/common"
	"hearth/logger"
)

// pendingSweepInterval is how often expired pending continuations are swept.
const pendingSweepInterval = time.Minute

func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on (overrides config)",
			},
		},
		Action: handleServeCommand,
	}
}

func handleServeCommand(ctx context.Context, cmd *cli.Command) error {
	log := logger.Get()

	cfg, err := common.LoadConfig()
	if err != nil {
		return err
	}
	if port := cmd.Int("port"); port != 0 {
		cfg.ServerPort = int(port)
	}

	orchestrator, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}

	memory := agent.NewConversationMemory(cfg.MemoryTokenBudget)
	controller := api.NewController(orchestrator, memory, cfg)

	server := api.RunServer(controller)
	log.Info().Int("port", cfg.ServerPort).Msg("hearth API server started")
	fmt.Printf("hearth v%s listening on port %d\n", version, cfg.ServerPort)

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go runPendingSweeper(sweepCtx, orchestrator.Store())

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-signals:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful server shutdown failed: %w", err)
	}
	return nil
}

// runPendingSweeper periodically expires pending continuations whose
// deadlines have passed, cancelling their background tasks.
func runPendingSweeper(ctx context.Context, store *agent.PendingStore) {
	ticker := time.NewTicker(pendingSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			store.Sweep(now)
		}
	}
}
