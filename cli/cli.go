package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"hearth/agent"
	"hearth/common"
	"hearth/llm"
	"hearth/logger"
	"hearth/secret_manager"
)

const version = "0.3.0"

func main() {
	// Load .env file if any
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			log := logger.Get()
			log.Warn().Err(err).Msg("failed to load .env file")
		}
	}

	root := &cli.Command{
		Name:    "hearth",
		Usage:   "Conversational bridge between a smart home and a streaming completion API",
		Version: version,
		Commands: []*cli.Command{
			NewServeCommand(),
			NewChatCommand(),
		},
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// buildOrchestrator wires the completion client, tool loop and pending store
// from config. The API key comes from the secret manager and is passed
// through as an opaque credential.
func buildOrchestrator(cfg common.Config) (*agent.Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	secrets := secret_manager.GetSecretManager(secret_manager.SecretManagerType(os.Getenv("HEARTH_SECRET_MANAGER")))
	apiKey, err := secrets.GetSecret(secret_manager.ApiKeySecretName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve API key: %w", err)
	}

	client := llm.NewClient(cfg, &http.Client{}, apiKey)

	var loop *agent.ToolLoop
	if cfg.ToolsEnable && cfg.ServiceWebhookURL != "" {
		executor := agent.NewWebhookExecutor(cfg.ServiceWebhookURL, &http.Client{}, cfg.APITimeout())
		loop = agent.NewToolLoop(client, executor, agent.BuiltinTools(), cfg.MaxToolIterations, cfg.ParallelToolCalls)
	}

	return agent.NewOrchestrator(client, loop, agent.NewPendingStore(), nil, cfg), nil
}
