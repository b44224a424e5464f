package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forexcompass/compass/internal/a2a"
	"github.com/forexcompass/compass/internal/api"
	"github.com/forexcompass/compass/internal/app"
	"github.com/forexcompass/compass/internal/config"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the agent HTTP server",
		Long: `Start the A2A HTTP server. The agent answers message/send envelopes on
POST /a2a/` + config.DefaultAgentName + ` and exposes /health and /ready probes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides configuration)")
	return cmd
}

func runServe(parent context.Context, addrFlag string) error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting agent server", "version", AppVersion, "agent", cfg.AgentName)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	webhooks := a2a.NewWebhookClient(nil, logger)
	handler, err := api.NewA2AHandler(cfg.AgentName, a.Pipeline, webhooks, logger)
	if err != nil {
		return fmt.Errorf("creating agent handler: %w", err)
	}

	server, err := api.NewServer(handler, api.NewHealthHandler(a.Pool, logger), logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	addr := addrFlag
	if addr == "" {
		addr = cfg.ServerAddr
	}
	return server.Run(ctx, addr)
}
