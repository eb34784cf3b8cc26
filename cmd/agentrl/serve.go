package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xdotli/agentic-rl/internal/generator"
	"github.com/xdotli/agentic-rl/internal/orchestrator"
	"github.com/xdotli/agentic-rl/internal/runstate"
	"github.com/xdotli/agentic-rl/internal/sandbox"
	"github.com/xdotli/agentic-rl/internal/server"
	"github.com/xdotli/agentic-rl/internal/validator"
)

func newServeCmd() *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long: `Run the HTTP API server: scenario submission, seed task uploads, a
streamed generation endpoint, status polling, validation, and Prometheus
metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.close()

			if listenAddr != "" {
				a.cfg.Server.ListenAddr = listenAddr
			}

			store := runstate.NewStore()
			gen := generator.NewLLMGenerator(a.cfg, a.secrets, a.client, a.seeds, a.logger)
			orch := orchestrator.New(a.cfg, gen, store, a.logger)

			// Validation stays available only when a rater is configured;
			// the server reports the gap per request otherwise.
			var engine *validator.Engine
			if rater, err := validator.NewLLMRater(a.cfg, a.secrets, a.client, a.logger); err == nil {
				executor := sandbox.NewCommandExecutor(a.cfg.Sandbox, a.logger)
				engine, err = validator.NewEngine(executor, rater, a.logger)
				if err != nil {
					return &configError{err: err}
				}
			} else {
				a.logger.Warn("Validation endpoint disabled", "reason", err)
			}

			srv := server.New(a.cfg, orch, a.seeds, engine, a.logger)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			a.logger.Info("Server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (defaults to server.listen_addr)")
	return cmd
}
