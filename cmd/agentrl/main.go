package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xdotli/agentic-rl/internal/api"
	"github.com/xdotli/agentic-rl/internal/config"
	"github.com/xdotli/agentic-rl/internal/orchestrator"
	"github.com/xdotli/agentic-rl/internal/seeds"
	"github.com/xdotli/agentic-rl/internal/writer"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configPath string
	envFile    string
	verbose    bool
)

// Exit codes: 0 success, 1 invalid request or configuration, 2 model or
// orchestration failure, 3 run already in flight.
const (
	exitOK             = 0
	exitInvalidRequest = 1
	exitRunFailed      = 2
	exitRunInFlight    = 3
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "agentrl",
		Short: "Sandbox benchmark task generator",
		Long: `agentrl generates sandboxed agent benchmark tasks from a seed task and a
user scenario, using LLMs to produce complete task bundles (instructions,
Docker environment, reference solution, and tests), then validates them by
repeatedly executing each task's test suite against its solution.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.toml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to environment file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(newGenerateCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newExportCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var invalid *orchestrator.InvalidRequestError
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, orchestrator.ErrRunInFlight):
		return exitRunInFlight
	case errors.As(err, &invalid):
		return exitInvalidRequest
	case errors.As(err, new(*configError)):
		return exitInvalidRequest
	default:
		return exitRunFailed
	}
}

// configError marks failures that happen before any run starts.
type configError struct {
	err error
}

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

// app bundles everything a command needs after bootstrap.
type app struct {
	cfg     *config.Config
	secrets *config.Secrets
	session *writer.SessionManager
	logger  *slog.Logger
	logFile *os.File
	client  *api.Client
	seeds   *seeds.Store
}

func (a *app) close() {
	if a.logFile != nil {
		_ = a.logFile.Sync()
		_ = a.logFile.Close()
	}
}

func bootstrap() (*app, error) {
	if envFile != "" {
		if err := loadEnvFile(envFile); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load env file: %v\n", err)
		}
	}

	cfg, secrets, err := config.Load(configPath)
	if err != nil {
		return nil, &configError{err: fmt.Errorf("failed to load configuration: %w", err)}
	}

	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}

	session, err := writer.NewSessionManager(cfg.Generation.OutputDir, slog.Default())
	if err != nil {
		return nil, &configError{err: fmt.Errorf("failed to create session: %w", err)}
	}

	logger, logFile, err := writer.SetupLogger(session, logLevel)
	if err != nil {
		return nil, &configError{err: fmt.Errorf("failed to setup logger: %w", err)}
	}

	logger.Info("agentrl starting",
		"version", Version,
		"config", configPath,
		"session_dir", session.SessionDir())

	if err := session.BackupConfig(configPath); err != nil {
		logger.Warn("Failed to backup config", "error", err)
	}

	return &app{
		cfg:     cfg,
		secrets: secrets,
		session: session,
		logger:  logger,
		logFile: logFile,
		client:  api.NewClient(logger),
		seeds:   seeds.NewStore(cfg.Generation.SeedTaskDir, logger),
	}, nil
}

// discardLogger returns a logger for commands that run without a session.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// loadEnvFile loads KEY=VALUE pairs from a file into the environment.
func loadEnvFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if err := os.Setenv(key, value); err != nil {
			return err
		}
	}
	return nil
}
