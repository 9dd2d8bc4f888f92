package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapdq/internal/cli/config"
	"github.com/leapstack-labs/leapdq/internal/cli/output"
	"github.com/leapstack-labs/leapdq/internal/engine"
	"github.com/leapstack-labs/leapdq/internal/storage"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Engine   *engine.Engine
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext with engine and renderer.
// Returns the context and a cleanup function that must be called (typically via defer).
func NewCommandContext(cmd *cobra.Command, onEvent func(engine.Event)) (*CommandContext, func(), error) {
	cmdCtx := NewCommandContextWithoutEngine(cmd)

	eng, err := createEngine(cmd.Context(), cmdCtx.Cfg, cmdCtx.Logger, onEvent)
	if err != nil {
		return nil, nil, err
	}
	cmdCtx.Engine = eng

	cleanup := func() {
		_ = eng.Close()
	}
	return cmdCtx, cleanup, nil
}

// NewCommandContextWithoutEngine creates a CommandContext without an engine.
// Useful for commands that don't need the state store.
func NewCommandContextWithoutEngine(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	logger := config.GetLogger(cmd.Context())
	mode := output.Mode(cfg.OutputFormat)
	r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	return &CommandContext{
		Cfg:      cfg,
		Logger:   logger,
		Renderer: r,
	}
}

// getConfig returns the current configuration.
// It uses config.GetCurrentConfig() if available, otherwise falls back to environment variables.
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	return &config.Config{
		StatePath:    getEnvOrDefault("LEAPDQ_STATE_PATH", config.DefaultStateFile),
		RunType:      getEnvOrDefault("LEAPDQ_RUN_TYPE", config.DefaultRunType),
		LogLevel:     getEnvOrDefault("LEAPDQ_LOG_LEVEL", config.DefaultLogLevel),
		Verbose:      os.Getenv("LEAPDQ_VERBOSE") == "true",
		OutputFormat: os.Getenv("LEAPDQ_OUTPUT"),
	}
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func createEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger, onEvent func(engine.Event)) (*engine.Engine, error) {
	// Ensure state directory exists
	if cfg.StatePath != ":memory:" {
		stateDir := filepath.Dir(cfg.StatePath)
		if stateDir != "." && stateDir != "" {
			if err := os.MkdirAll(stateDir, 0750); err != nil {
				return nil, fmt.Errorf("failed to create state directory: %w", err)
			}
		}
	}

	var objects storage.ObjectStore
	if cfg.S3.Configured() {
		store, err := storage.NewMinioStore(cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to configure s3: %w", err)
		}
		objects = store
	}

	if ctx == nil {
		ctx = context.Background()
	}
	return engine.New(ctx, engine.Config{
		StatePath: cfg.StatePath,
		Storage:   cfg.StorageConfig(),
		Objects:   objects,
		Workers:   cfg.Workers,
		Logger:    logger,
		OnEvent:   onEvent,
	})
}
