package cmd

import (
	"context"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/storewalk/internal/config"
	"github.com/xkilldash9x/storewalk/internal/journey"
	"github.com/xkilldash9x/storewalk/internal/observability"
	"github.com/xkilldash9x/storewalk/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// runStore records results and loads them back by id.
type runStore interface {
	journey.Sink
	GetRun(ctx context.Context, runID string) (*journey.Result, error)
}

// storeProvider defines an interface for components that can create a result
// store. This abstraction allows tests to inject a fake instead of a live
// database connection.
type storeProvider interface {
	// Create returns the store and a cleanup function that releases it.
	Create(ctx context.Context, cfg config.Interface) (runStore, func(), error)
}

// defaultStoreProvider connects to PostgreSQL.
type defaultStoreProvider struct{}

// NewStoreProvider creates the production store provider.
func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

// Create connects to the configured database and creates the result tables
// when they do not exist.
func (p *defaultStoreProvider) Create(ctx context.Context, cfg config.Interface) (runStore, func(), error) {
	logger := observability.GetLogger()
	if cfg.Store().URL == "" {
		return nil, nil, fmt.Errorf("store URL is not configured (STOREWALK_STORE_URL)")
	}

	st, closePool, err := store.Open(ctx, cfg.Store().URL, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		closePool()
		logger.Debug("Database connection pool closed.")
	}
	return st, cleanup, nil
}

// newShowCmd creates and configures the `show` command.
func newShowCmd(deps dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Prints a persisted journey result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return showRun(ctx, cmd.OutOrStdout(), cfg, args[0], deps.stores, observability.GetLogger())
		},
	}
}

// showRun loads runID from the store and writes it to w.
func showRun(ctx context.Context, w io.Writer, cfg config.Interface, runID string, provider storeProvider, logger *zap.Logger) error {
	st, cleanup, err := provider.Create(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	res, err := st.GetRun(ctx, runID)
	if err != nil {
		logger.Error("Failed to load run", zap.Error(err), observability.RunID(runID))
		return fmt.Errorf("failed to load run: %w", err)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(res); err != nil {
		return fmt.Errorf("failed to serialize run to JSON: %w", err)
	}
	return nil
}
