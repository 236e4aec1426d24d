package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/storewalk/internal/config"
	"github.com/xkilldash9x/storewalk/internal/journey"
	"github.com/xkilldash9x/storewalk/internal/observability"
	"github.com/xkilldash9x/storewalk/internal/reporting"
)

// ErrJourneysFailed is returned by the run command when at least one journey
// did not pass.
var ErrJourneysFailed = errors.New("journeys failed")

// newRunCmd creates and configures the `run` command.
func newRunCmd(deps dependencies) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Runs the shopper journey against a storefront",
		Long: `Opens a browser, registers a fresh customer, searches the catalog, adds the
first product to the cart and verifies the cart. Every run produces a result
with its checkpoints and the soft failures it recovered from.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runJourneys(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg, deps, observability.GetLogger())
		},
	}

	f := runCmd.Flags()
	f.StringP("url", "u", "", "Storefront base URL. (Overrides config/env)")
	f.StringP("query", "q", "", "Search query. (Overrides config/env)")
	f.IntP("runs", "n", 0, "Number of independent journeys. (Overrides config/env)")
	f.IntP("parallel", "p", 0, "Journeys in flight at once. (Overrides config/env)")
	f.Bool("headless", true, "Run the browser without a window. (Overrides config/env)")
	f.StringP("browser", "b", "", "Browser kind: chrome, firefox or edge. (Overrides config/env)")
	f.String("engine", "", "Automation engine: chromedp, rod or playwright. (Overrides config/env)")
	f.StringP("report", "o", "", "Report path, '-' for stdout. If unset, no report is written.")
	f.StringP("format", "f", "", "Report format: json or jsonl. (Overrides config/env)")
	f.String("store", "", "PostgreSQL URL for persisting results. (Overrides config/env)")
	return runCmd
}

// runJourneys contains the core, testable logic of the run command.
func runJourneys(ctx context.Context, stdout, stderr io.Writer, cfg config.Interface, deps dependencies, logger *zap.Logger) (err error) {
	opener, err := deps.openers(cfg.Browser(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize browser: %w", err)
	}
	orch, err := journey.New(opener, journey.OptionsFrom(cfg), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize journey: %w", err)
	}

	var sinks []journey.Sink

	if path := cfg.Report().Path; path != "" {
		reporter, reportErr := reporting.New(cfg.Report().Format, path, Version)
		if reportErr != nil {
			return fmt.Errorf("failed to initialize reporter: %w", reportErr)
		}
		defer func() {
			if closeErr := reporter.Close(); closeErr != nil {
				logger.Error("Failed to close reporter", zap.Error(closeErr))
				if err == nil {
					err = closeErr
				}
			}
		}()
		sinks = append(sinks, reporter)
		// The summary table must not interleave with a report on stdout.
		if reporting.IsStdout(path) {
			stdout = stderr
		}
	}

	if cfg.Store().URL != "" {
		st, cleanup, err := deps.stores.Create(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}
		if cleanup != nil {
			defer cleanup()
		}
		sinks = append(sinks, st)
	}

	j := cfg.Journey()
	logger.Info("Starting journeys",
		zap.String("url", j.BaseURL),
		zap.String("query", j.Query),
		zap.Int("runs", j.Runs),
		zap.Int("parallelism", j.Parallelism),
		zap.String("engine", string(cfg.Browser().ResolvedEngine())),
	)

	results, recordErr := orch.RunMany(ctx, j.Runs, j.Parallelism, sinks...)
	printSummary(stdout, results)

	if recordErr != nil {
		return fmt.Errorf("failed to record results: %w", recordErr)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if failed := countFailed(results); failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrJourneysFailed, failed, len(results))
	}
	return nil
}

func countFailed(results []*journey.Result) int {
	n := 0
	for _, r := range results {
		if !r.Passed() {
			n++
		}
	}
	return n
}

// printSummary writes one line per run.
func printSummary(w io.Writer, results []*journey.Result) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTATUS\tDURATION\tNOTES\tFAILURE")
	for _, r := range results {
		failure := "-"
		if r.Failure != nil {
			failure = fmt.Sprintf("%s at %s: %s", r.Failure.Kind, r.Failure.Step, r.Failure.Message)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			r.RunID, r.Status, r.Duration().Round(time.Millisecond), len(r.Annotations), failure)
	}
	_ = tw.Flush()
}
