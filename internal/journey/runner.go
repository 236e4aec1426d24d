package journey

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Sink receives every finished Result. Implementations must be safe for
// concurrent use when runs are parallel.
type Sink interface {
	Record(ctx context.Context, res *Result) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, res *Result) error

func (f SinkFunc) Record(ctx context.Context, res *Result) error { return f(ctx, res) }

// RunMany executes runs independent journeys with at most parallelism of
// them in flight. Results are indexed by start order. A failed journey is not
// an error; the returned error reports sinks that could not record a result.
func (o *Orchestrator) RunMany(ctx context.Context, runs, parallelism int, sinks ...Sink) ([]*Result, error) {
	if runs <= 0 {
		return nil, nil
	}
	if parallelism <= 0 {
		parallelism = 1
	}

	results := make([]*Result, runs)
	var g errgroup.Group
	g.SetLimit(parallelism)
	for i := range runs {
		g.Go(func() error {
			res := o.Run(ctx)
			results[i] = res
			return record(ctx, res, sinks)
		})
	}
	err := g.Wait()

	passed := 0
	for _, res := range results {
		if res.Passed() {
			passed++
		}
	}
	o.logger.Info("Journeys finished.",
		zap.Int("runs", runs),
		zap.Int("passed", passed),
		zap.Int("failed", runs-passed),
		zap.Int("parallelism", parallelism),
	)
	return results, err
}

func record(ctx context.Context, res *Result, sinks []Sink) error {
	var errs []error
	for _, s := range sinks {
		if err := s.Record(ctx, res); err != nil {
			errs = append(errs, fmt.Errorf("record run %s: %w", res.RunID, err))
		}
	}
	return errors.Join(errs...)
}
