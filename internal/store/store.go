package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/storewalk/internal/journey"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ErrRunNotFound is returned by GetRun for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Store persists journey results in PostgreSQL. It is a journey.Sink and is
// safe for concurrent use.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ journey.Sink = (*Store)(nil)

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Open connects to databaseURL, verifies the connection and creates the
// schema. The returned close function releases the pool.
func Open(ctx context.Context, databaseURL string, logger *zap.Logger) (*Store, func(), error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool.Close, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS journey_runs (
    run_id          TEXT PRIMARY KEY,
    status          TEXT NOT NULL,
    started_at      TIMESTAMPTZ NOT NULL,
    finished_at     TIMESTAMPTZ NOT NULL,
    email           TEXT NOT NULL DEFAULT '',
    cart_tier       TEXT,
    cart_items      INTEGER,
    cart_product    TEXT,
    cart_subtotal   DOUBLE PRECISION,
    failure_kind    TEXT,
    failure_step    TEXT,
    failure_message TEXT
);
CREATE TABLE IF NOT EXISTS journey_checkpoints (
    run_id   TEXT NOT NULL REFERENCES journey_runs (run_id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    name     TEXT NOT NULL,
    passed   BOOLEAN NOT NULL,
    detail   TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, position)
);
CREATE TABLE IF NOT EXISTS journey_annotations (
    run_id   TEXT NOT NULL REFERENCES journey_runs (run_id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    step     TEXT NOT NULL,
    kind     TEXT NOT NULL DEFAULT '',
    message  TEXT NOT NULL,
    PRIMARY KEY (run_id, position)
);`

// EnsureSchema creates the result tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

const (
	sqlInsertRun = `
        INSERT INTO journey_runs (run_id, status, started_at, finished_at, email,
            cart_tier, cart_items, cart_product, cart_subtotal,
            failure_kind, failure_step, failure_message)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
    `
	sqlInsertCheckpoint = `
        INSERT INTO journey_checkpoints (run_id, position, name, passed, detail)
        VALUES ($1, $2, $3, $4, $5);
    `
	sqlInsertAnnotation = `
        INSERT INTO journey_annotations (run_id, position, step, kind, message)
        VALUES ($1, $2, $3, $4, $5);
    `
)

// Record persists res. It implements journey.Sink.
func (s *Store) Record(ctx context.Context, res *journey.Result) error {
	return s.SaveResult(ctx, res)
}

// SaveResult inserts a run with its checkpoints and annotations in one
// transaction.
func (s *Store) SaveResult(ctx context.Context, res *journey.Result) error {
	if res == nil {
		return fmt.Errorf("cannot save a nil result")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	var (
		cartTier, cartProduct           *string
		cartItems                       *int
		cartSubtotal                    *float64
		failKind, failStep, failMessage *string
	)
	if c := res.Cart; c != nil {
		cartTier, cartItems, cartProduct, cartSubtotal = &c.Tier, &c.Items, &c.Product, &c.Subtotal
	}
	if f := res.Failure; f != nil {
		kind := string(f.Kind)
		failKind, failStep, failMessage = &kind, &f.Step, &f.Message
	}

	_, err = tx.Exec(ctx, sqlInsertRun,
		res.RunID, string(res.Status), res.StartedAt.UTC(), res.FinishedAt.UTC(), res.Email,
		cartTier, cartItems, cartProduct, cartSubtotal,
		failKind, failStep, failMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", res.RunID, err)
	}

	for i, c := range res.Checkpoints {
		if _, err := tx.Exec(ctx, sqlInsertCheckpoint, res.RunID, i, c.Name, c.Passed, c.Detail); err != nil {
			return fmt.Errorf("failed to insert checkpoint %s (index %d): %w", c.Name, i, err)
		}
	}
	for i, a := range res.Annotations {
		if _, err := tx.Exec(ctx, sqlInsertAnnotation, res.RunID, i, a.Step, string(a.Kind), a.Message); err != nil {
			return fmt.Errorf("failed to insert annotation (index %d): %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Run persisted.",
		zap.String("run_id", res.RunID),
		zap.Int("checkpoints", len(res.Checkpoints)),
		zap.Int("annotations", len(res.Annotations)),
	)
	return nil
}

const (
	sqlGetRun = `
        SELECT status, started_at, finished_at, email,
            COALESCE(cart_tier, ''), COALESCE(cart_items, 0), COALESCE(cart_product, ''), COALESCE(cart_subtotal, 0),
            COALESCE(failure_kind, ''), COALESCE(failure_step, ''), COALESCE(failure_message, '')
        FROM journey_runs
        WHERE run_id = $1;
    `
	sqlGetCheckpoints = `
        SELECT name, passed, detail
        FROM journey_checkpoints
        WHERE run_id = $1
        ORDER BY position ASC;
    `
	sqlGetAnnotations = `
        SELECT step, kind, message
        FROM journey_annotations
        WHERE run_id = $1
        ORDER BY position ASC;
    `
)

// GetRun loads a persisted run.
func (s *Store) GetRun(ctx context.Context, runID string) (*journey.Result, error) {
	rows, err := s.pool.Query(ctx, sqlGetRun, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error during row iteration: %w", err)
		}
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	res := &journey.Result{RunID: runID}
	var (
		status, failKind string
		cart             journey.CartSummary
		failure          journey.Failure
	)
	err = rows.Scan(
		&status, &res.StartedAt, &res.FinishedAt, &res.Email,
		&cart.Tier, &cart.Items, &cart.Product, &cart.Subtotal,
		&failKind, &failure.Step, &failure.Message,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan run row: %w", err)
	}
	rows.Close()

	res.Status = journey.Status(status)
	if cart.Tier != "" {
		res.Cart = &cart
	}
	if failKind != "" {
		failure.Kind = journey.Kind(failKind)
		res.Failure = &failure
	}

	if res.Checkpoints, err = s.checkpoints(ctx, runID); err != nil {
		return nil, err
	}
	if res.Annotations, err = s.annotations(ctx, runID); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) checkpoints(ctx context.Context, runID string) ([]journey.Checkpoint, error) {
	rows, err := s.pool.Query(ctx, sqlGetCheckpoints, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoints: %w", err)
	}
	defer rows.Close()

	out := []journey.Checkpoint{}
	for rows.Next() {
		var c journey.Checkpoint
		if err := rows.Scan(&c.Name, &c.Passed, &c.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

func (s *Store) annotations(ctx context.Context, runID string) ([]journey.Annotation, error) {
	rows, err := s.pool.Query(ctx, sqlGetAnnotations, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query annotations: %w", err)
	}
	defer rows.Close()

	out := []journey.Annotation{}
	for rows.Next() {
		var (
			a    journey.Annotation
			kind string
		)
		if err := rows.Scan(&a.Step, &kind, &a.Message); err != nil {
			return nil, fmt.Errorf("failed to scan annotation row: %w", err)
		}
		a.Kind = journey.Kind(kind)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}
