// Package browser selects and launches the automation backend for a browser
// configuration.
package browser

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/storewalk/internal/config"
	"github.com/xkilldash9x/storewalk/internal/driver"
	"github.com/xkilldash9x/storewalk/internal/driver/cdp"
	"github.com/xkilldash9x/storewalk/internal/driver/pwdriver"
	"github.com/xkilldash9x/storewalk/internal/driver/rodriver"
	"github.com/xkilldash9x/storewalk/internal/observability"
)

type openFunc func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (driver.Driver, error)

// engines maps each engine onto its backend. Tests swap entries.
var engines = map[config.Engine]openFunc{
	config.EngineChromedp: func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (driver.Driver, error) {
		return cdp.Open(ctx, cfg, logger)
	},
	config.EngineRod: func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (driver.Driver, error) {
		return rodriver.Open(ctx, cfg, logger)
	},
	config.EnginePlaywright: func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (driver.Driver, error) {
		return pwdriver.Open(ctx, cfg, logger)
	},
}

// Opener launches a fresh browser per Open call from a frozen configuration.
type Opener struct {
	cfg    config.BrowserConfig
	engine config.Engine
	open   openFunc
	logger *zap.Logger
}

var _ driver.Opener = (*Opener)(nil)

// NewOpener validates cfg and binds it to the backend that serves its kind.
// The configuration is copied; later changes to the caller's value have no
// effect on sessions.
func NewOpener(cfg config.BrowserConfig, logger *zap.Logger) (*Opener, error) {
	if logger == nil {
		logger = observability.GetLogger()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Args = append([]string(nil), cfg.Args...)

	engine := cfg.ResolvedEngine()
	open, ok := engines[engine]
	if !ok {
		return nil, fmt.Errorf("no backend registered for engine %q", engine)
	}
	return &Opener{cfg: cfg, engine: engine, open: open, logger: logger.Named("browser")}, nil
}

// Engine reports the backend chosen for this opener.
func (o *Opener) Engine() config.Engine { return o.engine }

// Config returns a copy of the frozen configuration.
func (o *Opener) Config() config.BrowserConfig {
	cfg := o.cfg
	cfg.Args = append([]string(nil), o.cfg.Args...)
	return cfg
}

// Open acquires a session, bounded by the configured launch timeout.
func (o *Opener) Open(ctx context.Context) (driver.Driver, error) {
	if o.cfg.LaunchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.LaunchTimeout)
		defer cancel()
	}
	o.logger.Debug("Opening browser session.",
		zap.String("kind", string(o.cfg.Kind)),
		zap.String("engine", string(o.engine)),
	)
	d, err := o.open(ctx, o.Config(), o.logger)
	if err != nil {
		return nil, driver.WrapSession("open", err)
	}
	return d, nil
}
