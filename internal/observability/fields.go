package observability

import (
	"time"

	"go.uber.org/zap"
)

// Field keys shared by every journey event so log pipelines can group a run.
const (
	KeyRunID      = "run_id"
	KeyStep       = "step"
	KeyCheckpoint = "checkpoint"
	KeyPage       = "page"
	KeyLocator    = "locator"
	KeyElapsed    = "elapsed"

	KeyService    = "service"
	KeyInvocation = "invocation"
)

func RunID(id string) zap.Field         { return zap.String(KeyRunID, id) }
func Step(name string) zap.Field        { return zap.String(KeyStep, name) }
func Checkpoint(name string) zap.Field  { return zap.String(KeyCheckpoint, name) }
func Page(name string) zap.Field        { return zap.String(KeyPage, name) }
func Locator(name string) zap.Field     { return zap.String(KeyLocator, name) }
func Elapsed(d time.Duration) zap.Field { return zap.Duration(KeyElapsed, d) }

func Service(name string) zap.Field  { return zap.String(KeyService, name) }
func Invocation(id string) zap.Field { return zap.String(KeyInvocation, id) }
