package journey

import (
	"context"
	"errors"
	"fmt"

	"github.com/xkilldash9x/storewalk/internal/driver"
	"github.com/xkilldash9x/storewalk/internal/locator"
	"github.com/xkilldash9x/storewalk/internal/pages"
	"github.com/xkilldash9x/storewalk/internal/readiness"
)

// Kind classifies a journey failure or annotation for reports.
type Kind string

const (
	// KindElementNotFound means no candidate of a required locator matched.
	KindElementNotFound Kind = "ELEMENT_NOT_FOUND"
	// KindReadinessTimeout is only ever recorded as an annotation; pages are
	// used even when their readiness check times out.
	KindReadinessTimeout Kind = "READINESS_TIMEOUT"
	// KindCheckpointFailure means the page was reached but did not show the
	// expected outcome.
	KindCheckpointFailure Kind = "CHECKPOINT_ASSERTION_FAILURE"
	// KindSessionIO covers transport failures, a closed session, an
	// unreachable cart and cancellation of the run.
	KindSessionIO Kind = "SESSION_IO_FAILURE"
)

// CheckpointError is returned when a hard checkpoint does not hold.
type CheckpointError struct {
	Checkpoint string
	Detail     string
}

func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s failed: %s", e.Checkpoint, e.Detail)
}

// Classify maps err onto the failure taxonomy. Errors that carry no
// recognizable marker are treated as session failures, since they come from
// the browser backend.
func Classify(err error) Kind {
	var cpErr *CheckpointError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &cpErr), errors.Is(err, pages.ErrConsentRequired):
		return KindCheckpointFailure
	case driver.IsSessionFailure(err),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return KindSessionIO
	case locator.IsNotFound(err),
		errors.Is(err, driver.ErrNoSuchElement),
		errors.Is(err, driver.ErrStaleElement),
		errors.Is(err, driver.ErrNoSuchFrame):
		return KindElementNotFound
	case errors.Is(err, readiness.ErrConditionTimeout):
		return KindReadinessTimeout
	default:
		return KindSessionIO
	}
}
