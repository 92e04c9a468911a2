package hooks

import (
	"fmt"

	"github.com/glorpus-work/featurectl/pkg/errors"
)

// ErrHookTypeEmpty is returned when a hooks type is empty.
var ErrHookTypeEmpty = fmt.Errorf("hooks type cannot be empty")

// ErrUnsupportedHookEvent is returned when an unsupported hooks event is used.
func ErrUnsupportedHookEvent(event string) error {
	return errors.Wrapf(errors.ErrHookExecution, "unsupported hooks event: %s", event)
}
