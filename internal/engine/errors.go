package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrExecutionInProgress is returned when a concurrent trigger for the same
	// recurring order could not obtain the per-order lease.
	ErrExecutionInProgress = errors.New("an execution for this recurring order is already in progress")

	// ErrResolutionFailed is returned by the resolver when every template item
	// was excluded and nothing is left to order.
	ErrResolutionFailed = errors.New("no template items could be resolved")
)

// PlacementError is a rejection from the order-creation collaborator.
// Permanent rejections (invalid address, compliance) are terminal; everything
// else (timeouts, temporary stock-outs) is retryable under backoff.
type PlacementError struct {
	Permanent bool
	Reason    string
}

func (e *PlacementError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("order placement rejected (%s): %s", kind, e.Reason)
}

// IsPermanentPlacement reports whether err is a permanent placement rejection.
func IsPermanentPlacement(err error) bool {
	var pe *PlacementError
	return errors.As(err, &pe) && pe.Permanent
}
