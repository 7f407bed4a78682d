package mimic

import "errors"

// ErrCycle is matched by errors returned from a write that re-entered a ref
// whose broadcast had not finished.
var ErrCycle = errors.New("mimic: write cycle detected")

type CycleError struct {
	Ref string
}

func (e *CycleError) Error() string {
	return "mimic: write cycle detected at ref " + e.Ref
}

func (e *CycleError) Is(target error) bool {
	return target == ErrCycle
}
