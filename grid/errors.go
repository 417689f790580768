package grid

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidGeometry marks a single record whose geometry cannot be used.
	// The record is skipped; the run continues.
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrNoCandidates is returned by a nearest-neighbour query against an empty set.
	ErrNoCandidates = errors.New("no candidates for nearest-neighbour query")

	// ErrConnectivityRepairExhausted is wrapped by RepairExhaustedError.
	ErrConnectivityRepairExhausted = errors.New("connectivity repair exhausted")
)

// RepairExhaustedError reports that the repair loop ran out of rounds while
// the network still had more than one connected component.
type RepairExhaustedError struct {
	Iterations int
	Components int
}

func (e *RepairExhaustedError) Error() string {
	return fmt.Sprintf("%v after %d round(s): %d components remain",
		ErrConnectivityRepairExhausted, e.Iterations, e.Components)
}

func (e *RepairExhaustedError) Unwrap() error {
	return ErrConnectivityRepairExhausted
}
