package engine

import (
	"errors"
	"fmt"
)

// ErrUnauthenticated is returned when a mutation arrives without an acting
// staff identity. The ledger is never touched in that case.
var ErrUnauthenticated = errors.New("unauthenticated: staff identity required")

// ValidationError rejects a mutation before anything is written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
