package eventstore

import (
	"errors"
	"fmt"
)

// ErrConflictingWrite names contention on a workflow's per-workflow lock.
// Neither Store implementation returns it: Append waits for the lock with
// no time limit.
var ErrConflictingWrite = errors.New("eventstore: conflicting write, lock contended")

// ErrIntegrityError names an append that would leave a workflow's
// sequence_no non-dense. Neither Store implementation returns it: Append
// assigns MAX(sequence_no)+1 under the per-workflow lock and runs no
// separate density check.
var ErrIntegrityError = errors.New("eventstore: sequence_no would not be dense")

// wrapf is the repository's standard error-wrapping convention: a short
// constant prefix plus %w so errors.Is/As still resolve through the wrap.
func wrapf(op string, err error) error {
	return fmt.Errorf("eventstore: %s: %w", op, err)
}
