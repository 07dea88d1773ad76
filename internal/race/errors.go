package race

import (
	"errors"
	"fmt"
)

var (
	// ErrGuardTimeout marks a guard that did not answer within GuardTimeout.
	ErrGuardTimeout = errors.New("guard deadline exceeded")
	// ErrProducerTimeout marks a producer that exceeded ProducerTimeout.
	ErrProducerTimeout = errors.New("producer deadline exceeded")
	// ErrCancellationTimeout marks a producer that did not stop within CancelGrace.
	ErrCancellationTimeout = errors.New("producer did not confirm cancellation")
	// ErrPanic wraps a panic recovered from a guard or producer.
	ErrPanic = errors.New("collaborator panicked")
	// ErrNilCollaborator is returned when Run is given a nil guard or producer.
	ErrNilCollaborator = errors.New("nil guard or producer")
)

// Stage names the collaborator a failure came from.
type Stage string

const (
	StageGuard    Stage = "guard"
	StageProducer Stage = "producer"
)

// StageError is the failure carried by GuardFailed, ProducerFailed and
// CancellationFailed outcomes. Timeout distinguishes a deadline from an
// evaluator or generation error.
type StageError struct {
	Stage   Stage
	Timeout bool
	Err     error
}

func (e *StageError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s timed out: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a stage timeout.
func IsTimeout(err error) bool {
	var se *StageError
	if errors.As(err, &se) {
		return se.Timeout
	}
	return false
}
