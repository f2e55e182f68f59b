package jobs

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job transition")
	ErrInvalidRequest    = errors.New("invalid report request")
	ErrJobExists         = errors.New("job already exists")
)

// JobStoreUnavailableError reports that the store could not be read or written.
type JobStoreUnavailableError struct {
	Op  string
	Err error
}

func (e *JobStoreUnavailableError) Error() string {
	return fmt.Sprintf("job store unavailable: %s: %v", e.Op, e.Err)
}

func (e *JobStoreUnavailableError) Unwrap() error {
	return e.Err
}

type TransitionError struct {
	ID   string
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("job %s: cannot move from %s to %s", e.ID, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
