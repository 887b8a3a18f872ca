package transport

import (
	"errors"
	"fmt"
)

var (
	ErrNoStems       = errors.New("no stems given")
	ErrDuplicateStem = errors.New("duplicate stem name")
	ErrEmptyStem     = errors.New("stem has no audio")
	ErrBusy          = errors.New("another load is in progress")
)

// EngineStateError reports an operation the engine refused. The engine state
// is unchanged when one is returned.
type EngineStateError struct {
	Op  string
	Err error
}

func (e *EngineStateError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *EngineStateError) Unwrap() error {
	return e.Err
}
