package process

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned when the supervisor has already been shut down.
	ErrClosed = errors.New("process: supervisor closed")

	// ErrNotStarted is returned by WriteLine before Start succeeded.
	ErrNotStarted = errors.New("process: not started")

	// ErrProcessExited is returned by LineQueue.Pop once the output stream
	// has closed and every buffered line was consumed.
	ErrProcessExited = errors.New("process: output closed")
)

// LaunchError reports that the external command could not be spawned.
type LaunchError struct {
	Command string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("process: launch %q: %v", e.Command, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// WriteError reports that a line could not be written to the process's stdin.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("process: write: %v", e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
