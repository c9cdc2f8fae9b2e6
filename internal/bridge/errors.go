package bridge

import (
	"fmt"
	"time"
)

// TimeoutError reports that the reply for a batch position did not arrive
// in time. The whole batch is abandoned; the embedder keeps running.
type TimeoutError struct {
	Position int
	After    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("bridge: no reply for position %d within %s", e.Position, e.After)
}

// Timeout marks the error as a timeout for callers checking for an
// interface{ Timeout() bool }.
func (e *TimeoutError) Timeout() bool { return true }

// ProtocolError reports a reply line that is not a well-formed embedding.
type ProtocolError struct {
	Line   string
	Reason string
}

func (e *ProtocolError) Error() string {
	line := e.Line
	if len(line) > 80 {
		line = line[:77] + "..."
	}
	return fmt.Sprintf("bridge: malformed reply %q: %s", line, e.Reason)
}
