package core

import (
	"time"

	"github.com/google/uuid"
)

// newRunID creates a unique ID for evaluation runs
func newRunID() string {
	return uuid.NewString()
}

// timeNow returns the current time (useful for testing)
var timeNow = time.Now
