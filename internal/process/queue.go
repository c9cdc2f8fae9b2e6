package process

import (
	"context"
	"sync"
)

// LineQueue is an unbounded FIFO of output lines. The supervisor's reader
// goroutine is the only producer; a single consumer pops.
type LineQueue struct {
	mu     sync.Mutex
	items  []string
	ready  chan struct{} // capacity 1, signalled on push
	done   chan struct{} // closed when the producer finished
	closed bool
}

func newLineQueue() *LineQueue {
	return &LineQueue{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

func (q *LineQueue) push(line string) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, line)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *LineQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

// Len returns the number of buffered lines.
func (q *LineQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pop removes and returns the oldest line, blocking until one is available,
// the context is done, or the producer has finished. Lines buffered before
// the stream closed are still returned; after that Pop reports
// ErrProcessExited.
func (q *LineQueue) Pop(ctx context.Context) (string, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			line := q.items[0]
			q.items[0] = ""
			q.items = q.items[1:]
			q.mu.Unlock()
			return line, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return "", ErrProcessExited
		}

		select {
		case <-q.ready:
		case <-q.done:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}
