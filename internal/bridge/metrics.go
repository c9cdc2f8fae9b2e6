package bridge

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/constantino-dev/sentbench/internal/process"
)

var (
	batchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentbench",
			Subsystem: "bridge",
			Name:      "batches_total",
			Help:      "Embed calls by outcome.",
		},
		[]string{"outcome"},
	)

	sentencesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sentbench",
			Subsystem: "bridge",
			Name:      "sentences_written_total",
			Help:      "Request lines written to the embedder.",
		},
	)

	truncatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sentbench",
			Subsystem: "bridge",
			Name:      "sentences_truncated_total",
			Help:      "Sentences cut to the token limit before writing.",
		},
	)

	discardedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sentbench",
			Subsystem: "bridge",
			Name:      "discarded_lines_total",
			Help:      "Embedder output lines without the reply marker.",
		},
	)

	batchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sentbench",
			Subsystem: "bridge",
			Name:      "batch_duration_seconds",
			Help:      "Wall time of successful Embed calls.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		},
	)
)

func outcomeOf(err error) string {
	var (
		timeoutErr *TimeoutError
		protoErr   *ProtocolError
		launchErr  *process.LaunchError
		writeErr   *process.WriteError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &timeoutErr):
		return "timeout"
	case errors.As(err, &protoErr):
		return "protocol_error"
	case errors.As(err, &launchErr):
		return "launch_error"
	case errors.As(err, &writeErr):
		return "write_error"
	case errors.Is(err, process.ErrProcessExited):
		return "exited"
	default:
		return "canceled"
	}
}

func observeBatch(start time.Time, err error) {
	batchesTotal.WithLabelValues(outcomeOf(err)).Inc()
	if err == nil {
		batchDuration.Observe(time.Since(start).Seconds())
	}
}
