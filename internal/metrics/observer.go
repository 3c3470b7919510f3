package metrics

import (
	"time"

	"github.com/maauso/mediaforge/internal/job"
)

// jobObserver implements job.Observer using the Prometheus metrics declared in
// this package.
type jobObserver struct{}

// NewJobObserver creates an observer that records runner lifecycle events.
func NewJobObserver() job.Observer {
	return jobObserver{}
}

func (jobObserver) QueueDepth(n int) {
	JobQueueDepth.Set(float64(n))
}

func (jobObserver) Started(kind job.Kind, waited time.Duration) {
	JobsStartedTotal.WithLabelValues(string(kind)).Inc()
	JobWaitDuration.WithLabelValues(string(kind)).Observe(waited.Seconds())
}

func (jobObserver) Finished(kind job.Kind, status job.Status, elapsed time.Duration) {
	JobsFinishedTotal.WithLabelValues(string(kind), string(status)).Inc()
	JobDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}
