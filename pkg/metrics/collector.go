package metrics

import (
	"time"

	"github.com/cuemby/deferrun/pkg/types"
)

// StatusLister is the narrow slice of pkg/statusstore.Store the
// collector depends on, kept local so that metrics does not import
// statusstore.
type StatusLister interface {
	List() ([]*types.TaskStatus, error)
}

// Collector periodically walks the status store and republishes task
// counts by status into TasksTotal.
type Collector struct {
	store  StatusLister
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector over store.
func NewCollector(store StatusLister) *Collector {
	return &Collector{
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics on a fixed interval.
func (c *Collector) Start(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	statuses, err := c.store.List()
	if err != nil {
		return
	}

	counts := make(map[types.Status]int)
	for _, s := range statuses {
		counts[s.Status]++
	}

	TasksTotal.Reset()
	for status, count := range counts {
		TasksTotal.WithLabelValues(string(status)).Set(float64(count))
	}
}
