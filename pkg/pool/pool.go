// Package pool implements a bounded-concurrency process pool: a keyed
// set of {callback, context} entries drained from queued into active up
// to maxConcurrent, polled once per pollMs, in the same ticker/select
// shape used for other periodic loops in this codebase.
package pool

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/deferrun/pkg/core"
	"github.com/cuemby/deferrun/pkg/metrics"
	"github.com/cuemby/deferrun/pkg/types"
)

// Entry is one pool submission: a callback and its context.
type Entry struct {
	Callback types.Callable
	Context  types.Context
}

// Pool runs entries with at most maxConcurrent active at once.
type Pool struct {
	runtime       core.Core
	maxConcurrent int
	pollInterval  time.Duration
}

// New returns a Pool bounded to maxConcurrent concurrent workers,
// polling active entries every pollInterval. maxConcurrent must be >=1
// and pollInterval >=10ms.
func New(runtime core.Core, maxConcurrent int, pollInterval time.Duration) (*Pool, error) {
	if maxConcurrent < 1 {
		return nil, fmt.Errorf("pool: maxConcurrent must be >= 1, got %d", maxConcurrent)
	}
	if pollInterval < 10*time.Millisecond {
		return nil, fmt.Errorf("pool: pollInterval must be >= 10ms, got %s", pollInterval)
	}
	return &Pool{runtime: runtime, maxConcurrent: maxConcurrent, pollInterval: pollInterval}, nil
}

// Run drains entries into at most maxConcurrent active spawns at a
// time, blocking until every entry has reached a terminal status.
// It returns a key->TaskID map containing every input key, even entries
// whose spawn failed (as a synthetic "failed_<key>_<unix>" id).
func (p *Pool) Run(entries map[string]Entry) map[string]types.TaskID {
	results := make(map[string]types.TaskID, len(entries))

	type queuedEntry struct {
		key   string
		entry Entry
	}
	var queued []queuedEntry
	for k, e := range entries {
		queued = append(queued, queuedEntry{key: k, entry: e})
	}

	active := make(map[string]types.TaskID)

	var mu sync.Mutex
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	drain := func() {
		mu.Lock()
		defer mu.Unlock()
		for len(queued) > 0 && len(active) < p.maxConcurrent {
			next := queued[0]
			queued = queued[1:]

			taskID, err := p.runtime.Spawn(next.entry.Callback, next.entry.Context)
			if err != nil {
				taskID = types.TaskID(fmt.Sprintf("failed_%s_%d", next.key, time.Now().Unix()))
			}
			results[next.key] = taskID
			active[next.key] = taskID
		}
		metrics.PoolActive.Set(float64(len(active)))
		metrics.PoolQueued.Set(float64(len(queued)))
	}

	pollActive := func() {
		mu.Lock()
		defer mu.Unlock()
		for key, taskID := range active {
			status, err := p.runtime.Status(taskID)
			if err != nil {
				continue
			}
			if status.Status.Terminal() || status.Status.Synthetic() {
				delete(active, key)
			}
		}
	}

	for {
		drain()

		mu.Lock()
		done := len(queued) == 0 && len(active) == 0
		mu.Unlock()
		if done {
			break
		}

		<-ticker.C
		pollActive()
	}

	return results
}
