// Package lazytask implements lazy-task handles: a captured callback
// that has not yet been spawned as a real background process.
// Expansion (turning a LazyTask into a spawned TaskID) must happen at
// most once per handle even if multiple callers race to expand the same
// one — joiner.All in particular expands the same lazy task it is given
// only once regardless of how many times it appears in an input map.
package lazytask

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cuemby/deferrun/pkg/types"
)

// Expander spawns the callback behind a LazyTask and returns the real
// TaskID it was assigned. pkg/core.Core satisfies this.
type Expander func(callback types.Callable, ctx types.Context) (types.TaskID, error)

type entry struct {
	task *types.LazyTask
	once sync.Once
	err  error
}

// LazyTaskTable is the process-wide registry of unexpanded lazy tasks.
type LazyTaskTable struct {
	counter atomic.Int64

	mu      sync.RWMutex
	entries map[types.TaskID]*entry
}

// New returns an empty LazyTaskTable.
func New() *LazyTaskTable {
	return &LazyTaskTable{entries: make(map[types.TaskID]*entry)}
}

// Create captures callback/ctx behind a new lazy_<n> handle without
// spawning anything.
func (t *LazyTaskTable) Create(callback types.Callable, ctx types.Context) *types.LazyTask {
	id := types.TaskID(fmt.Sprintf("lazy_%d", t.counter.Add(1)))
	lazy := &types.LazyTask{ID: id, Callback: callback, Context: ctx}

	t.mu.Lock()
	t.entries[id] = &entry{task: lazy}
	t.mu.Unlock()

	return lazy
}

// Get returns the LazyTask behind id, if it is still tracked.
func (t *LazyTaskTable) Get(id types.TaskID) (*types.LazyTask, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[id]
	if !ok {
		return nil, false
	}
	return e.task, true
}

// Expand spawns lazy's callback via expand exactly once, even under
// concurrent callers; every caller observes the same RealTaskID (or the
// same error) once the one actual spawn attempt completes.
func (t *LazyTaskTable) Expand(id types.TaskID, expand Expander) (types.TaskID, error) {
	t.mu.RLock()
	e, ok := t.entries[id]
	t.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("lazytask: unknown id %s", id)
	}

	e.once.Do(func() {
		real, err := expand(e.task.Callback, e.task.Context)
		if err != nil {
			e.err = err
			return
		}
		t.mu.Lock()
		e.task.Executed = true
		e.task.RealTaskID = real
		t.mu.Unlock()
	})

	if e.err != nil {
		return "", e.err
	}
	return e.task.RealTaskID, nil
}

// Forget drops a handle once its caller no longer needs it, e.g. after a
// joiner has collected its result.
func (t *LazyTaskTable) Forget(id types.TaskID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}
