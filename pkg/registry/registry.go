// Package registry tracks in-process knowledge of tasks this process has
// spawned: creation time, callback kind, and context size. It is a cache
// beside statusstore, not a source of truth — losing it (process
// restart) never makes a task unreadable, since task status is always
// read from statusstore, never from here.
package registry

import (
	"sync"
	"time"

	"github.com/cuemby/deferrun/pkg/types"
)

// Entry is what the registry remembers about a spawned task.
type Entry struct {
	TaskID       types.TaskID
	CallbackType types.CallableKind
	ContextSize  int
	CreatedAt    time.Time
}

// TaskRegistry is a concurrency-safe map of TaskID to Entry, guarded by
// one RWMutex.
type TaskRegistry struct {
	mu      sync.RWMutex
	entries map[types.TaskID]*Entry
}

// New returns an empty TaskRegistry.
func New() *TaskRegistry {
	return &TaskRegistry{entries: make(map[types.TaskID]*Entry)}
}

// Register records a newly spawned task.
func (r *TaskRegistry) Register(taskID types.TaskID, callbackType types.CallableKind, contextSize int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[taskID] = &Entry{
		TaskID:       taskID,
		CallbackType: callbackType,
		ContextSize:  contextSize,
		CreatedAt:    time.Now(),
	}
}

// Get returns the entry for taskID, if this process spawned it.
func (r *TaskRegistry) Get(taskID types.TaskID) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[taskID]
	return e, ok
}

// Forget removes taskID. Nothing in this module calls it; the cleanup
// sweep does not prune the registry.
func (r *TaskRegistry) Forget(taskID types.TaskID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, taskID)
}

// List returns every tracked entry. Order is unspecified.
func (r *TaskRegistry) List() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}

// Len reports how many tasks are currently tracked.
func (r *TaskRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
