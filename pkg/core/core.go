// Package core defines the narrow interface that breaks the cyclic
// reference between the background-task subsystem and the defer/join
// facades built on top of it. pkg/deferstack's force_background path
// and pkg/joiner both depend only on Core, never on pkg/spawner or
// pkg/statusstore concretely.
package core

import (
	"time"

	"github.com/cuemby/deferrun/pkg/types"
)

// Core is everything a facade needs from the background-task runtime:
// spawn a callback, read or list status, and sweep old records.
type Core interface {
	// Spawn captures callback+ctx, materializes a worker, launches it
	// detached, and returns the TaskID assigned at registration.
	Spawn(callback types.Callable, ctx types.Context) (types.TaskID, error)

	// Status reads a single task's current record, synthesizing
	// NOT_FOUND/CORRUPTED statuses rather than erroring.
	Status(taskID types.TaskID) (*types.TaskStatus, error)

	// List returns every known task's record, most recently updated
	// first.
	List() ([]*types.TaskStatus, error)

	// Cleanup removes terminal records (and orphaned worker scripts)
	// older than maxAge, returning the count removed.
	Cleanup(maxAge time.Duration) (int, error)
}
