package history

import "github.com/cuemby/deferrun/pkg/types"

// Store archives terminal task statuses after the status file itself has
// been cleaned up, so "what happened to task X last week" can still be
// answered after the periodic cleanup sweep has removed the live file. It is
// never consulted for a task's current status while that task is
// pending or running — the status file on disk is always authoritative
// until the task reaches a terminal state.
type Store interface {
	// Put archives status. Only terminal statuses (status.Status.Terminal())
	// should be recorded; callers enforce this, not the store.
	Put(status *types.TaskStatus) error

	// Get returns the archived status for id, or taskerr.NotFoundError.
	Get(id types.TaskID) (*types.TaskStatus, error)

	// List returns every archived status, ordered by TaskID.
	List() ([]*types.TaskStatus, error)

	// ListSince returns archived statuses completed at or after unixSeconds.
	ListSince(unixSeconds int64) ([]*types.TaskStatus, error)

	// Delete removes id from the archive.
	Delete(id types.TaskID) error

	Close() error
}
