// Package monitor implements Monitor and Awaiter: poll (or watch) a
// single task to completion, streaming output and progress without
// duplicating bytes already delivered. The select-over-timer-and-
// data-channel shape generalizes a periodic ticker loop to also select
// on a watch channel when one is available.
package monitor

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/cuemby/deferrun/pkg/lazytask"
	"github.com/cuemby/deferrun/pkg/taskerr"
	"github.com/cuemby/deferrun/pkg/types"
)

// DefaultPollInterval is the default poll cadence, every 10ms.
const DefaultPollInterval = 10 * time.Millisecond

// Reader is the read side of StatusStore that Monitor needs.
type Reader interface {
	Read(taskID types.TaskID) (*types.TaskStatus, error)
}

// Watcher is the optional watch side of StatusStore; when a Reader also
// implements Watcher, Monitor subscribes instead of pure polling.
type Watcher interface {
	Watch(taskID types.TaskID) (<-chan struct{}, func(), error)
}

// OutputSink receives newly produced output bytes as soon as they
// appear, never bytes already delivered.
type OutputSink func(taskID types.TaskID, chunk string)

// ProgressFunc is invoked only when the observed status has structurally
// changed from the last observation.
type ProgressFunc func(status *types.TaskStatus)

// Monitor polls (or watches) taskID until it reaches a terminal state or
// timeout elapses. If taskID names a LazyTask tracked by table, it is
// expanded first via expand. A zero timeout means wait forever.
func Monitor(ctx context.Context, reader Reader, table *lazytask.LazyTaskTable, expand lazytask.Expander, taskID types.TaskID, timeout time.Duration, onProgress ProgressFunc, sink OutputSink) (*types.TaskStatus, error) {
	realID := taskID
	if table != nil {
		if _, ok := table.Get(taskID); ok {
			expanded, err := table.Expand(taskID, expand)
			if err != nil {
				return nil, err
			}
			realID = expanded
		}
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	var watchCh <-chan struct{}
	var cancelWatch func()
	if w, ok := reader.(Watcher); ok {
		if ch, cancel, err := w.Watch(realID); err == nil {
			watchCh = ch
			cancelWatch = cancel
			defer cancelWatch()
		}
	}

	ticker := time.NewTicker(DefaultPollInterval)
	defer ticker.Stop()

	var last *types.TaskStatus
	var emitted int

	observe := func() (*types.TaskStatus, bool, error) {
		status, err := reader.Read(realID)
		if err != nil {
			return nil, false, err
		}
		if last == nil || !reflect.DeepEqual(last, status) {
			if onProgress != nil {
				onProgress(status)
			}
			last = status
		}
		if sink != nil && len(status.Output) > emitted {
			sink(realID, status.Output[emitted:])
			emitted = len(status.Output)
		}
		return status, status.Status.Terminal(), nil
	}

	if status, terminal, err := observe(); err != nil {
		return nil, err
	} else if terminal {
		return status, nil
	}

	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()

		case <-deadline:
			timedOut := *last
			timedOut.Timeout = true
			timedOut.Message = fmt.Sprintf("monitor timed out after %s waiting on task %s", timeout, realID)
			return &timedOut, nil

		case <-watchCh:
			status, terminal, err := observe()
			if err != nil {
				return nil, err
			}
			if terminal {
				return status, nil
			}

		case <-ticker.C:
			status, terminal, err := observe()
			if err != nil {
				return nil, err
			}
			if terminal {
				return status, nil
			}
		}
	}
}

// Await wraps Monitor, translating terminal states into a result or a
// descriptive error.
func Await(ctx context.Context, reader Reader, table *lazytask.LazyTaskTable, expand lazytask.Expander, taskID types.TaskID, timeout time.Duration) (any, error) {
	status, err := Monitor(ctx, reader, table, expand, taskID, timeout, nil, nil)
	if err != nil {
		return nil, err
	}

	switch {
	case status.Timeout:
		return nil, &taskerr.TimeoutError{TaskID: status.TaskID}
	case status.Status == types.StatusCompleted:
		return status.Result, nil
	case status.Status == types.StatusError:
		return nil, &taskerr.WorkerRuntimeError{TaskID: status.TaskID, Message: status.ErrorMessage, File: status.ErrorFile, Line: status.ErrorLine}
	case status.Status == types.StatusSpawnError:
		return nil, &taskerr.SpawnError{TaskID: status.TaskID, Cause: fmt.Errorf("%s", status.Message)}
	case status.Status == types.StatusNotFound:
		return nil, &taskerr.NotFoundError{TaskID: status.TaskID}
	case status.Status == types.StatusCorrupted:
		return nil, &taskerr.CorruptedError{TaskID: status.TaskID, Cause: fmt.Errorf("%s", status.Message)}
	default:
		return nil, fmt.Errorf("await task %s: unexpected terminal status %q", status.TaskID, status.Status)
	}
}
