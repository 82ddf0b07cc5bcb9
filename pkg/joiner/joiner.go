// Package joiner implements all/allSettled parallel-join combinators:
// run a keyed collection of tasks to completion, preserving keys,
// expanding lazy handles and raw callables, and routing through
// pkg/pool when a concurrency cap applies.
package joiner

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/deferrun/pkg/core"
	"github.com/cuemby/deferrun/pkg/lazytask"
	"github.com/cuemby/deferrun/pkg/monitor"
	"github.com/cuemby/deferrun/pkg/pool"
	"github.com/cuemby/deferrun/pkg/taskerr"
	"github.com/cuemby/deferrun/pkg/types"
)

// Item is one joiner input: exactly one of TaskID, LazyID, or
// Callback+Context is meaningful, selected by Kind.
type Item struct {
	Kind     ItemKind
	TaskID   types.TaskID
	LazyID   types.TaskID
	Callback types.Callable
	Context  types.Context
}

// ItemKind tags which field of Item is populated.
type ItemKind int

const (
	ItemTaskID ItemKind = iota
	ItemLazy
	ItemCallable
)

// Settled is one key's outcome from AllSettled: exactly one of Value or
// Reason is present.
type Settled struct {
	Fulfilled bool
	Value     any
	Reason    string
}

// Joiner resolves Items into TaskIDs (spawning/expanding as needed) and
// polls them to completion.
type Joiner struct {
	runtime       core.Core
	lazyTable     *lazytask.LazyTaskTable
	expand        lazytask.Expander
	maxConcurrent int
	pollInterval  time.Duration
}

// New returns a Joiner. maxConcurrent <= 0 means unbounded (no pool
// routing); the pool path is only used when a cap is set.
func New(runtime core.Core, lazyTable *lazytask.LazyTaskTable, maxConcurrent int, pollInterval time.Duration) *Joiner {
	expand := func(callback types.Callable, ctx types.Context) (types.TaskID, error) {
		return runtime.Spawn(callback, ctx)
	}
	return &Joiner{runtime: runtime, lazyTable: lazyTable, expand: expand, maxConcurrent: maxConcurrent, pollInterval: pollInterval}
}

// resolve turns items into a key->TaskID map, routing lazy/callable
// entries through the pool when maxConcurrency is set. Mixing an
// already-spawned TaskID with lazy/callable entries under a concurrency
// cap is rejected: callers who want a mix must expand lazies themselves
// first.
func (j *Joiner) resolve(items map[string]Item) (map[string]types.TaskID, error) {
	resolved := make(map[string]types.TaskID, len(items))

	var hasTaskID, hasPoolable bool
	for _, item := range items {
		switch item.Kind {
		case ItemTaskID:
			hasTaskID = true
		default:
			hasPoolable = true
		}
	}

	if j.maxConcurrent > 0 && hasTaskID && hasPoolable {
		return nil, fmt.Errorf("joiner: pool mode (maxConcurrency set) rejects mixing already-spawned TaskIds with lazy/callable entries; expand lazies first")
	}

	if j.maxConcurrent > 0 && hasPoolable {
		p, err := pool.New(j.runtime, j.maxConcurrent, j.pollInterval)
		if err != nil {
			return nil, err
		}

		entries := make(map[string]pool.Entry)
		for key, item := range items {
			switch item.Kind {
			case ItemTaskID:
				resolved[key] = item.TaskID
			case ItemLazy:
				lazy, ok := j.lazyTable.Get(item.LazyID)
				if !ok {
					return nil, fmt.Errorf("joiner: unknown lazy task %s for key %q", item.LazyID, key)
				}
				entries[key] = pool.Entry{Callback: lazy.Callback, Context: lazy.Context}
			case ItemCallable:
				entries[key] = pool.Entry{Callback: item.Callback, Context: item.Context}
			}
		}

		for key, taskID := range p.Run(entries) {
			resolved[key] = taskID
		}
		return resolved, nil
	}

	for key, item := range items {
		switch item.Kind {
		case ItemTaskID:
			resolved[key] = item.TaskID
		case ItemLazy:
			taskID, err := j.lazyTable.Expand(item.LazyID, j.expand)
			if err != nil {
				return nil, fmt.Errorf("joiner: expand lazy task for key %q: %w", key, err)
			}
			resolved[key] = taskID
		case ItemCallable:
			taskID, err := j.runtime.Spawn(item.Callback, item.Context)
			if err != nil {
				return nil, fmt.Errorf("joiner: spawn callable for key %q: %w", key, err)
			}
			resolved[key] = taskID
		}
	}
	return resolved, nil
}

// All implements a fail-fast join: the first ERROR or NOT_FOUND aborts
// and returns an error naming the offending key/task.
func (j *Joiner) All(ctx context.Context, items map[string]Item, timeout time.Duration, sink monitor.OutputSink) (map[string]any, error) {
	resolved, err := j.resolve(items)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	results := make(map[string]any, len(resolved))
	pending := make(map[string]types.TaskID, len(resolved))
	for k, v := range resolved {
		pending[k] = v
	}
	emitted := make(map[string]int, len(resolved))

	for len(pending) > 0 {
		if timeout > 0 && time.Now().After(deadline) {
			var stillPending []types.TaskID
			for _, id := range pending {
				stillPending = append(stillPending, id)
			}
			return nil, &taskerr.TimeoutError{Pending: stillPending}
		}

		for key, taskID := range pending {
			status, err := j.runtime.Status(taskID)
			if err != nil {
				return nil, err
			}
			if sink != nil && len(status.Output) > emitted[key] {
				sink(taskID, status.Output[emitted[key]:])
				emitted[key] = len(status.Output)
			}

			switch {
			case status.Status == types.StatusCompleted:
				results[key] = status.Result
				delete(pending, key)
			case status.Status == types.StatusError:
				return nil, fmt.Errorf("joiner: task %q (%s) failed: %s", key, taskID, status.ErrorMessage)
			case status.Status == types.StatusNotFound:
				return nil, fmt.Errorf("joiner: task %q (%s) not found", key, taskID)
			case status.Status == types.StatusSpawnError:
				return nil, fmt.Errorf("joiner: task %q (%s) failed to spawn: %s", key, taskID, status.Message)
			}
		}

		if len(pending) > 0 {
			time.Sleep(j.pollInterval)
		}
	}

	return results, nil
}

// AllSettled implements a never-fail join: every key gets a Settled
// outcome, including a rejected outcome with a timeout reason
// for anything still pending at deadline.
func (j *Joiner) AllSettled(ctx context.Context, items map[string]Item, timeout time.Duration, sink monitor.OutputSink) (map[string]Settled, error) {
	resolved, err := j.resolve(items)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	results := make(map[string]Settled, len(resolved))
	pending := make(map[string]types.TaskID, len(resolved))
	for k, v := range resolved {
		pending[k] = v
	}
	emitted := make(map[string]int, len(resolved))

	for len(pending) > 0 {
		if timeout > 0 && time.Now().After(deadline) {
			for key := range pending {
				results[key] = Settled{Fulfilled: false, Reason: "timeout waiting for task completion"}
			}
			break
		}

		for key, taskID := range pending {
			status, err := j.runtime.Status(taskID)
			if err != nil {
				results[key] = Settled{Fulfilled: false, Reason: err.Error()}
				delete(pending, key)
				continue
			}
			if sink != nil && len(status.Output) > emitted[key] {
				sink(taskID, status.Output[emitted[key]:])
				emitted[key] = len(status.Output)
			}

			switch {
			case status.Status == types.StatusCompleted:
				results[key] = Settled{Fulfilled: true, Value: status.Result}
				delete(pending, key)
			case status.Status == types.StatusError:
				results[key] = Settled{Fulfilled: false, Reason: status.ErrorMessage}
				delete(pending, key)
			case status.Status == types.StatusNotFound:
				results[key] = Settled{Fulfilled: false, Reason: "task not found"}
				delete(pending, key)
			case status.Status == types.StatusSpawnError:
				results[key] = Settled{Fulfilled: false, Reason: status.Message}
				delete(pending, key)
			}
		}

		if len(pending) > 0 {
			time.Sleep(j.pollInterval)
		}
	}

	return results, nil
}
