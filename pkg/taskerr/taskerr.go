// Package taskerr implements the error taxonomy: a small set of
// wrapping error types that identify which stage of the task
// lifecycle failed, without losing the underlying cause.
package taskerr

import (
	"fmt"

	"github.com/cuemby/deferrun/pkg/types"
)

// SerializationError means no CallableCapture strategy matched the given
// callback or context. The runtime refuses to spawn; it never falls back
// to in-process execution.
type SerializationError struct {
	Reason string
	Cause  error
}

func (e *SerializationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("serialize callback: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("serialize callback: %s", e.Reason)
}

func (e *SerializationError) Unwrap() error { return e.Cause }

// SpawnError means ProcessSpawner could not launch the detached worker.
// The caller's status file, if one was created, transitions to
// SPAWN_ERROR.
type SpawnError struct {
	TaskID types.TaskID
	Cause  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn task %s: %v", e.TaskID, e.Cause)
}

func (e *SpawnError) Unwrap() error { return e.Cause }

// WorkerRuntimeError reports a task that reached ERROR, carrying the
// diagnostics the worker wrote to its status file.
type WorkerRuntimeError struct {
	TaskID  types.TaskID
	Message string
	File    string
	Line    int
}

func (e *WorkerRuntimeError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("task %s failed: %s (%s:%d)", e.TaskID, e.Message, e.File, e.Line)
	}
	return fmt.Sprintf("task %s failed: %s", e.TaskID, e.Message)
}

// NotFoundError means no status file exists for the given task id.
type NotFoundError struct {
	TaskID types.TaskID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("task %s: not found", e.TaskID)
}

// CorruptedError means a status file exists but could not be decoded.
type CorruptedError struct {
	TaskID types.TaskID
	Cause  error
}

func (e *CorruptedError) Error() string {
	return fmt.Sprintf("task %s: corrupted status file: %v", e.TaskID, e.Cause)
}

func (e *CorruptedError) Unwrap() error { return e.Cause }

// TimeoutError means a monitor/await/join call exhausted its wall-clock
// budget before the task(s) reached a terminal state.
type TimeoutError struct {
	TaskID  types.TaskID
	Pending []types.TaskID // populated by join calls, empty for a single await
}

func (e *TimeoutError) Error() string {
	if len(e.Pending) > 0 {
		return fmt.Sprintf("timed out waiting for %d task(s): %v", len(e.Pending), e.Pending)
	}
	return fmt.Sprintf("task %s: timed out", e.TaskID)
}

// DeferCallbackError wraps a panic/error from inside a defer stack
// callback. It is logged and does not interrupt the remaining callbacks
// in the scope.
type DeferCallbackError struct {
	Scope string
	Cause error
}

func (e *DeferCallbackError) Error() string {
	return fmt.Sprintf("%s defer callback failed: %v", e.Scope, e.Cause)
}

func (e *DeferCallbackError) Unwrap() error { return e.Cause }
