package types

import "time"

// TaskID identifies one background task, unique across the host for a
// reasonable window. Parent-assigned tasks use the
// "defer_YYYYMMDD_HHMMSS_<hex>" form; lazy handles use "lazy_<n>"; tasks
// that failed to spawn at all use "failed_<key>_<unix-seconds>".
type TaskID string

// CallableKind tags how a callback was captured, in descending priority
// order of the serializer that matched it.
type CallableKind string

const (
	CallableNamed     CallableKind = "named"     // free function, resolved by registry name
	CallableStatic    CallableKind = "static"    // static/package-level method, (type, method) pair
	CallableBound     CallableKind = "bound"     // instance method, receiver graph serialized
	CallableClosure   CallableKind = "closure"   // closure, captured variables serialized
	CallableInvokable CallableKind = "invokable" // object with an Invoke op, graph serialized
)

// Status is the lifecycle state of a task. PENDING/RUNNING/COMPLETED/
// ERROR/SPAWN_ERROR are written by the parent or the worker; the
// remaining values are synthetic, produced only by readers.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusRunning     Status = "RUNNING"
	StatusCompleted   Status = "COMPLETED"
	StatusError       Status = "ERROR"
	StatusSpawnError  Status = "SPAWN_ERROR"
	StatusNotFound    Status = "NOT_FOUND"    // synthetic: no status file on disk
	StatusCorrupted   Status = "CORRUPTED"    // synthetic: status file present but unparseable
	StatusLazyPending Status = "LAZY_PENDING" // synthetic: lazy handle never expanded
)

// Terminal reports whether status is one of the absorbing states a task
// cannot transition out of.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusSpawnError:
		return true
	default:
		return false
	}
}

// Synthetic reports whether status is produced only by a reader and is
// never written to a status file.
func (s Status) Synthetic() bool {
	switch s {
	case StatusNotFound, StatusCorrupted, StatusLazyPending:
		return true
	default:
		return false
	}
}

// Context is the key/value payload handed alongside a callback. The
// default capture strategy emits a literal, re-creatable form of this
// map; values must be safe to marshal to JSON.
type Context map[string]any

// Size returns the context_size recorded on a task's status — the
// number of top-level keys, not a byte count.
func (c Context) Size() int {
	return len(c)
}

// TaskStatus is the persisted, cross-process record for one task. It is
// the single source of truth: a worker writes it, monitors and joiners
// only ever read it.
type TaskStatus struct {
	TaskID  TaskID `yaml:"task_id"`
	Status  Status `yaml:"status"`
	Message string `yaml:"message,omitempty"`

	Timestamp float64 `yaml:"timestamp"` // seconds since epoch, last update
	Duration  float64 `yaml:"duration,omitempty"`

	MemoryUsage int64 `yaml:"memory_usage,omitempty"`
	MemoryPeak  int64 `yaml:"memory_peak,omitempty"`
	PID         int   `yaml:"pid,omitempty"`

	CreatedAt string `yaml:"created_at"`
	UpdatedAt string `yaml:"updated_at"`

	CallbackType CallableKind `yaml:"callback_type,omitempty"`
	ContextSize  int          `yaml:"context_size,omitempty"`

	Result          any    `yaml:"result,omitempty"`
	ResultType      string `yaml:"result_type,omitempty"`
	ResultTruncated bool   `yaml:"result_truncated,omitempty"`

	// UnverifiedClosure is set when the reflection-based fallback closure
	// serializer produced this task's callback.
	UnverifiedClosure bool `yaml:"unverified_closure,omitempty"`

	Output string `yaml:"output,omitempty"`

	ErrorMessage string `yaml:"error_message,omitempty"`
	ErrorFile    string `yaml:"error_file,omitempty"`
	ErrorLine    int    `yaml:"error_line,omitempty"`
	ErrorCode    string `yaml:"error_code,omitempty"`
	StackTrace   string `yaml:"stack_trace,omitempty"`

	// Timeout is set by Monitor when it gives up waiting; it is never
	// written by a worker.
	Timeout bool `yaml:"timeout,omitempty"`
}

// OutputTruncateLimit is the point above which captured worker output is
// truncated before being written to the status record.
const OutputTruncateLimit = 1000

// Callable is the sum type a captured callback resolves to. Exactly one
// field is meaningful, selected by Kind.
type Callable struct {
	Kind CallableKind

	// Name is the registry key for CallableNamed, or the combined
	// "Type.Method" key for CallableStatic and CallableBound.
	Name string

	// ReceiverState is the JSON-serialized receiver (CallableBound,
	// CallableInvokable) or captured-variable set (CallableClosure).
	ReceiverState []byte

	// Unverified marks a callback produced by the reflection-based
	// fallback closure serializer (the lowest-priority capture strategy).
	Unverified bool
}

// LazyTask is a captured-but-not-yet-spawned task handle. It exists only
// in the memory of the process that created it; expansion spawns it
// exactly once and every subsequent expansion returns the same real
// TaskID. The executed/RealTaskID fields are mutated under the owning
// LazyTaskTable's lock, never read or written directly.
type LazyTask struct {
	ID       TaskID
	Callback Callable
	Context  Context

	Executed   bool
	RealTaskID TaskID
}

// DeferCallback is a function registered against one of the defer
// scopes. Always and ForceBackground are meaningful only for the
// post-response scope.
type DeferCallback struct {
	Callback        func()
	Always          bool
	ForceBackground bool
	RegisteredAt    time.Time
}
