// Package deferstack implements three defer scopes: function, global,
// and post-response. Each is a bounded deque guarded by its own mutex —
// plain data plus a lock, no goroutine of its own except where the
// scope's lifecycle demands one (the global stack's signal-driven
// flush, started by WatchGlobalStack).
package deferstack

import (
	"sync"

	"github.com/cuemby/deferrun/pkg/core"
	"github.com/cuemby/deferrun/pkg/hooks"
	"github.com/cuemby/deferrun/pkg/log"
	"github.com/cuemby/deferrun/pkg/types"
)

// GlobalStackMax and PostResponseStackMax bound the two deque sizes;
// both scopes drop the oldest entry (FIFO eviction) on overflow.
const (
	GlobalStackMax       = 100
	PostResponseStackMax = 50
)

// FunctionStack is an explicit-scope LIFO stack: NewFunctionStack opens
// the scope and Release runs every registered callback in reverse
// registration order, including when the caller is unwinding from an
// error (the caller is expected to `defer s.Release()`).
type FunctionStack struct {
	mu        sync.Mutex
	callbacks []func()
}

// NewFunctionStack returns an empty FunctionStack.
func NewFunctionStack() *FunctionStack {
	return &FunctionStack{}
}

// Defer registers fn to run when Release is called.
func (s *FunctionStack) Defer(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks = append(s.callbacks, fn)
}

// Release runs every registered callback in reverse order, logging and
// continuing past any panic: per-callback failures are contained, not
// propagated.
func (s *FunctionStack) Release() {
	s.mu.Lock()
	callbacks := s.callbacks
	s.callbacks = nil
	s.mu.Unlock()

	for i := len(callbacks) - 1; i >= 0; i-- {
		runContained("function", callbacks[i])
	}
}

// GlobalStack runs its callbacks once, in reverse-registration order,
// when Flush is called (explicitly, or by the WatchGlobalStack signal
// handler). Nothing calls Flush on a normal process exit, so callbacks
// still queued then do not run. Bounded to GlobalStackMax; registering
// past the bound drops the oldest entry.
type GlobalStack struct {
	mu        sync.Mutex
	callbacks []func()
}

// NewGlobalStack returns an empty GlobalStack.
func NewGlobalStack() *GlobalStack {
	return &GlobalStack{}
}

// Defer registers fn, evicting the oldest registration if the stack is
// already at GlobalStackMax.
func (s *GlobalStack) Defer(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.callbacks) >= GlobalStackMax {
		s.callbacks = s.callbacks[1:]
	}
	s.callbacks = append(s.callbacks, fn)
}

// Flush runs every registered callback in reverse order and clears the
// stack. Safe to call more than once; a second call is a no-op.
func (s *GlobalStack) Flush() {
	s.mu.Lock()
	callbacks := s.callbacks
	s.callbacks = nil
	s.mu.Unlock()

	for i := len(callbacks) - 1; i >= 0; i-- {
		runContained("global", callbacks[i])
	}
}

// Len reports how many callbacks are currently queued.
func (s *GlobalStack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.callbacks)
}

// postResponseEntry pairs a callback with the always flag a
// post-response registration carries.
type postResponseEntry struct {
	callback types.DeferCallback
}

// PostResponseStack runs its callbacks once, in registration order
// (FIFO), after the host reports the response has been delivered.
// Bounded to PostResponseStackMax with FIFO eviction on overflow. A
// callback registered with ForceBackground escapes to the background
// subsystem (via core.Core) instead of running in-process.
type PostResponseStack struct {
	mu       sync.Mutex
	entries  []postResponseEntry
	hook     hooks.PostResponseHook
	hooked   bool
	runtime  core.Core
}

// NewPostResponseStack returns an empty PostResponseStack that will
// register itself with hook the first time a callback is added, via a
// single post-response hook registration shared by every subsequent
// Defer call.
func NewPostResponseStack(hook hooks.PostResponseHook, runtime core.Core) *PostResponseStack {
	return &PostResponseStack{hook: hook, runtime: runtime}
}

// Defer registers fn for post-response execution. When always is false,
// fn only runs if the host's eventual response status is < 400.
func (s *PostResponseStack) Defer(fn func(), always bool) error {
	s.mu.Lock()
	if len(s.entries) >= PostResponseStackMax {
		s.entries = s.entries[1:]
	}
	s.entries = append(s.entries, postResponseEntry{callback: types.DeferCallback{Callback: fn, Always: always}})
	needsHook := !s.hooked
	if needsHook {
		s.hooked = true
	}
	s.mu.Unlock()

	if needsHook && s.hook != nil {
		return s.hook.Register(func() { s.flush(0) })
	}
	return nil
}

// DeferBackground escapes the post-response path into the background
// subsystem (the force_background variant): callable/ctx must already
// be a capturable Callable (obtained via pkg/capture), since a
// raw func() cannot be serialized across the process boundary a worker
// requires. Returns the spawned TaskID immediately rather than queuing.
func (s *PostResponseStack) DeferBackground(callable types.Callable, ctx types.Context) (types.TaskID, error) {
	return s.runtime.Spawn(callable, ctx)
}

// Run executes every queued callback in FIFO order given the response's
// final HTTP status, applying the always-flag rule. It is what a host's
// PostResponseHook implementation calls once the response
// is flushed; Defer's own hook registration calls Run indirectly via
// flush when no explicit status is known (treated as success).
func (s *PostResponseStack) Run(statusCode int) {
	s.flush(statusCode)
}

func (s *PostResponseStack) flush(statusCode int) {
	s.mu.Lock()
	entries := s.entries
	s.entries = nil
	s.mu.Unlock()

	success := statusCode == 0 || statusCode < 400
	for _, e := range entries {
		if !success && !e.callback.Always {
			continue
		}
		runContained("post-response", e.callback.Callback)
	}
}

// runContained runs fn, converting a panic into a logged, contained
// failure rather than letting it propagate: logged, loop continues.
func runContained(scope string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.WithComponent("deferstack").Error().Interface("recover", r).Str("scope", scope).Msg("defer callback panicked")
		}
	}()
	fn()
}
