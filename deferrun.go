// Package deferrun is a convenience top-level facade: a lazily-
// constructed, process-wide instance wrapping pkg/runtime,
// pkg/deferstack, pkg/lazytask, and pkg/joiner for call sites that don't
// need an explicit context object. Every exported function here is a
// thin wrapper over the narrow core.Core interface or one of the stack
// types; nothing here carries logic of its own.
//
// Applications that want explicit dependency injection (tests, or a
// host that manages multiple isolated runtimes) should construct
// pkg/runtime.Runtime, pkg/deferstack, and pkg/joiner directly instead
// of using this package.
package deferrun

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuemby/deferrun/pkg/clock"
	"github.com/cuemby/deferrun/pkg/config"
	"github.com/cuemby/deferrun/pkg/core"
	"github.com/cuemby/deferrun/pkg/deferstack"
	"github.com/cuemby/deferrun/pkg/history"
	"github.com/cuemby/deferrun/pkg/hooks"
	"github.com/cuemby/deferrun/pkg/joiner"
	"github.com/cuemby/deferrun/pkg/lazytask"
	"github.com/cuemby/deferrun/pkg/log"
	"github.com/cuemby/deferrun/pkg/monitor"
	"github.com/cuemby/deferrun/pkg/runtime"
	"github.com/cuemby/deferrun/pkg/types"
)

var (
	instanceOnce sync.Once
	instance     *facade
)

// facade bundles the pieces the package-level functions delegate to.
type facade struct {
	core      core.Core
	lazy      *lazytask.LazyTaskTable
	global    *deferstack.GlobalStack
	cancelSig func()
}

func expand(rt core.Core) lazytask.Expander {
	return func(callback types.Callable, ctx types.Context) (types.TaskID, error) {
		return rt.Spawn(callback, ctx)
	}
}

// instanceFor lazily builds the process-wide facade on first use,
// mirroring config.Default()'s sync.Once singleton.
func instanceFor() *facade {
	instanceOnce.Do(func() {
		cfg := config.Default()

		if cfg.Logging.Enabled {
			log.Init(log.Config{
				Level:    log.Level(cfg.Logging.Level),
				FilePath: filepath.Join(cfg.Logging.Directory, "background_tasks.log"),
			})
		}

		var archive history.Store
		if cfg.History.Enabled {
			store, err := history.NewBoltStore(cfg.History.Directory)
			if err != nil {
				log.WithComponent("deferrun").Warn().Err(err).Msg("history archive unavailable, continuing without it")
			} else {
				archive = store
			}
		}

		rt, err := runtime.New(cfg, archive, clock.Default)
		if err != nil {
			log.WithComponent("deferrun").Fatal().Err(err).Msg("failed to initialize background task runtime")
		}

		global := deferstack.NewGlobalStack()
		cancel := deferstack.WatchGlobalStack(deferstack.OSSignalHook{}, global)

		instance = &facade{
			core:      rt,
			lazy:      lazytask.New(),
			global:    global,
			cancelSig: cancel,
		}
	})
	return instance
}

// Background spawns callback as a detached worker process and returns
// immediately with its TaskID. callback must already be captured (see
// pkg/capture) since Go cannot serialize an arbitrary closure across
// the process boundary a background worker requires.
func Background(callback types.Callable, ctx types.Context) (types.TaskID, error) {
	return instanceFor().core.Spawn(callback, ctx)
}

// Lazy registers callback for deferred spawning: nothing is launched
// until the returned handle's TaskID is resolved through All/AllSettled
// or Await. See pkg/lazytask for the at-most-once expansion guarantee.
func Lazy(callback types.Callable, ctx types.Context) *types.LazyTask {
	return instanceFor().lazy.Create(callback, ctx)
}

// Status reads a task's current status record, or a synthetic NOT_FOUND
// if no such task exists.
func Status(taskID types.TaskID) (*types.TaskStatus, error) {
	return instanceFor().core.Status(taskID)
}

// List returns every task status currently on disk.
func List() ([]*types.TaskStatus, error) {
	return instanceFor().core.List()
}

// Cleanup removes terminal status records (and orphaned worker scripts)
// older than maxAge, archiving them first if history is enabled.
func Cleanup(maxAge time.Duration) (int, error) {
	return instanceFor().core.Cleanup(maxAge)
}

// Await blocks until taskID reaches a terminal state (expanding it
// first if it is a lazy handle), returning its result or a typed error
// from the runtime's typed error taxonomy.
func Await(ctx context.Context, taskID types.TaskID, timeout time.Duration) (any, error) {
	f := instanceFor()
	return monitor.Await(ctx, statusReader{f.core}, f.lazy, expand(f.core), taskID, timeout)
}

// statusReader adapts core.Core's Status method to monitor.Reader's
// Read method name.
type statusReader struct {
	core core.Core
}

func (r statusReader) Read(taskID types.TaskID) (*types.TaskStatus, error) {
	return r.core.Status(taskID)
}

// joinerFor builds a Joiner against the process-wide runtime, unbounded
// (pool mode only activates when a caller explicitly needs it via
// pkg/joiner directly).
func joinerFor() *joiner.Joiner {
	f := instanceFor()
	return joiner.New(f.core, f.lazy, 0, monitor.DefaultPollInterval)
}

// All waits for every item to complete, returning on the first failure.
// See pkg/joiner for the TaskID/Lazy/Callable item shapes.
func All(ctx context.Context, items map[string]joiner.Item, timeout time.Duration, sink monitor.OutputSink) (map[string]any, error) {
	return joinerFor().All(ctx, items, timeout, sink)
}

// AllSettled waits for every item to reach a terminal state or timeout,
// never failing fast; each result reports whether it fulfilled.
func AllSettled(ctx context.Context, items map[string]joiner.Item, timeout time.Duration, sink monitor.OutputSink) (map[string]joiner.Settled, error) {
	return joinerFor().AllSettled(ctx, items, timeout, sink)
}

// Defer registers fn on the process-global defer stack: it runs when
// FlushGlobal is called or on receipt of an interrupt/termination
// signal, whichever comes first. A normal process exit does not run it
// on its own. Panics inside fn are contained and logged.
func Defer(fn func()) {
	instanceFor().global.Defer(fn)
}

// FlushGlobal runs every callback registered via Defer, in LIFO order.
// Safe to call more than once; later calls are no-ops.
func FlushGlobal() {
	instanceFor().global.Flush()
}

// NewFunctionScope returns a fresh function-scoped defer stack: callers
// Defer into it and Release it when the enclosing call returns, the way
// a language-level defer statement would, but explicit since Go already
// has its own defer keyword for the common case.
func NewFunctionScope() *deferstack.FunctionStack {
	return deferstack.NewFunctionStack()
}

// NewRequestScope returns a post-response defer stack bound to the
// process-wide runtime (for its DeferBackground escape hatch) and to
// hook, the host's post-response registrar.
func NewRequestScope(hook hooks.PostResponseHook) *deferstack.PostResponseStack {
	return deferstack.NewPostResponseStack(hook, instanceFor().core)
}

// StopSignalWatch cancels the facade's signal-triggered global-stack
// flush, leaving the global stack itself intact. Tests that rebuild the
// facade repeatedly should call this to avoid accumulating signal
// handlers; long-running hosts normally never need it.
func StopSignalWatch() {
	if f := instanceFor(); f.cancelSig != nil {
		f.cancelSig()
	}
}
