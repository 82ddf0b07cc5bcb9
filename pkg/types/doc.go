/*
Package types defines the core data structures shared across the deferred
and background task runtime.

This package has no behavior of its own — it is the vocabulary that every
other package (capture, workerscript, statusstore, spawner, monitor,
joiner, pool, deferstack) imports so that a Task and its TaskStatus mean
the same thing regardless of which process is looking at them.

# Core types

  - TaskID: opaque, host-unique identifier for one background task.
  - CallableKind: the tagged variant identifying how a callback was
    captured (named function, static method, bound method, closure,
    invokable object).
  - TaskStatus: the persisted, cross-process record that is the single
    source of truth for a task's lifecycle.
  - LazyTask: a captured but not-yet-spawned task handle, valid only in
    the process that created it.
  - DeferCallback: a function registered against one of the defer
    scopes, carrying the always/force_background flags relevant to the
    post-response scope.

None of these types touch the filesystem, a clock, or the process table;
those concerns live in statusstore, clock, and spawner respectively, so
this package can be imported everywhere without pulling in I/O.
*/
package types
