/*
Package history archives terminal task statuses in a bbolt database so
they remain queryable after the live status file has been removed by
the status store's cleanup sweep.

This is a supplementary record, not the source of truth: while a task
is pending or running, its status file on disk is authoritative and
history is never consulted. Only the runtime's cleanup sweep
(runtime.Runtime.Cleanup) writes here, just before the status store
removes the terminal statuses (types.Status.Terminal()) it archives.

BoltStore is the sole implementation, one "tasks" bucket keyed by
TaskID with JSON-encoded values. cmd/deferctl's "history" subcommand
reads through this package.
*/
package history
