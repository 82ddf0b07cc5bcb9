/*
Package events is an in-memory pub/sub broker. pkg/statusstore
publishes a task's status-file transitions here; nothing in this module
subscribes to it, and Store.Watch notifications come from the store's
own file watcher, not from this broker.

Publish is non-blocking: a full subscriber buffer drops that event for
that subscriber rather than stalling the watcher goroutine that
observed the change on disk. This is a convenience layer over the
status file, never the source of truth — a missed event just means a
watcher catches up on its next poll or fsnotify tick.
*/
package events
