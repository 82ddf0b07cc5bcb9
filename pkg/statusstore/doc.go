/*
Package statusstore implements a filesystem-backed status channel:
one "<taskId>.status" YAML file per task under a configured directory,
written atomically (temp file + rename) so readers never observe a
half-written record.

Store is the sole exported type. CreateInitial/Update are called only
by the process that owns a task (the parent at registration, the worker
thereafter); Read/List/Watch are safe for any number of concurrent
readers. Watch is backed by one of two notifier implementations chosen
at construction — fsnotify when available, stat-polling otherwise —
and both honor the same ~100ms debounce contract.
*/
package statusstore
