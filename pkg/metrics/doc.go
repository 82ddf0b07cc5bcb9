/*
Package metrics defines and registers deferrun's Prometheus metrics and
exposes them over HTTP for scraping.

Metrics:

  - deferrun_tasks_total{status}: current task count per status, refreshed
    periodically by Collector from the status store.
  - deferrun_task_duration_seconds: histogram of spawn-to-terminal latency.
  - deferrun_spawn_errors_total, deferrun_serialization_errors_total:
    counters for the two failure modes that abort a task before it runs.
  - deferrun_pool_active, deferrun_pool_queued: live gauges from pkg/pool.
  - deferrun_cleanup_runs_total, deferrun_cleanup_removed_total: counters
    from the status store's cleanup sweep.

Handler() serves the standard Prometheus exposition format. cmd/deferctl
serve-metrics mounts it at /metrics and HealthHandler at /health;
ReadyHandler and LivenessHandler are not mounted there.
*/
package metrics
