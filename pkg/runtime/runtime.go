// Package runtime wires pkg/statusstore, pkg/spawner, pkg/workerscript,
// pkg/registry, and pkg/history together into the core.Core narrow
// interface. It is the only package that knows about all of them at
// once; deferstack, pool, and joiner depend solely on core.Core.
package runtime

import (
	"fmt"
	"time"

	"github.com/cuemby/deferrun/pkg/clock"
	"github.com/cuemby/deferrun/pkg/config"
	"github.com/cuemby/deferrun/pkg/history"
	"github.com/cuemby/deferrun/pkg/log"
	"github.com/cuemby/deferrun/pkg/metrics"
	"github.com/cuemby/deferrun/pkg/registry"
	"github.com/cuemby/deferrun/pkg/spawner"
	"github.com/cuemby/deferrun/pkg/statusstore"
	"github.com/cuemby/deferrun/pkg/taskerr"
	"github.com/cuemby/deferrun/pkg/types"
	"github.com/cuemby/deferrun/pkg/workerscript"
	"github.com/google/uuid"
)

// Runtime is the default core.Core implementation: background tasks
// spawned as detached child processes tracked through the filesystem.
type Runtime struct {
	cfg     *config.Config
	store   *statusstore.Store
	spawn   *spawner.Spawner
	tasks   *registry.TaskRegistry
	archive history.Store
	clk     clock.Clock
}

// New assembles a Runtime from cfg, opening the status store under
// cfg.TempDirectory; the history archive is opened by the caller and
// passed in. archive may be nil to run without a
// history archive (terminal tasks become unreadable once cleaned up).
func New(cfg *config.Config, archive history.Store, clk clock.Clock) (*Runtime, error) {
	store, err := statusstore.New(cfg.StatusDir(), clk)
	if err != nil {
		return nil, fmt.Errorf("runtime: open status store: %w", err)
	}

	return &Runtime{
		cfg:     cfg,
		store:   store,
		spawn:   spawner.New(),
		tasks:   registry.New(),
		archive: archive,
		clk:     clk,
	}, nil
}

// Close releases the underlying status store's watchers.
func (r *Runtime) Close() error {
	return r.store.Close()
}

// nextTaskID mints a "defer_YYYYMMDD_HHMMSS_<hex>" id.
func (r *Runtime) nextTaskID() types.TaskID {
	now := r.clk.Now()
	return types.TaskID(fmt.Sprintf("defer_%s_%s", now.Format("20060102_150405"), uuid.New().String()[:8]))
}

// Spawn implements core.Core: capture is already done by the caller
// (callback is a types.Callable), Spawn materializes the worker source,
// registers PENDING status, and launches the detached child.
func (r *Runtime) Spawn(callback types.Callable, ctx types.Context) (types.TaskID, error) {
	taskID := r.nextTaskID()
	logger := log.WithComponent("runtime").With().Str("task_id", string(taskID)).Logger()

	if _, err := r.store.CreateInitial(taskID, callback.Kind, len(ctx)); err != nil {
		return "", fmt.Errorf("runtime: write initial status for %s: %w", taskID, err)
	}
	r.tasks.Register(taskID, callback.Kind, len(ctx))

	scriptPath, err := workerscript.Generate(r.cfg.ScriptsDir(), taskID, callback, ctx)
	if err != nil {
		spawnErr := &taskerr.SpawnError{TaskID: taskID, Cause: err}
		r.recordSpawnError(taskID, spawnErr)
		return taskID, spawnErr
	}

	if err := r.spawn.Spawn(taskID, scriptPath); err != nil {
		r.recordSpawnError(taskID, err)
		return taskID, err
	}

	metrics.TasksTotal.WithLabelValues(string(types.StatusPending)).Inc()
	logger.Info().Msg("task spawned")
	return taskID, nil
}

func (r *Runtime) recordSpawnError(taskID types.TaskID, err error) {
	_ = r.store.Update(taskID, types.StatusSpawnError, err.Error(), nil)
	metrics.SpawnErrorsTotal.Inc()
	log.WithComponent("runtime").Error().Str("task_id", string(taskID)).Err(err).Msg("spawn failed")
}

// Status implements core.Core. If the live status file is gone and an
// archive is configured, it is consulted as a fallback for tasks whose
// record has already been cleaned up.
func (r *Runtime) Status(taskID types.TaskID) (*types.TaskStatus, error) {
	status, err := r.store.Read(taskID)
	if err != nil {
		return nil, err
	}
	if status.Status == types.StatusNotFound && r.archive != nil {
		if archived, err := r.archive.Get(taskID); err == nil {
			return archived, nil
		}
	}
	return status, nil
}

// List implements core.Core.
func (r *Runtime) List() ([]*types.TaskStatus, error) {
	return r.store.List()
}

// Cleanup implements core.Core: removes terminal status files and
// orphaned worker scripts, archiving each removed terminal record first
// when a history store is configured.
func (r *Runtime) Cleanup(maxAge time.Duration) (int, error) {
	if r.archive != nil {
		statuses, err := r.store.List()
		if err == nil {
			cutoff := r.clk.Now().Add(-maxAge)
			for _, st := range statuses {
				if st.Status.Terminal() && time.Unix(int64(st.Timestamp), 0).Before(cutoff) {
					_ = r.archive.Put(st)
				}
			}
		}
	}

	removed, err := r.store.Cleanup(maxAge, r.cfg.ScriptsDir())
	if err != nil {
		return 0, err
	}
	metrics.CleanupRunsTotal.Inc()
	metrics.CleanupRemovedTotal.Add(float64(removed))
	return removed, nil
}
