package runtime

import (
	"testing"
	"time"

	"github.com/cuemby/deferrun/pkg/clock"
	"github.com/cuemby/deferrun/pkg/config"
	"github.com/cuemby/deferrun/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	cfg := config.Defaults()
	cfg.TempDirectory = t.TempDir()
	rt, err := New(cfg, nil, clock.Default)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestNextTaskIDMatchesExpectedFormat(t *testing.T) {
	rt := newTestRuntime(t)
	id := rt.nextTaskID()
	assert.Regexp(t, `^defer_\d{8}_\d{6}_[0-9a-f]{8}$`, string(id))
}

func TestNextTaskIDIsUniquePerCall(t *testing.T) {
	rt := newTestRuntime(t)
	a := rt.nextTaskID()
	b := rt.nextTaskID()
	assert.NotEqual(t, a, b)
}

// TestSpawnRecordsSpawnErrorOnRefusal exercises the fork-bomb guard path:
// with BACKGROUND_PROCESS=1 set (as the worker template sets it on
// itself), spawner.Spawn refuses immediately and Spawn must leave behind
// a SPAWN_ERROR status record rather than a dangling PENDING one.
func TestSpawnRecordsSpawnErrorOnRefusal(t *testing.T) {
	t.Setenv("BACKGROUND_PROCESS", "1")
	rt := newTestRuntime(t)

	taskID, err := rt.Spawn(types.Callable{Kind: types.CallableNamed, Name: "greet"}, types.Context{"name": "world"})
	require.Error(t, err)
	require.NotEmpty(t, taskID)

	status, readErr := rt.store.Read(taskID)
	require.NoError(t, readErr)
	assert.Equal(t, types.StatusSpawnError, status.Status)
}

func TestStatusDelegatesToStatusStore(t *testing.T) {
	rt := newTestRuntime(t)
	taskID := types.TaskID("defer_test_1")
	_, err := rt.store.CreateInitial(taskID, types.CallableNamed, 0)
	require.NoError(t, err)

	status, err := rt.Status(taskID)
	require.NoError(t, err)
	assert.Equal(t, taskID, status.TaskID)
	assert.Equal(t, types.StatusPending, status.Status)
}

func TestStatusUnknownTaskIsSyntheticNotFound(t *testing.T) {
	rt := newTestRuntime(t)
	status, err := rt.Status(types.TaskID("nope"))
	require.NoError(t, err)
	assert.Equal(t, types.StatusNotFound, status.Status)
}

func TestListReturnsAllKnownTasks(t *testing.T) {
	rt := newTestRuntime(t)
	_, err := rt.store.CreateInitial(types.TaskID("defer_a"), types.CallableNamed, 0)
	require.NoError(t, err)
	_, err = rt.store.CreateInitial(types.TaskID("defer_b"), types.CallableNamed, 0)
	require.NoError(t, err)

	statuses, err := rt.List()
	require.NoError(t, err)
	assert.Len(t, statuses, 2)
}

func TestCleanupRemovesOldTerminalTasks(t *testing.T) {
	rt := newTestRuntime(t)
	taskID := types.TaskID("defer_old")
	_, err := rt.store.CreateInitial(taskID, types.CallableNamed, 0)
	require.NoError(t, err)
	require.NoError(t, rt.store.Update(taskID, types.StatusCompleted, "done", nil))

	removed, err := rt.Cleanup(0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	status, err := rt.Status(taskID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusNotFound, status.Status)
}

func TestCleanupLeavesPendingTasksAlone(t *testing.T) {
	rt := newTestRuntime(t)
	taskID := types.TaskID("defer_live")
	_, err := rt.store.CreateInitial(taskID, types.CallableNamed, 0)
	require.NoError(t, err)

	removed, err := rt.Cleanup(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}
