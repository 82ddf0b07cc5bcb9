package deferrun

import (
	"os"
	"testing"
	"time"

	"github.com/cuemby/deferrun/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMain pins the process-wide config singleton to a scratch
// directory before any test constructs the facade, since config.Default
// and instanceFor are both sync.Once singletons that can only be primed
// once per test binary.
func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "deferrun-facade-test")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)

	os.Setenv("DEFERRUN_TEMP_DIRECTORY", dir)
	os.Exit(m.Run())
}

func TestBackgroundRefusesFromWithinWorker(t *testing.T) {
	t.Setenv("BACKGROUND_PROCESS", "1")

	taskID, err := Background(types.Callable{Kind: types.CallableNamed, Name: "greet"}, nil)
	require.Error(t, err)
	require.NotEmpty(t, taskID)

	status, err := Status(taskID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusSpawnError, status.Status)
}

func TestStatusUnknownTaskIsSyntheticNotFound(t *testing.T) {
	status, err := Status(types.TaskID("never-existed"))
	require.NoError(t, err)
	assert.Equal(t, types.StatusNotFound, status.Status)
}

func TestLazyIssuesAHandleWithoutSpawning(t *testing.T) {
	handle := Lazy(types.Callable{Kind: types.CallableNamed, Name: "greet"}, nil)
	require.NotNil(t, handle)
	assert.Contains(t, string(handle.ID), "lazy_")
}

func TestDeferAndFlushGlobalRunsInLIFOOrder(t *testing.T) {
	var order []int
	Defer(func() { order = append(order, 1) })
	Defer(func() { order = append(order, 2) })

	FlushGlobal()
	assert.Equal(t, []int{2, 1}, order)
}

func TestNewFunctionScopeIsIndependentOfFacadeRuntime(t *testing.T) {
	scope := NewFunctionScope()
	var ran bool
	scope.Defer(func() { ran = true })
	scope.Release()
	assert.True(t, ran)
}

func TestCleanupReturnsNoErrorWhenNothingToClean(t *testing.T) {
	removed, err := Cleanup(time.Hour)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, removed, 0)
}
