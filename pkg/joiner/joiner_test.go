package joiner

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/deferrun/pkg/lazytask"
	"github.com/cuemby/deferrun/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedCore struct {
	mu      sync.Mutex
	counter int
	byTask  map[types.TaskID]*types.TaskStatus
}

func newScriptedCore() *scriptedCore {
	return &scriptedCore{byTask: make(map[types.TaskID]*types.TaskStatus)}
}

func (s *scriptedCore) Spawn(c types.Callable, ctx types.Context) (types.TaskID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	id := types.TaskID(fmt.Sprintf("defer_%d", s.counter))
	s.byTask[id] = &types.TaskStatus{TaskID: id, Status: types.StatusCompleted, Result: c.Name}
	return id, nil
}

func (s *scriptedCore) Status(id types.TaskID) (*types.TaskStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.byTask[id]; ok {
		return st, nil
	}
	return &types.TaskStatus{TaskID: id, Status: types.StatusNotFound}, nil
}

func (s *scriptedCore) List() ([]*types.TaskStatus, error)      { return nil, nil }
func (s *scriptedCore) Cleanup(time.Duration) (int, error)      { return 0, nil }
func (s *scriptedCore) setStatus(id types.TaskID, st *types.TaskStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byTask[id] = st
}

func TestAllPreservesKeysAndValues(t *testing.T) {
	rt := newScriptedCore()
	j := New(rt, lazytask.New(), 0, 5*time.Millisecond)

	items := map[string]Item{
		"a": {Kind: ItemCallable, Callback: types.Callable{Kind: types.CallableNamed, Name: "A"}},
		"b": {Kind: ItemCallable, Callback: types.Callable{Kind: types.CallableNamed, Name: "B"}},
	}

	results, err := j.All(context.Background(), items, time.Second, nil)
	require.NoError(t, err)
	assert.Equal(t, "A", results["a"])
	assert.Equal(t, "B", results["b"])
}

func TestAllFailsFastOnError(t *testing.T) {
	rt := newScriptedCore()
	rt.Spawn(types.Callable{Name: "ok-seed"}, nil) // defer_1
	rt.setStatus("defer_1", &types.TaskStatus{TaskID: "defer_1", Status: types.StatusError, ErrorMessage: "boom"})

	j := New(rt, lazytask.New(), 0, 5*time.Millisecond)
	_, err := j.All(context.Background(), map[string]Item{"bad": {Kind: ItemTaskID, TaskID: "defer_1"}}, time.Second, nil)

	require.Error(t, err)
	assert.ErrorContains(t, err, "bad")
	assert.ErrorContains(t, err, "boom")
}

func TestAllSettledNeverFails(t *testing.T) {
	rt := newScriptedCore()
	rt.Spawn(types.Callable{Name: "ok"}, nil)               // defer_1 -> completed "ok"
	rt.setStatus("defer_2", &types.TaskStatus{TaskID: "defer_2", Status: types.StatusError, ErrorMessage: "boom"})

	j := New(rt, lazytask.New(), 0, 5*time.Millisecond)
	items := map[string]Item{
		"ok":  {Kind: ItemTaskID, TaskID: "defer_1"},
		"bad": {Kind: ItemTaskID, TaskID: "defer_2"},
	}

	results, err := j.AllSettled(context.Background(), items, time.Second, nil)
	require.NoError(t, err)

	assert.True(t, results["ok"].Fulfilled)
	assert.Equal(t, "ok", results["ok"].Value)
	assert.False(t, results["bad"].Fulfilled)
	assert.Equal(t, "boom", results["bad"].Reason)
}

func TestAllSettledExactlyOneOfValueOrReason(t *testing.T) {
	rt := newScriptedCore()
	rt.Spawn(types.Callable{Name: "ok"}, nil)
	rt.setStatus("defer_2", &types.TaskStatus{TaskID: "defer_2", Status: types.StatusNotFound})

	j := New(rt, lazytask.New(), 0, 5*time.Millisecond)
	items := map[string]Item{
		"ok":      {Kind: ItemTaskID, TaskID: "defer_1"},
		"missing": {Kind: ItemTaskID, TaskID: "defer_2"},
	}

	results, err := j.AllSettled(context.Background(), items, time.Second, nil)
	require.NoError(t, err)

	for _, settled := range results {
		hasValue := settled.Value != nil
		hasReason := settled.Reason != ""
		assert.True(t, hasValue != hasReason, "exactly one of value/reason must be present")
	}
}

func TestResolveRejectsMixedTaskIDAndPoolableUnderConcurrencyCap(t *testing.T) {
	rt := newScriptedCore()
	j := New(rt, lazytask.New(), 2, 5*time.Millisecond)

	items := map[string]Item{
		"existing": {Kind: ItemTaskID, TaskID: "defer_1"},
		"fresh":    {Kind: ItemCallable, Callback: types.Callable{Kind: types.CallableNamed, Name: "f"}},
	}

	_, err := j.All(context.Background(), items, time.Second, nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "mixing")
}

func TestLazyExpandedOnce(t *testing.T) {
	rt := newScriptedCore()
	table := lazytask.New()
	lazy := table.Create(types.Callable{Kind: types.CallableNamed, Name: "L"}, nil)

	j := New(rt, table, 0, 5*time.Millisecond)
	items := map[string]Item{
		"a": {Kind: ItemLazy, LazyID: lazy.ID},
		"b": {Kind: ItemLazy, LazyID: lazy.ID},
	}

	results, err := j.All(context.Background(), items, time.Second, nil)
	require.NoError(t, err)
	assert.Equal(t, results["a"], results["b"], "both keys referencing the same lazy task must resolve to one spawn")
	assert.Equal(t, 1, rt.counter, "the lazy task must be spawned exactly once")
}
