package pool

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cuemby/deferrun/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCore simulates spawned tasks completing after a fixed number of
// Status polls, so pool.Run's drain/poll loop has real work to do.
type fakeCore struct {
	mu           sync.Mutex
	pollsToDone  int
	polls        map[types.TaskID]int
	spawnCount   atomic.Int64
	activeAtPeak atomic.Int64
	currentlyUp  atomic.Int64
}

func newFakeCore(pollsToDone int) *fakeCore {
	return &fakeCore{pollsToDone: pollsToDone, polls: make(map[types.TaskID]int)}
}

func (f *fakeCore) Spawn(types.Callable, types.Context) (types.TaskID, error) {
	n := f.spawnCount.Add(1)
	up := f.currentlyUp.Add(1)
	for {
		peak := f.activeAtPeak.Load()
		if up <= peak || f.activeAtPeak.CompareAndSwap(peak, up) {
			break
		}
	}
	return types.TaskID(fmt.Sprintf("task_%d", n)), nil
}

func (f *fakeCore) Status(taskID types.TaskID) (*types.TaskStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls[taskID]++
	if f.polls[taskID] >= f.pollsToDone {
		f.currentlyUp.Add(-1)
		return &types.TaskStatus{TaskID: taskID, Status: types.StatusCompleted}, nil
	}
	return &types.TaskStatus{TaskID: taskID, Status: types.StatusRunning}, nil
}

func (f *fakeCore) List() ([]*types.TaskStatus, error) { return nil, nil }
func (f *fakeCore) Cleanup(time.Duration) (int, error) { return 0, nil }

func TestPoolResultContainsEveryKey(t *testing.T) {
	rt := newFakeCore(2)
	p, err := New(rt, 2, 10*time.Millisecond)
	require.NoError(t, err)

	entries := map[string]Entry{
		"a": {Callback: types.Callable{Kind: types.CallableNamed, Name: "a"}},
		"b": {Callback: types.Callable{Kind: types.CallableNamed, Name: "b"}},
		"c": {Callback: types.Callable{Kind: types.CallableNamed, Name: "c"}},
		"d": {Callback: types.Callable{Kind: types.CallableNamed, Name: "d"}},
		"e": {Callback: types.Callable{Kind: types.CallableNamed, Name: "e"}},
	}

	results := p.Run(entries)
	assert.Len(t, results, 5)
	for k := range entries {
		assert.Contains(t, results, k)
	}
}

func TestPoolNeverExceedsMaxConcurrency(t *testing.T) {
	rt := newFakeCore(3)
	p, err := New(rt, 2, 5*time.Millisecond)
	require.NoError(t, err)

	entries := make(map[string]Entry)
	for i := 0; i < 5; i++ {
		entries[fmt.Sprintf("k%d", i)] = Entry{Callback: types.Callable{Kind: types.CallableNamed, Name: "f"}}
	}

	p.Run(entries)
	assert.LessOrEqual(t, rt.activeAtPeak.Load(), int64(2))
}

func TestPoolRecordsSyntheticIDOnSpawnFailure(t *testing.T) {
	rt := &failingCore{}
	p, err := New(rt, 1, 10*time.Millisecond)
	require.NoError(t, err)

	results := p.Run(map[string]Entry{"a": {Callback: types.Callable{Kind: types.CallableNamed, Name: "a"}}})
	require.Contains(t, results, "a")
	assert.Contains(t, string(results["a"]), "failed_a_")
}

func TestNewRejectsInvalidConstruction(t *testing.T) {
	rt := newFakeCore(1)
	_, err := New(rt, 0, 10*time.Millisecond)
	assert.Error(t, err)

	_, err = New(rt, 1, time.Millisecond)
	assert.Error(t, err)
}

type failingCore struct{}

func (failingCore) Spawn(types.Callable, types.Context) (types.TaskID, error) {
	return "", fmt.Errorf("spawn failed")
}
func (failingCore) Status(taskID types.TaskID) (*types.TaskStatus, error) {
	return &types.TaskStatus{TaskID: taskID, Status: types.StatusNotFound}, nil
}
func (failingCore) List() ([]*types.TaskStatus, error) { return nil, nil }
func (failingCore) Cleanup(time.Duration) (int, error) { return 0, nil }
