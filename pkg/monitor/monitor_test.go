package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/deferrun/pkg/lazytask"
	"github.com/cuemby/deferrun/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu       sync.Mutex
	statuses map[types.TaskID]*types.TaskStatus
}

func newFakeReader() *fakeReader {
	return &fakeReader{statuses: make(map[types.TaskID]*types.TaskStatus)}
}

func (f *fakeReader) set(id types.TaskID, s *types.TaskStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = s
}

func (f *fakeReader) Read(id types.TaskID) (*types.TaskStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[id], nil
}

func TestMonitorReturnsImmediatelyWhenAlreadyTerminal(t *testing.T) {
	reader := newFakeReader()
	reader.set("defer_1", &types.TaskStatus{TaskID: "defer_1", Status: types.StatusCompleted, Result: "done"})

	status, err := Monitor(context.Background(), reader, nil, nil, "defer_1", time.Second, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, status.Status)
}

func TestMonitorPollsUntilTerminal(t *testing.T) {
	reader := newFakeReader()
	reader.set("defer_1", &types.TaskStatus{TaskID: "defer_1", Status: types.StatusRunning})

	go func() {
		time.Sleep(30 * time.Millisecond)
		reader.set("defer_1", &types.TaskStatus{TaskID: "defer_1", Status: types.StatusCompleted, Result: "ok"})
	}()

	status, err := Monitor(context.Background(), reader, nil, nil, "defer_1", time.Second, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, status.Status)
	assert.Equal(t, "ok", status.Result)
}

func TestMonitorOnProgressFiresOnlyOnChange(t *testing.T) {
	reader := newFakeReader()
	reader.set("defer_1", &types.TaskStatus{TaskID: "defer_1", Status: types.StatusRunning})

	var calls int
	var mu sync.Mutex
	onProgress := func(*types.TaskStatus) {
		mu.Lock()
		calls++
		mu.Unlock()
	}

	go func() {
		time.Sleep(25 * time.Millisecond)
		reader.set("defer_1", &types.TaskStatus{TaskID: "defer_1", Status: types.StatusCompleted, Result: "ok"})
	}()

	_, err := Monitor(context.Background(), reader, nil, nil, "defer_1", time.Second, onProgress, nil)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, calls, "expected one call for the initial RUNNING observation and one for the COMPLETED transition")
}

func TestMonitorTimesOut(t *testing.T) {
	reader := newFakeReader()
	reader.set("defer_1", &types.TaskStatus{TaskID: "defer_1", Status: types.StatusRunning})

	status, err := Monitor(context.Background(), reader, nil, nil, "defer_1", 20*time.Millisecond, nil, nil)
	require.NoError(t, err)
	assert.True(t, status.Timeout)
	assert.Equal(t, types.StatusRunning, status.Status)
}

func TestMonitorStreamsOutputWithoutDuplication(t *testing.T) {
	reader := newFakeReader()
	reader.set("defer_1", &types.TaskStatus{TaskID: "defer_1", Status: types.StatusRunning, Output: "hello "})

	var chunks []string
	sink := func(_ types.TaskID, chunk string) { chunks = append(chunks, chunk) }

	go func() {
		time.Sleep(25 * time.Millisecond)
		reader.set("defer_1", &types.TaskStatus{TaskID: "defer_1", Status: types.StatusCompleted, Output: "hello world"})
	}()

	_, err := Monitor(context.Background(), reader, nil, nil, "defer_1", time.Second, nil, sink)
	require.NoError(t, err)
	assert.Equal(t, "hello world", joinChunks(chunks))
}

func joinChunks(chunks []string) string {
	out := ""
	for _, c := range chunks {
		out += c
	}
	return out
}

func TestMonitorExpandsLazyTaskFirst(t *testing.T) {
	reader := newFakeReader()
	reader.set("defer_real", &types.TaskStatus{TaskID: "defer_real", Status: types.StatusCompleted, Result: "expanded"})

	table := lazytask.New()
	lazy := table.Create(types.Callable{Kind: types.CallableNamed, Name: "greet"}, nil)

	expand := func(types.Callable, types.Context) (types.TaskID, error) {
		return "defer_real", nil
	}

	status, err := Monitor(context.Background(), reader, table, expand, lazy.ID, time.Second, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, types.TaskID("defer_real"), status.TaskID)
}

func TestAwaitReturnsResultOnCompleted(t *testing.T) {
	reader := newFakeReader()
	reader.set("defer_1", &types.TaskStatus{TaskID: "defer_1", Status: types.StatusCompleted, Result: "value"})

	result, err := Await(context.Background(), reader, nil, nil, "defer_1", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "value", result)
}

func TestAwaitFailsOnError(t *testing.T) {
	reader := newFakeReader()
	reader.set("defer_1", &types.TaskStatus{TaskID: "defer_1", Status: types.StatusError, ErrorMessage: "boom"})

	_, err := Await(context.Background(), reader, nil, nil, "defer_1", time.Second)
	assert.ErrorContains(t, err, "boom")
}

func TestAwaitFailsOnNotFound(t *testing.T) {
	reader := newFakeReader()
	reader.set("defer_1", &types.TaskStatus{TaskID: "defer_1", Status: types.StatusNotFound})

	_, err := Await(context.Background(), reader, nil, nil, "defer_1", time.Second)
	assert.Error(t, err)
}
