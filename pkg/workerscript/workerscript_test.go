package workerscript

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cuemby/deferrun/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateWritesCompilableLookingSource(t *testing.T) {
	dir := t.TempDir()

	path, err := Generate(dir, "defer_1", types.Callable{Kind: types.CallableNamed, Name: "greet"}, types.Context{"name": "world"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "defer_1.go"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	source := string(data)

	assert.Contains(t, source, `package main`)
	assert.Contains(t, source, `const taskID = types.TaskID("defer_1")`)
	assert.Contains(t, source, `Name:          "greet"`)
	assert.Contains(t, source, `\"name\":\"world\"`)
}

func TestGenerateEmptyContextEmbedsEmptyJSON(t *testing.T) {
	dir := t.TempDir()

	path, err := Generate(dir, "defer_2", types.Callable{Kind: types.CallableNamed, Name: "noop"}, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `const contextJSON = ""`))
}
