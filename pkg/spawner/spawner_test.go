package spawner

import (
	"testing"

	"github.com/cuemby/deferrun/pkg/taskerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnRefusesFromWithinWorker(t *testing.T) {
	t.Setenv("BACKGROUND_PROCESS", "1")

	s := New()
	err := s.Spawn("defer_1", "/tmp/does-not-matter.go")
	require.Error(t, err)

	var spawnErr *taskerr.SpawnError
	assert.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, "defer_1", string(spawnErr.TaskID))
}

func TestSpawnFailsOnMissingGoToolchainTarget(t *testing.T) {
	t.Setenv("BACKGROUND_PROCESS", "")

	s := New()
	err := s.Spawn("defer_2", "/nonexistent/path/worker.go")
	if err == nil {
		t.Skip("go toolchain accepted the command before failing asynchronously; nothing to assert synchronously")
	}

	var spawnErr *taskerr.SpawnError
	assert.ErrorAs(t, err, &spawnErr)
}
