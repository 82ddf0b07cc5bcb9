// Package spawner implements ProcessSpawner: launching a fully detached
// child running a generated worker script, surviving
// parent exit, never silently swallowing a launch failure. The
// platform-specific half of "detached" (a new session via Setsid on
// unix, CREATE_NEW_PROCESS_GROUP on windows) follows the build-tag split
// pkg/log uses for its own platform-specific file locking.
package spawner

import (
	"errors"
	"os"
	"os/exec"

	"github.com/cuemby/deferrun/pkg/taskerr"
	"github.com/cuemby/deferrun/pkg/types"
)

// Spawner launches a worker's generated source file as a detached
// child process.
type Spawner struct{}

// New returns a Spawner.
func New() *Spawner {
	return &Spawner{}
}

// Spawn runs "go run scriptPath" detached from the parent. It returns a
// SpawnError without ever touching the OS process table if this process
// is itself already a worker (BACKGROUND_PROCESS=1), the fork-bomb
// guard.
func (s *Spawner) Spawn(taskID types.TaskID, scriptPath string) error {
	if os.Getenv("BACKGROUND_PROCESS") == "1" {
		return &taskerr.SpawnError{TaskID: taskID, Cause: errors.New("refusing to spawn from within a worker process (BACKGROUND_PROCESS=1)")}
	}

	// Stdio is nil at the exec.Cmd boundary: the worker captures its own
	// stdout/stderr around the callback invocation and writes it into
	// the status record itself, so nothing here needs to hold a pipe
	// open to a detached child.
	cmd := exec.Command("go", "run", scriptPath)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return &taskerr.SpawnError{TaskID: taskID, Cause: err}
	}

	// The child is detached: release it instead of holding a Wait'd
	// reference that would keep an entry in the parent's process table
	// tied to this goroutine.
	go func() { _ = cmd.Process.Release() }()

	return nil
}
