//go:build windows

package spawner

import (
	"os/exec"
	"syscall"
)

// detach starts the child in its own process group so it is not killed
// alongside the parent's console and survives parent exit.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}
