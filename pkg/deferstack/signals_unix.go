//go:build unix

package deferstack

import (
	"os"
	"syscall"
)

func signalsToWatch() []os.Signal {
	return []os.Signal{os.Interrupt, syscall.SIGTERM}
}
