//go:build windows

package deferstack

import "os"

func signalsToWatch() []os.Signal {
	return []os.Signal{os.Interrupt}
}
