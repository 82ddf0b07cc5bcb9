package deferstack

import (
	"os"
	"os/signal"

	"github.com/cuemby/deferrun/pkg/hooks"
)

// OSSignalHook is the default hooks.SignalHook: a thin wrapper over
// os/signal.Notify.
type OSSignalHook struct{}

// Notify registers fn to run when the process receives SIGTERM or
// SIGINT, returning a cancel func that stops delivery.
func (OSSignalHook) Notify(fn func(os.Signal)) func() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signalsToWatch()...)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-ch:
			fn(sig)
		case <-done:
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}
}

var _ hooks.SignalHook = OSSignalHook{}

// WatchGlobalStack registers stack.Flush to run on termination signals,
// best-effort. Returns a cancel func that stops watching.
func WatchGlobalStack(hook hooks.SignalHook, stack *GlobalStack) func() {
	return hook.Notify(func(os.Signal) {
		stack.Flush()
	})
}
