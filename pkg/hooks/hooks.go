// Package hooks defines the external interfaces the runtime consumes
// from its host: the post-response registration point, the HTTP status
// getter that decides
// whether "always=false" callbacks fire, and the best-effort signal-hook
// registrar that drains the global defer stack on termination.
package hooks

import "os"

// PostResponseHook registers fn to run at most once per request, after
// the host has flushed its response to the client.
type PostResponseHook interface {
	Register(fn func()) error
}

// StatusGetter reads the HTTP status code of the response already sent,
// consulted by post-response execution to decide whether callbacks
// registered with always=false should fire.
type StatusGetter interface {
	StatusCode() int
}

// SignalHook registers fn to run when the host receives a termination
// signal. The default implementation (pkg/deferstack's OSSignalHook)
// wraps os/signal.Notify; hosts embedding their own signal handling can
// supply any other implementation.
type SignalHook interface {
	Notify(fn func(os.Signal)) (cancel func())
}
