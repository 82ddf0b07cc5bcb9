// Package hooks is a pure interface package: it has no implementation
// of its own, only the contracts a host application satisfies to plug
// into the runtime's post-response and signal integration points.
package hooks
