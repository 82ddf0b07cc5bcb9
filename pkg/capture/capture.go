// Package capture implements CallbackCapture: turning a
// user-supplied callable into a re-hydratable types.Callable.
//
// Go cannot serialize an arbitrary closure's captured variables or an
// arbitrary object's method set the way a dynamic language can. Instead
// every callable that will cross a process boundary must be registered
// ahead of time under a stable name, with any receiver/captured state
// carried separately as JSON. The generated worker source
// (pkg/workerscript) side-effect-imports the packages that call
// Register, so the same binary that spawned the task can hydrate it.
package capture

import (
	"encoding/json"
	"fmt"
	"reflect"
	"runtime"
	"sync"

	"github.com/cuemby/deferrun/pkg/taskerr"
	"github.com/cuemby/deferrun/pkg/types"
)

// Func is the shape every hydrated background-task callback takes.
// ctx is nil when the task was registered with an empty context and the
// callback's signature ignores it.
type Func func(ctx types.Context) (any, error)

// boundCtor rebuilds a bound-method or invokable Func from its
// JSON-encoded receiver state.
type boundCtor func(state []byte) (Func, error)

// closureCtor rebuilds a closure's Func from its JSON-encoded captured
// variables.
type closureCtor func(captured []byte) (Func, error)

var (
	mu          sync.RWMutex
	named       = map[string]Func{}
	namedByPtr  = map[uintptr]string{}
	boundCtors  = map[string]boundCtor{}
	closureCtors = map[string]closureCtor{}
	invokeCtors = map[string]boundCtor{}
)

// Register adds a free function (or static, package-level method) to
// the named registry. Call this from an init() in the package that owns
// fn so the side-effect import in generated worker source runs it.
func Register(name string, fn Func) {
	mu.Lock()
	defer mu.Unlock()
	named[name] = fn
	namedByPtr[reflect.ValueOf(fn).Pointer()] = name
}

// RegisterBound adds a reconstructor for an instance method: given the
// receiver's JSON state, ctor returns the bound Func.
func RegisterBound(name string, ctor boundCtor) {
	mu.Lock()
	defer mu.Unlock()
	boundCtors[name] = ctor
}

// RegisterClosure adds a reconstructor for a closure template: given
// the JSON-encoded captured variables, ctor returns the closed-over
// Func.
func RegisterClosure(name string, ctor closureCtor) {
	mu.Lock()
	defer mu.Unlock()
	closureCtors[name] = ctor
}

// RegisterInvokable adds a reconstructor for an invokable object: given
// the object's JSON state, ctor returns its Invoke method as a Func.
func RegisterInvokable(name string, ctor boundCtor) {
	mu.Lock()
	defer mu.Unlock()
	invokeCtors[name] = ctor
}

// Named captures a previously Registered free function by name.
func Named(name string) (types.Callable, error) {
	mu.RLock()
	_, ok := named[name]
	mu.RUnlock()
	if !ok {
		return types.Callable{}, &taskerr.SerializationError{Reason: fmt.Sprintf("named callable %q is not registered", name)}
	}
	return types.Callable{Kind: types.CallableNamed, Name: name}, nil
}

// Static captures a package-level "Type.Method" style function
// registered under name. Go has no static-method distinction from a
// free function, so this shares the named registry; Kind differs so
// the status record preserves the distinction between the two.
func Static(name string) (types.Callable, error) {
	c, err := Named(name)
	if err != nil {
		return types.Callable{}, err
	}
	c.Kind = types.CallableStatic
	return c, nil
}

// Bound captures an instance method: name identifies a RegisterBound
// reconstructor, receiver is marshaled to JSON as the receiver state.
func Bound(name string, receiver any) (types.Callable, error) {
	mu.RLock()
	_, ok := boundCtors[name]
	mu.RUnlock()
	if !ok {
		return types.Callable{}, &taskerr.SerializationError{Reason: fmt.Sprintf("bound method %q has no registered reconstructor", name)}
	}
	state, err := json.Marshal(receiver)
	if err != nil {
		return types.Callable{}, &taskerr.SerializationError{Reason: "marshal receiver state", Cause: err}
	}
	return types.Callable{Kind: types.CallableBound, Name: name, ReceiverState: state}, nil
}

// Closure captures a closure template: name identifies a
// RegisterClosure reconstructor, captured holds the variables the
// closure needs, marshaled to JSON.
func Closure(name string, captured any) (types.Callable, error) {
	mu.RLock()
	_, ok := closureCtors[name]
	mu.RUnlock()
	if !ok {
		return types.Callable{}, &taskerr.SerializationError{Reason: fmt.Sprintf("closure %q has no registered reconstructor", name)}
	}
	data, err := json.Marshal(captured)
	if err != nil {
		return types.Callable{}, &taskerr.SerializationError{Reason: "marshal captured variables", Cause: err}
	}
	return types.Callable{Kind: types.CallableClosure, Name: name, ReceiverState: data}, nil
}

// Invokable captures an object with an Invoke operation: name
// identifies a RegisterInvokable reconstructor, state is the object's
// JSON-serializable fields.
func Invokable(name string, state any) (types.Callable, error) {
	mu.RLock()
	_, ok := invokeCtors[name]
	mu.RUnlock()
	if !ok {
		return types.Callable{}, &taskerr.SerializationError{Reason: fmt.Sprintf("invokable %q has no registered reconstructor", name)}
	}
	data, err := json.Marshal(state)
	if err != nil {
		return types.Callable{}, &taskerr.SerializationError{Reason: "marshal invokable state", Cause: err}
	}
	return types.Callable{Kind: types.CallableInvokable, Name: name, ReceiverState: data}, nil
}

// Capture is the reflection-based fallback serializer (lowest priority
// of the capture strategies): given a raw Func value that was never routed
// through Named/Static/Bound/Closure/Invokable, check whether it is
// pointer-identical to something already Registered and, if so, resolve
// it by that name with Unverified set. This is the honest limit of
// reflection in Go: unlike a dynamic language, a closure's captured
// variables cannot be recovered from a *runtime.Func, so a fn that was
// never Registered cannot be captured at all.
func Capture(fn Func) (types.Callable, error) {
	mu.RLock()
	name, ok := namedByPtr[reflect.ValueOf(fn).Pointer()]
	mu.RUnlock()
	if ok {
		return types.Callable{Kind: types.CallableNamed, Name: name, Unverified: true}, nil
	}

	symbol := "<unknown>"
	if rf := runtime.FuncForPC(reflect.ValueOf(fn).Pointer()); rf != nil {
		symbol = rf.Name()
	}
	return types.Callable{}, &taskerr.SerializationError{
		Reason: fmt.Sprintf("no capture strategy matched unregistered callable %s; use capture.Named/Bound/Closure/Invokable explicitly", symbol),
	}
}

// Hydrate reverses a Callable back into an invocable Func inside the
// worker process.
func Hydrate(c types.Callable) (Func, error) {
	switch c.Kind {
	case types.CallableNamed, types.CallableStatic:
		mu.RLock()
		fn, ok := named[c.Name]
		mu.RUnlock()
		if !ok {
			return nil, &taskerr.SerializationError{Reason: fmt.Sprintf("named callable %q not registered in worker", c.Name)}
		}
		return fn, nil

	case types.CallableBound:
		mu.RLock()
		ctor, ok := boundCtors[c.Name]
		mu.RUnlock()
		if !ok {
			return nil, &taskerr.SerializationError{Reason: fmt.Sprintf("bound method %q not registered in worker", c.Name)}
		}
		return ctor(c.ReceiverState)

	case types.CallableClosure:
		mu.RLock()
		ctor, ok := closureCtors[c.Name]
		mu.RUnlock()
		if !ok {
			return nil, &taskerr.SerializationError{Reason: fmt.Sprintf("closure %q not registered in worker", c.Name)}
		}
		return ctor(c.ReceiverState)

	case types.CallableInvokable:
		mu.RLock()
		ctor, ok := invokeCtors[c.Name]
		mu.RUnlock()
		if !ok {
			return nil, &taskerr.SerializationError{Reason: fmt.Sprintf("invokable %q not registered in worker", c.Name)}
		}
		return ctor(c.ReceiverState)

	default:
		return nil, &taskerr.SerializationError{Reason: fmt.Sprintf("unknown callable kind %q", c.Kind)}
	}
}
