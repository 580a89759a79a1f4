package dispatch

import (
	"fmt"
	"net/http"
)

// HandlerFunc handles a dispatched request.
type HandlerFunc func(w http.ResponseWriter, r *Request)

type targetKind int

const (
	targetDispatcher targetKind = iota + 1
	targetFunc
)

// Target is what a matching rule hands the request to: either another
// Dispatcher or a handler function.
type Target struct {
	kind       targetKind
	dispatcher *Dispatcher
	fn         HandlerFunc
}

// To returns a Target that delegates to a sub-dispatcher.
func To(d *Dispatcher) Target {
	return Target{kind: targetDispatcher, dispatcher: d}
}

// Func returns a Target that invokes fn.
func Func(fn HandlerFunc) Target {
	return Target{kind: targetFunc, fn: fn}
}

func (t Target) serve(w http.ResponseWriter, r *Request) {
	switch t.kind {
	case targetDispatcher:
		t.dispatcher.Dispatch(w, r)
	case targetFunc:
		t.fn(w, r)
	default:
		panic(fmt.Sprintf("unknown target kind: %d", t.kind))
	}
}
