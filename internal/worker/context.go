// Package worker implements the asynchronous execution plane: the task
// runtime that consumes broker tasks and the session object user handlers
// see. Sessions publish server messages through the Hermod proxy and
// correlate server-initiated requests with their responses through the
// result backend.
package worker

import (
	"context"
	"encoding/json"
)

// Lifespan is a scoped acquisition of process-global resources. It yields a
// value handlers may consult and a release function that is called on every
// exit path of the task that opened it.
type Lifespan func(ctx context.Context) (value any, release func(), err error)

// NoopLifespan is the default lifespan: no shared resources.
func NoopLifespan(context.Context) (any, func(), error) {
	return nil, func() {}, nil
}

// RequestContext is the per-request state installed for the duration of a
// handler invocation. It travels in the context.Context handed to the
// handler, never in package-level state.
type RequestContext struct {
	// RequestID is the inbound request id in its original wire form.
	RequestID json.RawMessage

	// Meta is the request's params._meta object, or nil.
	Meta json.RawMessage

	// Session is the worker session bound to the request's channel.
	Session *Session

	// Lifespan is the value yielded by the runtime's lifespan scope.
	Lifespan any
}

type requestContextKey struct{}

// WithRequestContext installs a RequestContext on the context.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFrom retrieves the RequestContext, if any.
func RequestContextFrom(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc, ok
}

// SessionFrom is a convenience accessor for the current session. It returns
// nil outside a handler invocation.
func SessionFrom(ctx context.Context) *Session {
	rc, ok := RequestContextFrom(ctx)
	if !ok {
		return nil
	}
	return rc.Session
}
