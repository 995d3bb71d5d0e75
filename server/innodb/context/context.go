// Package context carries per-session state and cancellation through the
// engine's call stack: the active transaction, session-scoped key/value
// storage, and a standard context.Context so long-running operations (lock
// waits, range scans) can be cancelled or time out.
package context

import (
	"context"
	"fmt"
	"sync"
)

// Context is the per-session environment threaded through transaction and
// statement execution.
type Context interface {
	// SetValue stores a value associated with this context for key.
	SetValue(key fmt.Stringer, value interface{})

	// Value returns the value associated with this context for key.
	Value(key fmt.Stringer) interface{}

	// ClearValue clears the value associated with this context for key.
	ClearValue(key fmt.Stringer)

	// GoCtx returns the standard context.Context bound to the current
	// statement, used for cancellation and deadlines on blocking calls.
	GoCtx() context.Context

	// WithGoCtx rebinds the standard context.Context, e.g. to attach a
	// per-statement timeout before a lock wait or scan.
	WithGoCtx(ctx context.Context)
}

type basicCtxType int

func (t basicCtxType) String() string {
	switch t {
	case QueryString:
		return "query_string"
	case TxnID:
		return "txn_id"
	}
	return "unknown"
}

// Well-known context keys.
const (
	QueryString basicCtxType = 1
	TxnID       basicCtxType = 2
)

// sessionContext is the default Context implementation.
type sessionContext struct {
	mu     sync.RWMutex
	values map[fmt.Stringer]interface{}
	goCtx  context.Context
}

// New creates a session context bound to context.Background.
func New() Context {
	return &sessionContext{
		values: make(map[fmt.Stringer]interface{}),
		goCtx:  context.Background(),
	}
}

func (c *sessionContext) SetValue(key fmt.Stringer, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

func (c *sessionContext) Value(key fmt.Stringer) interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[key]
}

func (c *sessionContext) ClearValue(key fmt.Stringer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
}

func (c *sessionContext) GoCtx() context.Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.goCtx
}

func (c *sessionContext) WithGoCtx(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.goCtx = ctx
}
