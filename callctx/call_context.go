package callctx

import (
	"context"
	"strconv"
	"sync"

	"github.com/effective-security/x/values"
	"github.com/effective-security/xdb/pkg/flake"
)

// CallContext identifies the logical session an invocation belongs to.
// It carries the client ID used for rate accounting, the request ID,
// and mutable request metadata.
type CallContext interface {
	GetClientID() string
	GetRequestID() string
	// AppData returns immutable app data
	AppData() any
	// GetMetadata retrieves metadata by key
	GetMetadata(key string) (value any, ok bool)
	// SetMetadata sets metadata by key
	SetMetadata(key string, value any)
}

type callContext struct {
	clientID  string
	requestID string
	metadata  sync.Map
	appData   any
}

func (c *callContext) GetClientID() string {
	return c.clientID
}

func (c *callContext) GetRequestID() string {
	return c.requestID
}

func (c *callContext) AppData() any {
	return c.appData
}

func (c *callContext) GetMetadata(key string) (value any, ok bool) {
	return c.metadata.Load(key)
}

func (c *callContext) SetMetadata(key string, value any) {
	c.metadata.Store(key, value)
}

// NewCallContext creates a CallContext for a client session. Empty IDs
// are populated with generated ones.
func NewCallContext(clientID, requestID string, appData any) CallContext {
	return &callContext{
		clientID:  values.StringsCoalesce(clientID, NewID()),
		requestID: values.StringsCoalesce(requestID, NewID()),
		appData:   appData,
		metadata:  sync.Map{},
	}
}

type contextKey int

const (
	keyContext contextKey = iota
)

// WithCallContext returns a new context with CallContext value
func WithCallContext(ctx context.Context, callCtx CallContext) context.Context {
	return context.WithValue(ctx, keyContext, callCtx)
}

// GetCallContext retrieves the CallContext from the context
func GetCallContext(ctx context.Context) CallContext {
	if v, ok := ctx.Value(keyContext).(CallContext); ok {
		return v
	}
	return nil
}

// GetClientID retrieves the client ID from the provided context.
// If the context does not contain a CallContext, it returns an empty string.
func GetClientID(ctx context.Context) string {
	if v, ok := ctx.Value(keyContext).(CallContext); ok {
		return v.GetClientID()
	}
	return ""
}

// GetRequestID retrieves the request ID from the provided context.
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(keyContext).(CallContext); ok {
		return v.GetRequestID()
	}
	return ""
}

// NewID generates a new ID using the flake ID generator.
func NewID() string {
	return strconv.FormatUint(flake.DefaultIDGenerator.NextID(), 10)
}
