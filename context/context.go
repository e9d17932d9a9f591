// Package context carries the calling principal through request contexts.
package context

import (
	stdctx "context"
	"fmt"

	"github.com/aschepis/backscratcher/memtier/memory"
)

// callerKey is the context key for the caller id. This is in a separate
// package so transports and the engine's authorizer can share it.
type callerKey struct{}

// WithCaller records the principal making the request.
func WithCaller(ctx stdctx.Context, callerID string) stdctx.Context {
	return stdctx.WithValue(ctx, callerKey{}, callerID)
}

// GetCaller returns the principal recorded by WithCaller.
func GetCaller(ctx stdctx.Context) (string, bool) {
	id, ok := ctx.Value(callerKey{}).(string)
	return id, ok && id != ""
}

// OwnerAuthorizer lets a caller act only on memories it owns. Contexts
// without a caller are trusted; they come from local commands.
func OwnerAuthorizer() memory.Authorizer {
	return memory.AuthorizerFunc(func(ctx stdctx.Context, action memory.Action, ownerID string) error {
		caller, ok := GetCaller(ctx)
		if !ok || caller == ownerID {
			return nil
		}
		return fmt.Errorf("caller %q may not %s memories owned by %q", caller, action, ownerID)
	})
}
