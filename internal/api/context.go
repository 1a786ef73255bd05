package api

import (
	"context"
)

// ownerContextKey is the context key for the authenticated owner.
type ownerContextKey struct{}

// WithOwner returns a new context with the owner attached.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerContextKey{}, owner)
}

// OwnerFromContext extracts the owner from the context.
func OwnerFromContext(ctx context.Context) (string, bool) {
	owner, ok := ctx.Value(ownerContextKey{}).(string)
	return owner, ok && owner != ""
}

// MustOwnerFromContext extracts the owner or panics.
// Use only when OwnerMiddleware guarantees owner presence.
func MustOwnerFromContext(ctx context.Context) string {
	owner, ok := OwnerFromContext(ctx)
	if !ok {
		panic("owner not in context: middleware misconfiguration")
	}
	return owner
}
