// Package reqid generates and propagates the correlation identifier
// carried on every proxied request and error response.
package reqid

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const Header = "X-Request-ID"

type ctxKey struct{}

// FromRequest returns the inbound X-Request-ID header, generating a new
// UUID if the client didn't supply one.
func FromRequest(r *http.Request) string {
	if id := r.Header.Get(Header); id != "" {
		return id
	}
	return uuid.NewString()
}

// WithContext stashes id on ctx so downstream logging/error handling can
// retrieve it without re-threading it through every function signature.
func WithContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext retrieves the id stored by WithContext, or "" if absent.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
