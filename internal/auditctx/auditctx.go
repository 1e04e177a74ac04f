// Package auditctx carries request actor metadata from the HTTP layer down to
// the audit trail without threading it through every service signature.
package auditctx

import "context"

// Actor describes who issued a request and from where.
type Actor struct {
	UserID    string
	IPAddress string
	UserAgent string
}

type actorContextKey struct{}

// WithActor stores actor on ctx.
func WithActor(ctx context.Context, actor Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// WithUser records the authenticated user on the actor already stored in ctx,
// creating one when absent.
func WithUser(ctx context.Context, userID string) context.Context {
	actor, _ := FromContext(ctx)
	actor.UserID = userID
	return WithActor(ctx, actor)
}

// FromContext returns the actor stored on ctx.
func FromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
