package auditctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActorRoundTrip(t *testing.T) {
	_, ok := FromContext(context.Background())
	require.False(t, ok)

	ctx := WithActor(context.Background(), Actor{IPAddress: "10.0.0.1", UserAgent: "curl/8"})
	ctx = WithUser(ctx, "user-1")

	actor, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, Actor{UserID: "user-1", IPAddress: "10.0.0.1", UserAgent: "curl/8"}, actor)
}

func TestWithUserWithoutActor(t *testing.T) {
	actor, ok := FromContext(WithUser(context.Background(), "user-2"))
	require.True(t, ok)
	require.Equal(t, "user-2", actor.UserID)
	require.Empty(t, actor.IPAddress)
}
