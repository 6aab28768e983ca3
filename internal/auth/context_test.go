package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/metadata"
)

func TestIdentityLookup(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetUserID(ctx))
	assert.Empty(t, GetSessionID(ctx))

	md := metadata.Pairs(HeaderUserID, "from-md", HeaderSessionID, "sess-md")
	ctx = metadata.NewIncomingContext(ctx, md)
	assert.Equal(t, "from-md", GetUserID(ctx))
	assert.Equal(t, "sess-md", GetSessionID(ctx))

	ctx = WithUser(ctx, UserContext{UserID: "from-ctx"})
	assert.Equal(t, "from-ctx", GetUserID(ctx))
	assert.Equal(t, "sess-md", GetSessionID(ctx), "empty fields keep the metadata value")
}
