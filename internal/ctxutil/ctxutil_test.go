package ctxutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ashita-ai/tsuzuri/internal/auth"
)

func TestClaimsRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, ClaimsFromContext(ctx))
	assert.Empty(t, Client(ctx))

	ctx = WithClaims(ctx, &auth.Claims{Client: "phone"})
	assert.Equal(t, "phone", ClaimsFromContext(ctx).Client)
	assert.Equal(t, "phone", Client(ctx))
}
