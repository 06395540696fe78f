package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb/strata/internal/syncerr"
)

func TestRequire(t *testing.T) {
	t.Run("SystemHasAll", func(t *testing.T) {
		assert.NoError(t, System().Require("acme/widgets", CapPush, CapFetch))
	})

	t.Run("GrantedCapability", func(t *testing.T) {
		ctx := NewContext("alice", CapFetch)
		assert.NoError(t, ctx.Require("acme/widgets", CapFetch))
	})

	t.Run("MissingCapability", func(t *testing.T) {
		ctx := NewContext("alice", CapFetch)
		err := ctx.Require("acme/widgets", CapPush)
		require.Error(t, err)
		assert.Equal(t, syncerr.KindUnauthorized, syncerr.KindOf(err))
	})
}

func TestBearerRoundTrip(t *testing.T) {
	secret := []byte("0123456789abcdef")

	token, err := SignToken("alice", secret, CapFetch, CapPush)
	require.NoError(t, err)

	ctx, err := ParseBearer(token, secret)
	require.NoError(t, err)
	assert.Equal(t, "alice", ctx.User)
	assert.True(t, ctx.Allowed(CapFetch))
	assert.True(t, ctx.Allowed(CapPush))
	assert.False(t, ctx.Allowed(CapCreateDatabase))
}

func TestParseBearerRejects(t *testing.T) {
	secret := []byte("0123456789abcdef")

	t.Run("WrongSecret", func(t *testing.T) {
		token, err := SignToken("alice", []byte("other-secret-key"), CapFetch)
		require.NoError(t, err)
		_, err = ParseBearer(token, secret)
		require.Error(t, err)
		assert.Equal(t, syncerr.KindUnauthorized, syncerr.KindOf(err))
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := ParseBearer("not-a-token", secret)
		require.Error(t, err)
		assert.Equal(t, syncerr.KindUnauthorized, syncerr.KindOf(err))
	})
}
