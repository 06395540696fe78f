package layer

import (
	"crypto/sha1"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash(t *testing.T) {
	data := []byte("triple delta")
	want := ID(sha1.Sum(data))
	assert.Equal(t, want, Hash(data))
	assert.False(t, Hash(data).IsZero())
}

func TestFromHex(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		id := Hash([]byte("a"))
		got, err := FromHex(id.Hex())
		require.NoError(t, err)
		assert.Equal(t, id, got)
	})

	t.Run("BadLength", func(t *testing.T) {
		_, err := FromHex("abcd")
		assert.Error(t, err)
	})

	t.Run("BadCharacters", func(t *testing.T) {
		_, err := FromHex("zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz")
		assert.Error(t, err)
	})
}

func TestFromBytes(t *testing.T) {
	id := Hash([]byte("b"))
	got, err := FromBytes(id.Bytes())
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = FromBytes([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestZero(t *testing.T) {
	assert.True(t, Zero.IsZero())
	assert.Equal(t, "0000000000000000000000000000000000000000", Zero.Hex())
}

func TestJSONRoundTrip(t *testing.T) {
	id := Hash([]byte("c"))
	data, err := json.Marshal(id)
	require.NoError(t, err)
	assert.Equal(t, `"`+id.Hex()+`"`, string(data))

	var got ID
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, id, got)
}
