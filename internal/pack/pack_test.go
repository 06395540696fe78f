package pack

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb/strata/internal/layer"
)

func testEntries() []Entry {
	base := []byte("base layer")
	delta := []byte("delta layer")
	baseID := layer.Hash(base)
	return []Entry{
		{ID: baseID, Data: base},
		{ID: layer.Hash(delta), Parent: baseID, Data: delta},
	}
}

func TestBuildRoundTrip(t *testing.T) {
	entries := testEntries()
	p, err := Build(entries)
	require.NoError(t, err)

	r, err := NewReader(p)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	for _, want := range entries {
		got, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestBuildEmpty(t *testing.T) {
	p, err := Build(nil)
	require.NoError(t, err)

	r, err := NewReader(p)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Len())
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestBuildRejectsEmptyID(t *testing.T) {
	_, err := Build([]Entry{{Data: []byte("x")}})
	assert.Error(t, err)
}

func TestMembers(t *testing.T) {
	entries := testEntries()
	p, err := Build(entries)
	require.NoError(t, err)

	members, err := Members(p)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, entries[0].ID, members[0].ID)
	assert.True(t, members[0].Parent.IsZero())
	assert.Equal(t, entries[1].ID, members[1].ID)
	assert.Equal(t, entries[0].ID, members[1].Parent)
}

func TestNewReaderErrors(t *testing.T) {
	t.Run("BadMagic", func(t *testing.T) {
		_, err := NewReader([]byte("NOTAPACKNOTAPACK"))
		assert.ErrorIs(t, err, ErrBadMagic)
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := NewReader(nil)
		assert.ErrorIs(t, err, ErrBadMagic)
	})

	t.Run("TruncatedCount", func(t *testing.T) {
		_, err := NewReader([]byte{'T', 'D', 'P', 'K', 0x01, 0x00})
		assert.ErrorIs(t, err, ErrTruncated)
	})
}

func TestTruncatedRecord(t *testing.T) {
	p, err := Build(testEntries())
	require.NoError(t, err)

	r, err := NewReader(p[:len(p)-4])
	require.NoError(t, err)
	_, err = r.Next()
	require.NoError(t, err)
	_, err = r.Next()
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestLengthOverrun(t *testing.T) {
	p, err := Build([]Entry{{ID: layer.Hash([]byte("a")), Data: []byte("abc")}})
	require.NoError(t, err)

	// inflate the declared payload length past the end of the stream
	lenOff := len(p) - 3 - 8
	p[lenOff] = 0xFF

	r, err := NewReader(p)
	require.NoError(t, err)
	_, err = r.Next()
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestPayloadRoundTrip(t *testing.T) {
	p, err := Build(testEntries())
	require.NoError(t, err)
	head := layer.Hash([]byte("head"))

	payload := BuildPayload(head, p)
	gotHead, gotPack, err := SplitPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, head, gotHead)
	assert.Equal(t, p, gotPack)
}

func TestSplitPayloadTooShort(t *testing.T) {
	_, _, err := SplitPayload([]byte("short"))
	assert.ErrorIs(t, err, ErrTruncated)
}
