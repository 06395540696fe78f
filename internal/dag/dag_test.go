package dag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb/strata/internal/layer"
	"github.com/stratadb/strata/internal/store"
)

// chain writes a linear layer chain into a memory store and returns ids,
// base first.
func chain(t *testing.T, s store.Store, payloads ...string) []layer.ID {
	t.Helper()
	ctx := t.Context()
	ids := make([]layer.ID, 0, len(payloads))
	parent := layer.Zero
	for _, p := range payloads {
		data := []byte(p)
		id := layer.Hash(data)
		res, err := s.Put(ctx, id, parent, data)
		require.NoError(t, err)
		require.Equal(t, store.PutOK, res)
		ids = append(ids, id)
		parent = id
	}
	return ids
}

func TestChildUntilParents(t *testing.T) {
	s := store.NewMemory()
	ids := chain(t, s, "base", "mid", "head")
	base, mid, head := ids[0], ids[1], ids[2]
	ctx := t.Context()

	t.Run("FullHistory", func(t *testing.T) {
		got, err := ChildUntilParents(ctx, s, head, layer.Zero)
		require.NoError(t, err)
		assert.Equal(t, []layer.ID{head, mid, base}, got)
	})

	t.Run("BaselineExclusive", func(t *testing.T) {
		got, err := ChildUntilParents(ctx, s, head, mid)
		require.NoError(t, err)
		assert.Equal(t, []layer.ID{head}, got)
	})

	t.Run("BaselineIsHead", func(t *testing.T) {
		got, err := ChildUntilParents(ctx, s, head, head)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("BaseOnly", func(t *testing.T) {
		got, err := ChildUntilParents(ctx, s, base, layer.Zero)
		require.NoError(t, err)
		assert.Equal(t, []layer.ID{base}, got)
	})

	t.Run("UnknownBaselineYieldsFullChain", func(t *testing.T) {
		got, err := ChildUntilParents(ctx, s, head, layer.Hash([]byte("elsewhere")))
		require.NoError(t, err)
		assert.Equal(t, []layer.ID{head, mid, base}, got)
	})

	t.Run("ZeroHead", func(t *testing.T) {
		got, err := ChildUntilParents(ctx, s, layer.Zero, layer.Zero)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

// mapGraph is a CommitGraph over a parent map.
type mapGraph map[string][]string

func (g mapGraph) CommitParents(_ context.Context, id string) ([]string, error) {
	return g[id], nil
}

func TestMRCA(t *testing.T) {
	ctx := t.Context()

	t.Run("SameHead", func(t *testing.T) {
		g := mapGraph{"c1": nil}
		common, pathA, pathB, err := MRCA(ctx, g, g, "c1", "c1")
		require.NoError(t, err)
		assert.Equal(t, "c1", common)
		assert.Empty(t, pathA)
		assert.Empty(t, pathB)
	})

	t.Run("LinearAhead", func(t *testing.T) {
		// c1 <- c2 <- c3 on A; B at c1
		g := mapGraph{"c1": nil, "c2": {"c1"}, "c3": {"c2"}}
		common, pathA, pathB, err := MRCA(ctx, g, g, "c3", "c1")
		require.NoError(t, err)
		assert.Equal(t, "c1", common)
		assert.Equal(t, []string{"c3", "c2"}, pathA)
		assert.Empty(t, pathB)
	})

	t.Run("Diverged", func(t *testing.T) {
		// c1 <- c2 on A; c1 <- c2' on B
		g := mapGraph{"c1": nil, "c2": {"c1"}, "c2p": {"c1"}}
		common, pathA, pathB, err := MRCA(ctx, g, g, "c2", "c2p")
		require.NoError(t, err)
		assert.Equal(t, "c1", common)
		assert.Equal(t, []string{"c2"}, pathA)
		assert.Equal(t, []string{"c2p"}, pathB)
	})

	t.Run("NoCommonHistory", func(t *testing.T) {
		g := mapGraph{"a2": {"a1"}, "a1": nil, "b2": {"b1"}, "b1": nil}
		common, pathA, pathB, err := MRCA(ctx, g, g, "a2", "b2")
		require.NoError(t, err)
		assert.Empty(t, common)
		assert.Equal(t, []string{"a2", "a1"}, pathA)
		assert.Equal(t, []string{"b2", "b1"}, pathB)
	})

	t.Run("MergeCommit", func(t *testing.T) {
		// A's head is a merge of c2 and c2'; B sits at c2'.
		g := mapGraph{
			"c1": nil, "c2": {"c1"}, "c2p": {"c1"},
			"m": {"c2", "c2p"},
		}
		common, pathA, pathB, err := MRCA(ctx, g, g, "m", "c2p")
		require.NoError(t, err)
		assert.Equal(t, "c2p", common)
		assert.Equal(t, []string{"m", "c2"}, pathA)
		assert.Empty(t, pathB)
	})

	t.Run("TieBreakPrefersA", func(t *testing.T) {
		// Two equally recent candidates; the one on A's frontier is chosen.
		g := mapGraph{
			"x": nil, "y": nil,
			"a": {"x", "y"}, "b": {"x", "y"},
		}
		common, _, _, err := MRCA(ctx, g, g, "a", "b")
		require.NoError(t, err)
		assert.Equal(t, "x", common)
	})
}
