package meta

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb/strata/internal/layer"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createDB(t *testing.T, s *Store, path DBPath) {
	t.Helper()
	err := s.Update(t.Context(), func(tx *Tx) error {
		return tx.CreateDatabase(path, DatabaseRecord{Label: "test", CreatedAt: time.Now().UTC()})
	})
	require.NoError(t, err)
}

func TestDatabaseLifecycle(t *testing.T) {
	s := openStore(t)
	ctx := t.Context()
	path := DBPath{Org: "acme", Name: "widgets"}

	createDB(t, s, path)

	t.Run("DuplicateRejected", func(t *testing.T) {
		err := s.Update(ctx, func(tx *Tx) error {
			return tx.CreateDatabase(path, DatabaseRecord{})
		})
		assert.ErrorIs(t, err, ErrDatabaseExists)
	})

	t.Run("FinalizeAndRead", func(t *testing.T) {
		require.NoError(t, s.Update(ctx, func(tx *Tx) error {
			return tx.FinalizeDatabase(path)
		}))
		err := s.View(ctx, func(tx *Tx) error {
			rec, err := tx.Database(path)
			if err != nil {
				return err
			}
			assert.True(t, rec.Finalized)
			assert.Equal(t, "test", rec.Label)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("LocalRepoCreated", func(t *testing.T) {
		require.NoError(t, s.View(ctx, func(tx *Tx) error {
			assert.True(t, tx.RepoExists(path, LocalRepo))
			return nil
		}))
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, s.Update(ctx, func(tx *Tx) error {
			return tx.DeleteDatabase(path)
		}))
		err := s.View(ctx, func(tx *Tx) error {
			_, err := tx.Database(path)
			return err
		})
		assert.ErrorIs(t, err, ErrDatabaseNotFound)
	})
}

func TestRemotes(t *testing.T) {
	s := openStore(t)
	ctx := t.Context()
	path := DBPath{Org: "acme", Name: "widgets"}
	createDB(t, s, path)

	t.Run("AddAndRead", func(t *testing.T) {
		require.NoError(t, s.Update(ctx, func(tx *Tx) error {
			return tx.AddRemote(path, "origin", "http://remote/acme/widgets", RemoteTypeRemote)
		}))
		require.NoError(t, s.View(ctx, func(tx *Tx) error {
			rec, err := tx.Remote(path, "origin")
			require.NoError(t, err)
			assert.Equal(t, RemoteTypeRemote, rec.Type)
			assert.True(t, tx.RepoExists(path, "origin"), "tracking repository")

			_, known, err := tx.RepositoryHead(path, "origin")
			require.NoError(t, err)
			assert.False(t, known, "head unknown until first fetch")
			return nil
		}))
	})

	t.Run("DuplicateRejected", func(t *testing.T) {
		err := s.Update(ctx, func(tx *Tx) error {
			return tx.AddRemote(path, "origin", "elsewhere", RemoteTypeRemote)
		})
		assert.ErrorIs(t, err, ErrRemoteExists)
	})

	t.Run("HeadUpdate", func(t *testing.T) {
		head := layer.Hash([]byte("l1"))
		require.NoError(t, s.Update(ctx, func(tx *Tx) error {
			return tx.UpdateRepositoryHead(path, "origin", head)
		}))
		require.NoError(t, s.View(ctx, func(tx *Tx) error {
			got, known, err := tx.RepositoryHead(path, "origin")
			require.NoError(t, err)
			assert.True(t, known)
			assert.Equal(t, head, got)
			return nil
		}))
	})

	t.Run("InsertRemoteRepositoryKnownEmpty", func(t *testing.T) {
		require.NoError(t, s.Update(ctx, func(tx *Tx) error {
			return tx.InsertRemoteRepository(path, "bundle", "terminusdb:///bundle")
		}))
		require.NoError(t, s.View(ctx, func(tx *Tx) error {
			head, known, err := tx.RepositoryHead(path, "bundle")
			require.NoError(t, err)
			assert.True(t, known)
			assert.True(t, head.IsZero())
			return nil
		}))
	})

	t.Run("Remove", func(t *testing.T) {
		require.NoError(t, s.Update(ctx, func(tx *Tx) error {
			return tx.RemoveRemote(path, "bundle")
		}))
		require.NoError(t, s.View(ctx, func(tx *Tx) error {
			_, err := tx.Remote(path, "bundle")
			assert.ErrorIs(t, err, ErrRemoteNotFound)
			assert.False(t, tx.RepoExists(path, "bundle"))
			return nil
		}))
	})
}

func TestBranchesAndCommits(t *testing.T) {
	s := openStore(t)
	ctx := t.Context()
	path := DBPath{Org: "acme", Name: "widgets"}
	createDB(t, s, path)

	c1 := Commit{
		ID:        "c1",
		Author:    "alice",
		Message:   "initial",
		Timestamp: time.Now().UTC(),
		Layers:    GraphLayers{Instance: layer.Hash([]byte("l1"))},
		Branch:    "main",
	}
	c2 := Commit{
		ID:        "c2",
		Author:    "alice",
		Message:   "second",
		Timestamp: time.Now().UTC(),
		Parents:   []string{"c1"},
		Layers:    GraphLayers{Instance: layer.Hash([]byte("l2"))},
		Branch:    "main",
	}

	t.Run("InsertAndHead", func(t *testing.T) {
		require.NoError(t, s.Update(ctx, func(tx *Tx) error {
			if err := tx.InsertCommit(path, LocalRepo, c1); err != nil {
				return err
			}
			if err := tx.InsertCommit(path, LocalRepo, c2); err != nil {
				return err
			}
			return tx.ResetBranchHead(path, LocalRepo, "main", "c2")
		}))
		require.NoError(t, s.View(ctx, func(tx *Tx) error {
			head, ok, err := tx.BranchHead(path, LocalRepo, "main")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "c2", head)

			got, err := tx.Commit(path, LocalRepo, "c2")
			require.NoError(t, err)
			assert.Equal(t, []string{"c1"}, got.Parents)

			parents, err := tx.CommitGraph(path, LocalRepo).CommitParents(ctx, "c2")
			require.NoError(t, err)
			assert.Equal(t, []string{"c1"}, parents)
			return nil
		}))
	})

	t.Run("InsertIdempotent", func(t *testing.T) {
		require.NoError(t, s.Update(ctx, func(tx *Tx) error {
			return tx.InsertCommit(path, LocalRepo, c1)
		}))
	})

	t.Run("ResetToMissingCommit", func(t *testing.T) {
		err := s.Update(ctx, func(tx *Tx) error {
			return tx.ResetBranchHead(path, LocalRepo, "main", "ghost")
		})
		assert.ErrorIs(t, err, ErrCommitNotFound)
	})

	t.Run("EmptyBranch", func(t *testing.T) {
		require.NoError(t, s.Update(ctx, func(tx *Tx) error {
			return tx.CreateBranch(path, LocalRepo, "dev")
		}))
		require.NoError(t, s.View(ctx, func(tx *Tx) error {
			head, ok, err := tx.BranchHead(path, LocalRepo, "dev")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Empty(t, head)
			return nil
		}))
	})

	t.Run("Branches", func(t *testing.T) {
		require.NoError(t, s.View(ctx, func(tx *Tx) error {
			names, err := tx.Branches(path, LocalRepo)
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"main", "dev"}, names)
			return nil
		}))
	})

	t.Run("HeadLayer", func(t *testing.T) {
		id := layer.Hash([]byte("l2"))
		require.NoError(t, s.Update(ctx, func(tx *Tx) error {
			return tx.SetHeadLayer(path, LocalRepo, id)
		}))
		require.NoError(t, s.View(ctx, func(tx *Tx) error {
			got, err := tx.HeadLayer(path, LocalRepo)
			require.NoError(t, err)
			assert.Equal(t, id, got)
			return nil
		}))
	})
}

// An error returned from the update closure must roll back every mutation
// in the transaction.
func TestUpdateRollsBackOnError(t *testing.T) {
	s := openStore(t)
	ctx := t.Context()
	path := DBPath{Org: "acme", Name: "widgets"}
	createDB(t, s, path)

	boom := errors.New("boom")
	err := s.Update(ctx, func(tx *Tx) error {
		if err := tx.AddRemote(path, "origin", "http://remote", RemoteTypeRemote); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, s.View(ctx, func(tx *Tx) error {
		_, err := tx.Remote(path, "origin")
		assert.ErrorIs(t, err, ErrRemoteNotFound)
		return nil
	}))
}
