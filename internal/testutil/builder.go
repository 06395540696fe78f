// Package testutil provides utilities for building test databases and
// commit DAGs.
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stratadb/strata/internal/history"
	"github.com/stratadb/strata/internal/meta"
	"github.com/stratadb/strata/internal/store"
)

// DB bundles a database's layer store and metadata graph for tests.
type DB struct {
	T     *testing.T
	Store *store.Memory
	Meta  *meta.Store
	Path  meta.DBPath

	clock time.Time
}

// NewDB creates a finalized database named acme/widgets with a memory layer
// store and a temp-file metadata graph.
func NewDB(t *testing.T) *DB {
	t.Helper()
	return NewNamedDB(t, meta.DBPath{Org: "acme", Name: "widgets"})
}

// NewNamedDB creates a finalized database at the given path.
func NewNamedDB(t *testing.T, path meta.DBPath) *DB {
	t.Helper()
	db := NewBare(t, path)
	err := db.Meta.Update(t.Context(), func(tx *meta.Tx) error {
		if err := tx.CreateDatabase(path, meta.DatabaseRecord{Label: path.Name, CreatedAt: db.clock}); err != nil {
			return err
		}
		return tx.FinalizeDatabase(path)
	})
	require.NoError(t, err)
	return db
}

// NewBare opens empty stores without registering a database; clone tests
// start here.
func NewBare(t *testing.T, path meta.DBPath) *DB {
	t.Helper()
	ms, err := meta.Open(filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ms.Close() })

	return &DB{
		T:     t,
		Store: store.NewMemory(),
		Meta:  ms,
		Path:  path,
		clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Commit authors a commit on a branch of the local repository and returns
// it. Timestamps advance monotonically so ids stay distinct and stable.
func (db *DB) Commit(branch, message string, delta []byte) meta.Commit {
	db.T.Helper()
	db.clock = db.clock.Add(time.Second)

	var commit meta.Commit
	err := db.Meta.Update(db.T.Context(), func(tx *meta.Tx) error {
		var err error
		commit, err = history.CommitWrite(db.T.Context(), tx, db.Store, db.Path,
			meta.LocalRepo, branch, "tester", message, db.clock, delta)
		return err
	})
	require.NoError(db.T, err)
	return commit
}

// BranchHead returns the head commit id of a local branch, empty when the
// branch is empty or absent.
func (db *DB) BranchHead(branch string) string {
	db.T.Helper()
	var head string
	err := db.Meta.View(db.T.Context(), func(tx *meta.Tx) error {
		var err error
		head, _, err = tx.BranchHead(db.Path, meta.LocalRepo, branch)
		return err
	})
	require.NoError(db.T, err)
	return head
}

// History returns a local branch's ancestry, newest first.
func (db *DB) History(branch string) []meta.Commit {
	db.T.Helper()
	var commits []meta.Commit
	err := db.Meta.View(db.T.Context(), func(tx *meta.Tx) error {
		var err error
		commits, err = history.AncestryPath(db.T.Context(), tx, db.Path, meta.LocalRepo, branch)
		return err
	})
	require.NoError(db.T, err)
	return commits
}
