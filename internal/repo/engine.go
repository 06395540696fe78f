// Package repo implements the synchronization engines: fetch, push, pull,
// clone, and their bundle compositions. An engine composes the layer store,
// the metadata graph, and a transport capability; metadata transactions
// never span transport I/O.
package repo

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/stratadb/strata/internal/dag"
	"github.com/stratadb/strata/internal/history"
	"github.com/stratadb/strata/internal/layer"
	"github.com/stratadb/strata/internal/meta"
	"github.com/stratadb/strata/internal/pack"
	"github.com/stratadb/strata/internal/store"
	"github.com/stratadb/strata/internal/syncerr"
)

// Engine runs synchronization operations against one layer store and
// metadata graph.
type Engine struct {
	store store.Store
	meta  *meta.Store
}

// New builds an engine.
func New(st store.Store, ms *meta.Store) *Engine {
	return &Engine{store: st, meta: ms}
}

// Meta exposes the metadata graph for read-side consumers (log listing).
func (e *Engine) Meta() *meta.Store {
	return e.meta
}

// Store exposes the layer store.
func (e *Engine) Store() store.Store {
	return e.store
}

// mapMetaErr translates metadata sentinels into taxonomy kinds at the
// engine boundary.
func mapMetaErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, meta.ErrDatabaseNotFound),
		errors.Is(err, meta.ErrRemoteNotFound),
		errors.Is(err, meta.ErrBranchNotFound),
		errors.Is(err, meta.ErrRepoNotFound),
		errors.Is(err, meta.ErrCommitNotFound):
		return syncerr.Wrap(syncerr.KindNotFound, err, "resolving synchronization target")
	case errors.Is(err, meta.ErrDatabaseExists):
		return syncerr.Wrap(syncerr.KindDatabaseExists, err, "database already exists")
	default:
		return err
	}
}

// buildPayload packs the layers of a repository's chain above baseline. ok
// is false when the repository is empty or already at the baseline.
func (e *Engine) buildPayload(ctx context.Context, path meta.DBPath, repoName string, baseline layer.ID) ([]byte, bool, error) {
	var head layer.ID
	err := e.meta.View(ctx, func(tx *meta.Tx) error {
		var err error
		head, err = tx.HeadLayer(path, repoName)
		return err
	})
	if err != nil {
		return nil, false, mapMetaErr(err)
	}
	if head.IsZero() {
		return nil, false, nil
	}

	chain, err := dag.ChildUntilParents(ctx, e.store, head, baseline)
	if err != nil {
		return nil, false, fmt.Errorf("walking layer chain: %w", err)
	}
	if len(chain) == 0 {
		return nil, false, nil
	}

	// parents before children on the wire
	entries := make([]pack.Entry, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		parent, data, err := e.store.Get(ctx, chain[i])
		if err != nil {
			return nil, false, fmt.Errorf("reading layer %s: %w", chain[i], err)
		}
		entries = append(entries, pack.Entry{ID: chain[i], Parent: parent, Data: data})
	}

	pk, err := pack.Build(entries)
	if err != nil {
		return nil, false, fmt.Errorf("building pack: %w", err)
	}
	return pack.BuildPayload(head, pk), true, nil
}

// unpack admits a pack's layers into the store. Every parent must either
// precede its child in the pack or already be stored; the pack is accepted
// on structural and cryptographic grounds only, no schema validation runs.
func (e *Engine) unpack(ctx context.Context, pk []byte) error {
	r, err := pack.NewReader(pk)
	if err != nil {
		return syncerr.PackFailed("invalid_pack", err)
	}

	admitted := make(map[layer.ID]bool, r.Len())
	for {
		entry, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return syncerr.PackFailed("invalid_pack", err)
		}

		if !entry.Parent.IsZero() && !admitted[entry.Parent] {
			present, err := e.store.Has(ctx, entry.Parent)
			if err != nil {
				return fmt.Errorf("checking parent %s: %w", entry.Parent, err)
			}
			if !present {
				return syncerr.PackFailed("missing_parent",
					fmt.Errorf("layer %s references absent parent %s", entry.ID, entry.Parent))
			}
		}

		res, err := e.store.Put(ctx, entry.ID, entry.Parent, entry.Data)
		if err != nil {
			return fmt.Errorf("admitting layer %s: %w", entry.ID, err)
		}
		if res == store.PutMismatch {
			return syncerr.PackFailed("checksum_mismatch",
				fmt.Errorf("layer %s does not hash to its id", entry.ID))
		}
		admitted[entry.ID] = true
	}
	return nil
}

// indexChain folds a freshly admitted layer chain into a repository's
// commit graph: commits are decoded from layer records oldest first, branch
// heads advance to each branch's newest record, and the repository head
// layer moves to newHead. Stops at the first commit the repository already
// has.
//
// With enforceFF set a branch may only move along its own ancestry; a
// candidate head that does not contain the current head is rejected as
// diverged, carrying the stranded commits. A repository receiving pushes
// runs with the guard on; a tracking repository mirrors its remote and
// runs without it.
func (e *Engine) indexChain(ctx context.Context, tx *meta.Tx, path meta.DBPath, repoName string, newHead layer.ID, enforceFF bool) error {
	var recs []history.Record
	for id := newHead; !id.IsZero(); {
		parent, data, err := e.store.Get(ctx, id)
		if err != nil {
			return syncerr.PackFailed("missing_layer", fmt.Errorf("layer %s absent after unpack: %w", id, err))
		}
		rec, err := history.DecodeRecord(id, data)
		if err != nil {
			return syncerr.PackFailed("invalid_layer", err)
		}
		present, err := tx.HasCommit(path, repoName, rec.Commit.ID)
		if err != nil {
			return err
		}
		if present {
			break
		}
		recs = append(recs, rec)
		id = parent
	}

	branchHeads := make(map[string]string)
	for i := len(recs) - 1; i >= 0; i-- {
		c := recs[i].Commit
		if err := tx.InsertCommit(path, repoName, c); err != nil {
			return err
		}
		if c.Branch != "" {
			// oldest-first iteration: the last write per branch is the newest
			branchHeads[c.Branch] = c.ID
		}
	}
	for branch, commitID := range branchHeads {
		if enforceFF {
			cur, _, err := tx.BranchHead(path, repoName, branch)
			if err != nil {
				return err
			}
			if cur != "" && cur != commitID {
				g := tx.CommitGraph(path, repoName)
				_, stranded, _, err := dag.MRCA(ctx, g, g, cur, commitID)
				if err != nil {
					return err
				}
				if len(stranded) > 0 {
					return syncerr.Diverged(stranded)
				}
			}
		}
		if err := tx.ResetBranchHead(path, repoName, branch, commitID); err != nil {
			return err
		}
	}
	return tx.SetHeadLayer(path, repoName, newHead)
}

// PackForRemote serves a pack request against the database's local
// repository: the layers above the requester's baseline, or nothing when
// the requester is up to date. Implements transport.PackSource.
func (e *Engine) PackForRemote(ctx context.Context, path meta.DBPath, baseline layer.ID) ([]byte, bool, error) {
	return e.buildPayload(ctx, path, meta.LocalRepo, baseline)
}

// UnpackPayload admits a pushed payload into the database's local
// repository and advances its branches. Implements transport.PackSource.
func (e *Engine) UnpackPayload(ctx context.Context, path meta.DBPath, payload []byte) (layer.ID, error) {
	head, pk, err := pack.SplitPayload(payload)
	if err != nil {
		return layer.Zero, syncerr.PackFailed("invalid_payload", err)
	}
	if err := e.unpack(ctx, pk); err != nil {
		return layer.Zero, err
	}
	err = e.meta.Update(ctx, func(tx *meta.Tx) error {
		return e.indexChain(ctx, tx, path, meta.LocalRepo, head, true)
	})
	if err != nil {
		return layer.Zero, mapMetaErr(err)
	}
	return head, nil
}
