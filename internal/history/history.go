// Package history implements commit-level operations over the metadata
// graph: authoring commits, copying commit ancestry between repositories,
// fast-forwarding branches, and listing branch ancestry.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/stratadb/strata/internal/dag"
	"github.com/stratadb/strata/internal/layer"
	"github.com/stratadb/strata/internal/meta"
	"github.com/stratadb/strata/internal/store"
	"github.com/stratadb/strata/internal/syncerr"
)

// CommitWrite authors a commit on a branch: it stacks a new instance layer
// over the branch head's layer, records the commit, and advances the branch
// head. The layer is admitted to the store before the metadata transaction
// commits; an aborted transaction leaves only an unreferenced layer behind.
func CommitWrite(ctx context.Context, tx *meta.Tx, st store.Store, path meta.DBPath, repoName, branch, author, message string, ts time.Time, delta []byte) (meta.Commit, error) {
	head, _, err := tx.BranchHead(path, repoName, branch)
	if err != nil {
		return meta.Commit{}, err
	}

	var parents []string
	parentLayer := layer.Zero
	if head != "" {
		parent, err := tx.Commit(path, repoName, head)
		if err != nil {
			return meta.Commit{}, err
		}
		parents = []string{head}
		parentLayer = parent.Layers.Instance
	}

	commit := meta.Commit{
		ID:        NewCommitID(author, message, ts, parents, delta),
		Author:    author,
		Message:   message,
		Timestamp: ts.UTC(),
		Parents:   parents,
		Branch:    branch,
	}

	data, layerID, err := EncodeRecord(Record{Commit: commit, Delta: delta})
	if err != nil {
		return meta.Commit{}, err
	}
	commit.Layers.Instance = layerID

	res, err := st.Put(ctx, layerID, parentLayer, data)
	if err != nil {
		return meta.Commit{}, fmt.Errorf("storing commit layer: %w", err)
	}
	if res == store.PutMismatch {
		return meta.Commit{}, syncerr.Internal(nil, "freshly hashed layer %s rejected as mismatch", layerID)
	}

	if err := tx.InsertCommit(path, repoName, commit); err != nil {
		return meta.Commit{}, err
	}
	if err := tx.ResetBranchHead(path, repoName, branch, commit.ID); err != nil {
		return meta.Commit{}, err
	}
	if err := tx.SetHeadLayer(path, repoName, layerID); err != nil {
		return meta.Commit{}, err
	}
	return commit, nil
}

// CopyCommits copies a commit and its ancestors from one repository's graph
// to another, stopping at commits the destination already has. Idempotent;
// returns the copied ids oldest first.
func CopyCommits(ctx context.Context, tx *meta.Tx, path meta.DBPath, srcRepo, dstRepo, from string) ([]string, error) {
	if from == "" {
		return nil, nil
	}

	var order []string
	seen := map[string]bool{}
	queue := []string{from}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true

		present, err := tx.HasCommit(path, dstRepo, id)
		if err != nil {
			return nil, err
		}
		if present {
			continue
		}
		order = append(order, id)

		c, err := tx.Commit(path, srcRepo, id)
		if err != nil {
			return nil, err
		}
		queue = append(queue, c.Parents...)
	}

	// parents before children
	copied := make([]string, 0, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		c, err := tx.Commit(path, srcRepo, order[i])
		if err != nil {
			return nil, err
		}
		if err := tx.InsertCommit(path, dstRepo, *c); err != nil {
			return nil, err
		}
		copied = append(copied, order[i])
	}
	return copied, nil
}

// FFResult reports the branch relationship computed by FastForward. When
// the branches diverge or share no history nothing is applied and the
// caller classifies the outcome from the paths.
type FFResult struct {
	// Applied holds the commits copied onto the local branch, oldest first.
	Applied []string
	// Common is the most recent common ancestor, empty when none exists.
	Common string
	// LocalPath holds local-only commits, newest first.
	LocalPath []string
	// RemotePath holds tracking-only commits, newest first.
	RemotePath []string
}

// FastForward advances a local branch along the tracking repository's
// branch when no rewrite is needed. Diverged or unrelated histories are
// reported, not applied.
func FastForward(ctx context.Context, tx *meta.Tx, path meta.DBPath, localBranch string, trackingRepo, trackingBranch string) (FFResult, error) {
	localHead, _, err := tx.BranchHead(path, meta.LocalRepo, localBranch)
	if err != nil {
		return FFResult{}, err
	}
	trackingHead, _, err := tx.BranchHead(path, trackingRepo, trackingBranch)
	if err != nil {
		return FFResult{}, err
	}

	var res FFResult
	switch {
	case trackingHead == "":
		// nothing fetched for this branch
		return res, nil
	case localHead == "":
		chain, err := fullChain(ctx, tx.CommitGraph(path, trackingRepo), trackingHead)
		if err != nil {
			return FFResult{}, err
		}
		res.RemotePath = chain
	default:
		common, localPath, remotePath, err := dag.MRCA(ctx,
			tx.CommitGraph(path, meta.LocalRepo), tx.CommitGraph(path, trackingRepo),
			localHead, trackingHead)
		if err != nil {
			return FFResult{}, err
		}
		res.Common = common
		res.LocalPath = localPath
		res.RemotePath = remotePath
		if len(localPath) > 0 || len(remotePath) == 0 {
			// ahead, diverged, unrelated, or already equal: nothing to apply
			return res, nil
		}
	}

	if _, err := CopyCommits(ctx, tx, path, trackingRepo, meta.LocalRepo, trackingHead); err != nil {
		return FFResult{}, err
	}
	if err := tx.ResetBranchHead(path, meta.LocalRepo, localBranch, trackingHead); err != nil {
		return FFResult{}, err
	}
	headCommit, err := tx.Commit(path, meta.LocalRepo, trackingHead)
	if err != nil {
		return FFResult{}, syncerr.Internal(err, "fast-forwarded head %s missing after copy", trackingHead)
	}
	if err := tx.SetHeadLayer(path, meta.LocalRepo, headCommit.Layers.Instance); err != nil {
		return FFResult{}, err
	}

	// application order is oldest first
	res.Applied = reversed(res.RemotePath)
	return res, nil
}

// AncestryPath lists a branch's history newest first, following first
// parents.
func AncestryPath(ctx context.Context, tx *meta.Tx, path meta.DBPath, repoName, branch string) ([]meta.Commit, error) {
	head, ok, err := tx.BranchHead(path, repoName, branch)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("branch %s: %w", branch, meta.ErrBranchNotFound)
	}

	var out []meta.Commit
	for id := head; id != ""; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := tx.Commit(path, repoName, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
		if len(c.Parents) == 0 {
			break
		}
		id = c.Parents[0]
	}
	return out, nil
}

// fullChain lists every commit reachable from head, newest first.
func fullChain(ctx context.Context, g dag.CommitGraph, head string) ([]string, error) {
	var order []string
	seen := map[string]bool{head: true}
	queue := []string{head}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		parents, err := g.CommitParents(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, p := range parents {
			if !seen[p] {
				seen[p] = true
				queue = append(queue, p)
			}
		}
	}
	return order, nil
}

func reversed(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[len(ids)-1-i] = id
	}
	return out
}
