package repo

import (
	"context"
	"log/slog"

	"github.com/stratadb/strata/internal/auth"
	"github.com/stratadb/strata/internal/dag"
	"github.com/stratadb/strata/internal/history"
	"github.com/stratadb/strata/internal/layer"
	"github.com/stratadb/strata/internal/meta"
	"github.com/stratadb/strata/internal/syncerr"
	"github.com/stratadb/strata/internal/transport"
)

// PushResult reports the remote head after a push. New is false when the
// remote already held everything.
type PushResult struct {
	Head layer.ID
	New  bool
}

// Push transmits local-only commits of a branch to a remote. The remote
// tracking repository is advanced and made durable before transmission;
// the recorded remote head moves only after the remote acknowledged the
// payload, so an aborted push never leaves a half-updated head.
func (e *Engine) Push(ctx context.Context, actx *auth.Context, branch meta.BranchPath, remoteName string, t transport.Transport) (PushResult, error) {
	if branch.Branch == "" {
		return PushResult{}, syncerr.New(syncerr.KindPushRequiresBranch, "push target %s is not a branch", branch.DBPath)
	}
	if err := actx.Require(branch.String(), auth.CapPush); err != nil {
		return PushResult{}, err
	}

	var (
		remoteURL    string
		prevHead     layer.ID
		newLayer     layer.ID
		shortCircuit bool
	)
	err := e.meta.Update(ctx, func(tx *meta.Tx) error {
		remote, err := tx.Remote(branch.DBPath, remoteName)
		if err != nil {
			return err
		}
		if remote.Type != meta.RemoteTypeRemote {
			return syncerr.New(syncerr.KindPushNonRemote, "%s is a %s repository", remoteName, remote.Type)
		}
		remoteURL = remote.URL

		var known bool
		prevHead, known, err = tx.RepositoryHead(branch.DBPath, remoteName)
		if err != nil {
			return err
		}
		if !known {
			return syncerr.New(syncerr.KindPushNoRepositoryHead,
				"remote %s has never been fetched, fetch before pushing", remoteName)
		}

		localHead, _, err := tx.BranchHead(branch.DBPath, meta.LocalRepo, branch.Branch)
		if err != nil {
			return err
		}
		trackingHead, _, err := tx.BranchHead(branch.DBPath, remoteName, branch.Branch)
		if err != nil {
			return err
		}

		switch {
		case localHead == "" && trackingHead == "":
			// both empty: register the branch remotely, transmit nothing
			if err := tx.CreateBranch(branch.DBPath, remoteName, branch.Branch); err != nil {
				return err
			}
			shortCircuit = true
			return nil
		case localHead == "":
			return syncerr.New(syncerr.KindRemoteNotEmpty,
				"local branch %s is empty but remote branch is not", branch.Branch)
		case trackingHead != "":
			common, _, remotePath, err := dag.MRCA(ctx,
				tx.CommitGraph(branch.DBPath, meta.LocalRepo),
				tx.CommitGraph(branch.DBPath, remoteName),
				localHead, trackingHead)
			if err != nil {
				return err
			}
			if common == "" {
				return syncerr.New(syncerr.KindNoCommonHistory,
					"branch %s shares no history with remote %s", branch.Branch, remoteName)
			}
			if len(remotePath) > 0 {
				return syncerr.Diverged(remotePath)
			}
		}

		if _, err := history.CopyCommits(ctx, tx, branch.DBPath, meta.LocalRepo, remoteName, localHead); err != nil {
			return err
		}
		if err := tx.ResetBranchHead(branch.DBPath, remoteName, branch.Branch, localHead); err != nil {
			return err
		}
		headCommit, err := tx.Commit(branch.DBPath, remoteName, localHead)
		if err != nil {
			return syncerr.Internal(err, "pushed head %s missing after copy", localHead)
		}
		newLayer = headCommit.Layers.Instance
		return tx.SetHeadLayer(branch.DBPath, remoteName, newLayer)
	})
	if err != nil {
		return PushResult{}, mapMetaErr(err)
	}
	if shortCircuit {
		return PushResult{Head: prevHead}, nil
	}

	// the tracking layer is durable; pack what the remote lacks
	payload, ok, err := e.buildPayload(ctx, branch.DBPath, remoteName, prevHead)
	if err != nil {
		return PushResult{}, err
	}
	if !ok {
		err := e.meta.Update(ctx, func(tx *meta.Tx) error {
			return tx.UpdateRepositoryHead(branch.DBPath, remoteName, prevHead)
		})
		if err != nil {
			return PushResult{}, mapMetaErr(err)
		}
		return PushResult{Head: prevHead}, nil
	}

	if err := t.SendPayload(ctx, remoteURL, payload); err != nil {
		return PushResult{}, err
	}

	err = e.meta.Update(ctx, func(tx *meta.Tx) error {
		return tx.UpdateRepositoryHead(branch.DBPath, remoteName, newLayer)
	})
	if err != nil {
		return PushResult{}, mapMetaErr(err)
	}

	slog.InfoContext(ctx, "pushed branch", "branch", branch, "remote", remoteName, "head", newLayer)
	return PushResult{Head: newLayer, New: true}, nil
}
