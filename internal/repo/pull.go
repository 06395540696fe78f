package repo

import (
	"context"
	"log/slog"

	"github.com/stratadb/strata/internal/auth"
	"github.com/stratadb/strata/internal/history"
	"github.com/stratadb/strata/internal/layer"
	"github.com/stratadb/strata/internal/meta"
	"github.com/stratadb/strata/internal/transport"
)

// PullOutcome classifies the branch state after a pull.
type PullOutcome string

const (
	// PullUnchanged: nothing fetched, nothing applied.
	PullUnchanged PullOutcome = "unchanged"
	// PullFastForwarded: the local branch advanced.
	PullFastForwarded PullOutcome = "fast_forwarded"
	// PullAhead: the local branch already contains every remote commit.
	PullAhead PullOutcome = "ahead"
	// PullDivergent: both branches hold unique commits; a rebase is needed.
	PullDivergent PullOutcome = "divergent"
	// PullNoCommonHistory: the branches share no ancestor.
	PullNoCommonHistory PullOutcome = "no_common_history"
)

// PullResult reports the outcome of a pull.
type PullResult struct {
	Outcome PullOutcome
	// Common is the most recent common ancestor, set for divergent pulls.
	Common string
	// Applied holds the fast-forwarded commits in application order.
	Applied []string
	// Head is the remote tracking head after the fetch phase.
	Head layer.ID
}

// Pull fetches a remote and fast-forwards the local branch along its
// tracking branch, classifying the resulting branch relationship.
func (e *Engine) Pull(ctx context.Context, actx *auth.Context, local meta.BranchPath, remoteName, remoteBranch string, t transport.Transport) (PullResult, error) {
	if err := actx.Require(local.String(), auth.CapSchemaWrite, auth.CapInstanceWrite); err != nil {
		return PullResult{}, err
	}

	head, advanced, err := e.Fetch(ctx, actx, local.DBPath, remoteName, t)
	if err != nil {
		return PullResult{}, err
	}

	var ff history.FFResult
	err = e.meta.Update(ctx, func(tx *meta.Tx) error {
		var err error
		ff, err = history.FastForward(ctx, tx, local.DBPath, local.Branch, remoteName, remoteBranch)
		return err
	})
	if err != nil {
		return PullResult{}, mapMetaErr(err)
	}

	res := PullResult{Common: ff.Common, Applied: ff.Applied, Head: head}
	switch {
	case len(ff.Applied) > 0:
		res.Outcome = PullFastForwarded
	case ff.Common == "" && len(ff.LocalPath) > 0 && len(ff.RemotePath) > 0:
		res.Outcome = PullNoCommonHistory
	case len(ff.LocalPath) > 0 && len(ff.RemotePath) > 0:
		res.Outcome = PullDivergent
	case len(ff.LocalPath) > 0:
		res.Outcome = PullAhead
	default:
		res.Outcome = PullUnchanged
	}

	slog.InfoContext(ctx, "pulled branch", "branch", local, "remote", remoteName,
		"outcome", res.Outcome, "applied", len(res.Applied), "fetch_advanced", advanced)
	return res, nil
}
