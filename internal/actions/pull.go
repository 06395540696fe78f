package actions

import (
	"context"
	"fmt"

	"github.com/stratadb/strata/internal/repo"
	protocol "github.com/stratadb/strata/pkg/protocol/sync"
)

// Pull fetches a remote and fast-forwards the local branch.
type Pull struct {
	*Strata

	Path         string
	Remote       string
	Branch       string
	RemoteBranch string
}

// Run executes the pull.
func (action *Pull) Run(ctx context.Context) error {
	branch, err := parseBranchPath(action.Path, action.Branch)
	if err != nil {
		return err
	}
	remoteBranch := action.RemoteBranch
	if remoteBranch == "" {
		remoteBranch = branch.Branch
	}

	engine, closer, err := action.openEngine()
	if err != nil {
		return err
	}
	defer closer()

	res, err := engine.Pull(ctx, action.authContext(), branch, action.Remote, remoteBranch, action.transport())
	if err != nil {
		return err
	}

	applied := res.Applied
	if applied == nil {
		applied = []string{}
	}
	resp := protocol.PullResponse{
		Envelope:       protocol.OK("pull complete"),
		PullStatus:     pullStatus(res.Outcome),
		CommonAncestor: res.Common,
		AppliedCommits: applied,
	}

	var human string
	switch res.Outcome {
	case repo.PullFastForwarded:
		human = fmt.Sprintf("fast-forwarded %s by %d commit(s)", branch.Branch, len(applied))
	case repo.PullAhead:
		human = fmt.Sprintf("%s is ahead of %s", branch.Branch, action.Remote)
	case repo.PullDivergent:
		human = fmt.Sprintf("histories diverged at %s; fetch, rebase, then push", res.Common)
	case repo.PullNoCommonHistory:
		human = "no common history; manual intervention required"
	default:
		human = "already up to date"
	}
	return action.emit(resp, human)
}

func pullStatus(outcome repo.PullOutcome) protocol.PullStatus {
	switch outcome {
	case repo.PullFastForwarded:
		return protocol.PullFastForwarded
	case repo.PullAhead:
		return protocol.PullAhead
	case repo.PullDivergent:
		return protocol.PullDivergent
	case repo.PullNoCommonHistory:
		return protocol.PullNoCommonHistory
	default:
		return protocol.PullUnchanged
	}
}
