package actions

import (
	"context"
	"fmt"

	protocol "github.com/stratadb/strata/pkg/protocol/sync"
)

// Push transmits local-only commits of a branch to a remote.
type Push struct {
	*Strata

	Path   string
	Remote string
	Branch string
}

// Run executes the push.
func (action *Push) Run(ctx context.Context) error {
	branch, err := parseBranchPath(action.Path, action.Branch)
	if err != nil {
		return err
	}

	engine, closer, err := action.openEngine()
	if err != nil {
		return err
	}
	defer closer()

	res, err := engine.Push(ctx, action.authContext(), branch, action.Remote, action.transport())
	if err != nil {
		return err
	}

	resp := protocol.PushResponse{Envelope: protocol.OK("push complete")}
	human := fmt.Sprintf("%s already up to date at %s", action.Remote, res.Head)
	if res.New {
		resp.New = res.Head.Hex()
		human = fmt.Sprintf("pushed %s to %s, new head %s", branch.Branch, action.Remote, res.Head)
	} else {
		resp.Same = res.Head.Hex()
	}
	return action.emit(resp, human)
}
