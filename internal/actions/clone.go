package actions

import (
	"context"
	"fmt"

	"github.com/stratadb/strata/internal/repo"
	protocol "github.com/stratadb/strata/pkg/protocol/sync"
)

// Clone creates a local database from a remote.
type Clone struct {
	*Strata

	RemoteURL string
	Path      string
	Label     string
	Comment   string
	Public    bool
}

// Run executes the clone.
func (action *Clone) Run(ctx context.Context) error {
	path, err := parseDBPath(action.Path)
	if err != nil {
		return err
	}

	engine, closer, err := action.openEngine()
	if err != nil {
		return err
	}
	defer closer()

	applied, err := engine.Clone(ctx, action.authContext(), path, repo.CloneOptions{
		Label:   action.Label,
		Comment: action.Comment,
		Public:  action.Public,
	}, action.RemoteURL, action.transport())
	if err != nil {
		return err
	}
	if applied == nil {
		applied = []string{}
	}

	return action.emit(protocol.CloneResponse{
		Envelope:       protocol.OK("clone complete"),
		AppliedCommits: applied,
	}, fmt.Sprintf("cloned %s into %s (%d commits)", action.RemoteURL, path, len(applied)))
}
