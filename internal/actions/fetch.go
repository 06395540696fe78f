package actions

import (
	"context"
	"fmt"

	"github.com/stratadb/strata/internal/layer"
	protocol "github.com/stratadb/strata/pkg/protocol/sync"
)

func fetchEnvelope(head layer.ID, advanced bool) protocol.FetchResponse {
	resp := protocol.FetchResponse{
		Envelope:       protocol.OK("fetch complete"),
		HeadHasUpdated: advanced,
	}
	if !head.IsZero() {
		resp.Head = head.Hex()
	}
	return resp
}

// Fetch updates a remote tracking repository.
type Fetch struct {
	*Strata

	Path   string
	Remote string
}

// Run executes the fetch.
func (action *Fetch) Run(ctx context.Context) error {
	path, err := parseDBPath(action.Path)
	if err != nil {
		return err
	}

	engine, closer, err := action.openEngine()
	if err != nil {
		return err
	}
	defer closer()

	head, advanced, err := engine.Fetch(ctx, action.authContext(), path, action.Remote, action.transport())
	if err != nil {
		return err
	}

	human := fmt.Sprintf("%s is up to date", action.Remote)
	if advanced {
		human = fmt.Sprintf("%s advanced to %s", action.Remote, head)
	}
	return action.emit(fetchEnvelope(head, advanced), human)
}
