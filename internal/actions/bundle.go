package actions

import (
	"context"
	"fmt"
	"os"

	protocol "github.com/stratadb/strata/pkg/protocol/sync"
)

// Bundle serializes a database's history into a file.
type Bundle struct {
	*Strata

	Path   string
	Branch string
	Output string
}

// Run executes the bundle.
func (action *Bundle) Run(ctx context.Context) error {
	path, err := parseDBPath(action.Path)
	if err != nil {
		return err
	}

	engine, closer, err := action.openEngine()
	if err != nil {
		return err
	}
	defer closer()

	payload, err := engine.Bundle(ctx, action.authContext(), path, action.Branch)
	if err != nil {
		return err
	}
	if payload == nil {
		return action.emit(protocol.OK("nothing to bundle"),
			fmt.Sprintf("%s has no history to bundle", path))
	}

	if err := os.WriteFile(action.Output, payload, 0o600); err != nil {
		return fmt.Errorf("writing bundle to %s: %w", action.Output, err)
	}
	return action.emit(protocol.OK("bundle complete"),
		fmt.Sprintf("bundled %s into %s (%d bytes)", path, action.Output, len(payload)))
}

// Unbundle applies a bundle file to a database.
type Unbundle struct {
	*Strata

	Path string
	File string
}

// Run executes the unbundle.
func (action *Unbundle) Run(ctx context.Context) error {
	path, err := parseDBPath(action.Path)
	if err != nil {
		return err
	}

	payload, err := os.ReadFile(action.File)
	if err != nil {
		return fmt.Errorf("reading bundle %s: %w", action.File, err)
	}

	engine, closer, err := action.openEngine()
	if err != nil {
		return err
	}
	defer closer()

	applied, err := engine.Unbundle(ctx, action.authContext(), path, payload)
	if err != nil {
		return err
	}
	if applied == nil {
		applied = []string{}
	}
	return action.emit(protocol.UnbundleResponse{
		Envelope:       protocol.OK("unbundle complete"),
		AppliedCommits: applied,
	}, fmt.Sprintf("applied %d commit(s) to %s", len(applied), path))
}
