package repo

import (
	"context"
	"errors"
	"log/slog"

	"github.com/stratadb/strata/internal/auth"
	"github.com/stratadb/strata/internal/history"
	"github.com/stratadb/strata/internal/meta"
	"github.com/stratadb/strata/internal/transport"
	protocol "github.com/stratadb/strata/pkg/protocol/sync"
)

// bundleRemote is the name of the synthetic remote installed while a
// bundle is produced or consumed. It never outlives the operation.
const bundleRemote = "bundle"

// Bundle serializes a branch's full history into a payload. It is a push
// against a synthetic in-memory remote with an empty baseline, not a
// separate codec: the captured payload is the bundle.
func (e *Engine) Bundle(ctx context.Context, actx *auth.Context, path meta.DBPath, branch string) ([]byte, error) {
	if err := actx.Require(path.String(), auth.CapCommitRead); err != nil {
		return nil, err
	}
	if branch == "" {
		branch = DefaultBranch
	}

	if err := e.installBundleRemote(ctx, path); err != nil {
		return nil, err
	}
	defer e.removeBundleRemote(ctx, path)

	capture := transport.NewCapture()
	// authorization was imposed above; the inner push is mechanism
	if _, err := e.Push(ctx, auth.System(), meta.BranchPath{DBPath: path, Branch: branch}, bundleRemote, capture); err != nil {
		return nil, err
	}
	if !capture.Sent() {
		return nil, nil
	}
	return capture.Captured, nil
}

// Unbundle admits a bundle payload: a fetch through a replaying in-memory
// remote followed by a fast-forward of every bundled branch. Returns the
// applied commits in application order.
func (e *Engine) Unbundle(ctx context.Context, actx *auth.Context, path meta.DBPath, payload []byte) ([]string, error) {
	if err := actx.Require(path.String(), auth.CapSchemaWrite, auth.CapInstanceWrite); err != nil {
		return nil, err
	}

	if err := e.installBundleRemote(ctx, path); err != nil {
		return nil, err
	}
	defer e.removeBundleRemote(ctx, path)

	if _, _, err := e.Fetch(ctx, actx, path, bundleRemote, transport.NewReplay(payload)); err != nil {
		return nil, err
	}

	var applied []string
	err := e.meta.Update(ctx, func(tx *meta.Tx) error {
		branches, err := tx.Branches(path, bundleRemote)
		if err != nil {
			return err
		}
		for _, branch := range branches {
			ff, err := history.FastForward(ctx, tx, path, branch, bundleRemote, branch)
			if err != nil {
				return err
			}
			applied = append(applied, ff.Applied...)
		}
		return nil
	})
	if err != nil {
		return nil, mapMetaErr(err)
	}

	slog.InfoContext(ctx, "unbundled payload", "db", path, "applied", len(applied))
	return applied, nil
}

// installBundleRemote registers the synthetic remote, clearing a leftover
// from an interrupted earlier operation.
func (e *Engine) installBundleRemote(ctx context.Context, path meta.DBPath) error {
	err := e.meta.Update(ctx, func(tx *meta.Tx) error {
		if _, err := tx.Remote(path, bundleRemote); err == nil {
			if err := tx.RemoveRemote(path, bundleRemote); err != nil {
				return err
			}
		} else if !errors.Is(err, meta.ErrRemoteNotFound) {
			return err
		}
		return tx.InsertRemoteRepository(path, bundleRemote, protocol.BundleRemoteURL)
	})
	return mapMetaErr(err)
}

func (e *Engine) removeBundleRemote(ctx context.Context, path meta.DBPath) {
	err := e.meta.Update(ctx, func(tx *meta.Tx) error {
		return tx.RemoveRemote(path, bundleRemote)
	})
	if err != nil {
		slog.ErrorContext(ctx, "removing synthetic bundle remote", "db", path, "error", err)
	}
}
