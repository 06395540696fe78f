package repo

import (
	"context"
	"log/slog"

	"github.com/stratadb/strata/internal/auth"
	"github.com/stratadb/strata/internal/layer"
	"github.com/stratadb/strata/internal/meta"
	"github.com/stratadb/strata/internal/pack"
	"github.com/stratadb/strata/internal/syncerr"
	"github.com/stratadb/strata/internal/transport"
)

// Fetch requests the layers above the last observed remote head, admits
// them, and advances the remote tracking repository. Returns the tracking
// head and whether it moved.
func (e *Engine) Fetch(ctx context.Context, actx *auth.Context, path meta.DBPath, remoteName string, t transport.Transport) (layer.ID, bool, error) {
	if err := actx.Require(path.String(), auth.CapFetch); err != nil {
		return layer.Zero, false, err
	}

	var cur layer.ID
	var remoteURL string
	err := e.meta.View(ctx, func(tx *meta.Tx) error {
		remote, err := tx.Remote(path, remoteName)
		if err != nil {
			return err
		}
		remoteURL = remote.URL
		cur, _, err = tx.RepositoryHead(path, remoteName)
		return err
	})
	if err != nil {
		return layer.Zero, false, mapMetaErr(err)
	}

	payload, ok, err := t.RequestPack(ctx, remoteURL, cur)
	if err != nil {
		return layer.Zero, false, err
	}
	if !ok {
		// up to date: no metadata mutation
		return cur, false, nil
	}

	newHead, pk, err := pack.SplitPayload(payload)
	if err != nil {
		return layer.Zero, false, syncerr.PackFailed("invalid_payload", err)
	}
	if err := e.unpack(ctx, pk); err != nil {
		return layer.Zero, false, err
	}

	err = e.meta.Update(ctx, func(tx *meta.Tx) error {
		if err := e.indexChain(ctx, tx, path, remoteName, newHead, false); err != nil {
			return err
		}
		return tx.UpdateRepositoryHead(path, remoteName, newHead)
	})
	if err != nil {
		return layer.Zero, false, mapMetaErr(err)
	}

	advanced := newHead != cur
	slog.InfoContext(ctx, "fetched remote", "db", path, "remote", remoteName,
		"head", newHead, "advanced", advanced)
	return newHead, advanced, nil
}
