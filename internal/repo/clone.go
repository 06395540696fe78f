package repo

import (
	"context"
	"log/slog"
	"time"

	"github.com/stratadb/strata/internal/auth"
	"github.com/stratadb/strata/internal/history"
	"github.com/stratadb/strata/internal/meta"
	"github.com/stratadb/strata/internal/syncerr"
	"github.com/stratadb/strata/internal/transport"
)

// OriginRemote is the remote name a clone registers its source under.
const OriginRemote = "origin"

// DefaultBranch is the branch a clone fast-forwards.
const DefaultBranch = "main"

// CloneOptions describe the database a clone creates.
type CloneOptions struct {
	Label    string
	Comment  string
	Public   bool
	Prefixes map[string]string
}

// Clone creates a database from a remote: register the database
// unfinalized, install the origin remote, fetch, fast-forward main, and
// finalize. A bad pack tears the fresh database down again; every other
// failure leaves it registered and unfinalized. Lookups do not consult the
// finalized flag, so such a database stays reachable.
func (e *Engine) Clone(ctx context.Context, actx *auth.Context, path meta.DBPath, opts CloneOptions, remoteURL string, t transport.Transport) (applied []string, err error) {
	if err := actx.Require(path.String(), auth.CapCreateDatabase); err != nil {
		return nil, err
	}

	err = e.meta.Update(ctx, func(tx *meta.Tx) error {
		rec := meta.DatabaseRecord{
			Label:     opts.Label,
			Comment:   opts.Comment,
			Public:    opts.Public,
			Prefixes:  opts.Prefixes,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.CreateDatabase(path, rec); err != nil {
			return err
		}
		return tx.InsertRemoteRepository(path, OriginRemote, remoteURL)
	})
	if err != nil {
		return nil, mapMetaErr(err)
	}

	defer func() {
		if err == nil {
			return
		}
		switch syncerr.KindOf(err) {
		case syncerr.KindPackFailed, syncerr.KindPackUnexpected:
			// compensate: the database must not survive a bad pack
			if delErr := e.forceDeleteDB(ctx, path); delErr != nil {
				slog.ErrorContext(ctx, "cleaning up failed clone", "db", path, "error", delErr)
			}
		}
	}()

	if _, _, err = e.Fetch(ctx, actx, path, OriginRemote, t); err != nil {
		return nil, err
	}

	err = e.meta.Update(ctx, func(tx *meta.Tx) error {
		ff, err := history.FastForward(ctx, tx, path, DefaultBranch, OriginRemote, DefaultBranch)
		if err != nil {
			return err
		}
		applied = ff.Applied
		return tx.FinalizeDatabase(path)
	})
	if err != nil {
		return nil, mapMetaErr(err)
	}

	slog.InfoContext(ctx, "cloned database", "db", path, "remote", remoteURL, "applied", len(applied))
	return applied, nil
}

func (e *Engine) forceDeleteDB(ctx context.Context, path meta.DBPath) error {
	return e.meta.Update(ctx, func(tx *meta.Tx) error {
		return tx.DeleteDatabase(path)
	})
}
