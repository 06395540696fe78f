// Package dag walks layer and commit ancestry. Layer chains are linear
// (parent pointers); commit history is a DAG (merge commits have several
// parents).
package dag

import (
	"context"
	"log/slog"

	"github.com/stratadb/strata/internal/layer"
)

// ParentLookup resolves a layer's parent pointer. Satisfied by store.Store.
type ParentLookup interface {
	Parent(ctx context.Context, id layer.ID) (layer.ID, error)
}

// ChildUntilParents returns the layer chain [current, current.parent, ...],
// stopping when the baseline is reached (exclusive) or the chain terminates
// at a base layer. A zero baseline means full history.
//
// A baseline that is not on the chain yields the entire chain. Protocol
// compatibility requires this graceful degradation: a requester holding an
// unknown baseline receives a full pack, not an error.
func ChildUntilParents(ctx context.Context, parents ParentLookup, current, baseline layer.ID) ([]layer.ID, error) {
	var chain []layer.ID
	for id := current; !id.IsZero(); {
		if id == baseline {
			return chain, nil
		}
		chain = append(chain, id)
		parent, err := parents.Parent(ctx, id)
		if err != nil {
			return nil, err
		}
		id = parent
	}
	if !baseline.IsZero() {
		slog.DebugContext(ctx, "baseline not on layer chain, returning full history",
			"baseline", baseline, "head", current)
	}
	return chain, nil
}
