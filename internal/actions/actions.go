// Package actions implements the CLI verbs. Each verb is a struct holding
// its dependencies and flag values with a Run method; the cli package wires
// them to cobra commands.
package actions

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/stratadb/strata/internal/auth"
	"github.com/stratadb/strata/internal/meta"
	"github.com/stratadb/strata/internal/repo"
	"github.com/stratadb/strata/internal/store"
	"github.com/stratadb/strata/internal/syncerr"
	"github.com/stratadb/strata/internal/transport"
)

// Strata is the base action: shared configuration and output plumbing.
type Strata struct {
	// DataDir holds the layer store and metadata graph.
	DataDir string
	// Token authenticates against remote servers.
	Token string
	// JSON switches output to the machine-readable envelope.
	JSON bool
	// TUSThreshold and ChunkSize tune large payload transfer.
	TUSThreshold int64
	ChunkSize    int64

	Out io.Writer
}

// openEngine opens the data directory's stores. The returned closer
// releases both.
func (a *Strata) openEngine() (*repo.Engine, func(), error) {
	st, err := store.OpenLevelDB(filepath.Join(a.DataDir, "layers"))
	if err != nil {
		return nil, nil, err
	}
	ms, err := meta.Open(filepath.Join(a.DataDir, "meta.db"))
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	closer := func() {
		_ = ms.Close()
		_ = st.Close()
	}
	return repo.New(st, ms), closer, nil
}

// transport builds the outbound HTTP transport for remote operations.
func (a *Strata) transport() transport.Transport {
	return transport.NewHTTP(transport.HTTPOptions{
		Token:        a.Token,
		TUSThreshold: a.TUSThreshold,
		ChunkSize:    a.ChunkSize,
	})
}

// authContext is the capability context CLI operations run under: the CLI
// owns its data directory.
func (a *Strata) authContext() *auth.Context {
	return auth.System()
}

// emit writes either the envelope value as JSON or the human line.
func (a *Strata) emit(envelope any, human string) error {
	if a.JSON {
		enc := json.NewEncoder(a.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(envelope)
	}
	_, err := fmt.Fprintln(a.Out, human)
	return err
}

// parseDBPath parses an organization/database argument.
func parseDBPath(arg string) (meta.DBPath, error) {
	parts := strings.Split(arg, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return meta.DBPath{}, syncerr.New(syncerr.KindNotFound,
			"path %q must have the form organization/database", arg)
	}
	return meta.DBPath{Org: parts[0], Name: parts[1]}, nil
}

// parseBranchPath parses organization/database with an optional branch
// flag, defaulting to main.
func parseBranchPath(arg, branch string) (meta.BranchPath, error) {
	path, err := parseDBPath(arg)
	if err != nil {
		return meta.BranchPath{}, err
	}
	if branch == "" {
		branch = repo.DefaultBranch
	}
	return meta.BranchPath{DBPath: path, Branch: branch}, nil
}
