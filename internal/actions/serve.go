package actions

import (
	"context"
	"path/filepath"

	"github.com/stratadb/strata/internal/api"
)

// Serve hosts the synchronization API.
type Serve struct {
	*Strata

	Listen     string
	AuthSecret string
	Anonymous  bool
}

// Run blocks serving the API until ctx is cancelled.
func (action *Serve) Run(ctx context.Context) error {
	engine, closer, err := action.openEngine()
	if err != nil {
		return err
	}
	defer closer()

	srv, err := api.NewServer(engine, api.Config{
		AuthSecret:    []byte(action.AuthSecret),
		Anonymous:     action.Anonymous,
		UploadDir:     filepath.Join(action.DataDir, "uploads"),
		OutboundToken: action.Token,
		TUSThreshold:  action.TUSThreshold,
	})
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx, action.Listen)
}
