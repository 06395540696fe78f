package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stratadb/strata/internal/syncerr"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"Success", nil, ExitOK},
		{"Unauthorized", syncerr.New(syncerr.KindUnauthorized, "no"), ExitUser},
		{"NotFound", syncerr.New(syncerr.KindNotFound, "missing"), ExitUser},
		{"BadPush", syncerr.New(syncerr.KindPushNoRepositoryHead, "fetch first"), ExitUser},
		{"Diverged", syncerr.Diverged([]string{"c2"}), ExitRemote},
		{"Network", syncerr.New(syncerr.KindNetwork, "refused"), ExitRemote},
		{"PackFailed", syncerr.PackFailed("checksum_mismatch", nil), ExitRemote},
		{"Wrapped", fmt.Errorf("pull: %w", syncerr.New(syncerr.KindNoCommonHistory, "unrelated")), ExitRemote},
		{"Internal", errors.New("boom"), ExitInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestNewCLI(t *testing.T) {
	cmd := NewCLI("test")
	assert.Equal(t, "strata", cmd.Use)

	names := make([]string, 0)
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	for _, want := range []string{"serve", "clone", "fetch", "push", "pull", "bundle", "unbundle", "log"} {
		assert.Contains(t, names, want)
	}
}
