// Package cli defines the strata CLI commands.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/stratadb/strata/internal/actions"
	"github.com/stratadb/strata/internal/syncerr"
)

// Exit codes: 0 success, 1 user error, 2 remote or protocol error,
// 3 internal error.
const (
	ExitOK       = 0
	ExitUser     = 1
	ExitRemote   = 2
	ExitInternal = 3
)

// ExitCode maps an error onto the CLI exit code contract.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch syncerr.KindOf(err) {
	case syncerr.KindUnauthorized, syncerr.KindNotFound,
		syncerr.KindPushRequiresBranch, syncerr.KindPushNonRemote,
		syncerr.KindPushNoRepositoryHead, syncerr.KindRemoteNotEmpty,
		syncerr.KindDatabaseExists:
		return ExitUser
	case syncerr.KindRemoteDiverged, syncerr.KindNoCommonHistory,
		syncerr.KindNetwork, syncerr.KindPackFailed, syncerr.KindPackUnexpected,
		syncerr.KindChecksumMismatch, syncerr.KindRemoteUnpack:
		return ExitRemote
	default:
		return ExitInternal
	}
}

// NewCLI creates the base strata command.
func NewCLI(version string) *cobra.Command {
	cfg, cfgErr := LoadConfig()

	base := &actions.Strata{
		DataDir:      cfg.DataDir,
		Token:        cfg.Token,
		TUSThreshold: cfg.Transfer.TUSThreshold,
		ChunkSize:    cfg.Transfer.ChunkSize,
	}

	cmd := &cobra.Command{
		Use:           "strata",
		Short:         "A versioned, content-addressed graph database synchronization server.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cfgErr != nil {
				return cfgErr
			}
			base.Out = cmd.OutOrStdout()
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&base.DataDir, "data-dir", base.DataDir, "data directory")
	flags.StringVar(&base.Token, "token", base.Token, "bearer token for remote operations")
	flags.BoolVar(&base.JSON, "json", false, "machine-readable output")

	cmd.AddCommand(
		newServeCmd(base, cfg),
		newCloneCmd(base),
		newFetchCmd(base),
		newPushCmd(base),
		newPullCmd(base),
		newBundleCmd(base),
		newUnbundleCmd(base),
		newLogCmd(base),
	)
	return cmd
}

func newServeCmd(base *actions.Strata, cfg Config) *cobra.Command {
	action := &actions.Serve{
		Strata:     base,
		Listen:     cfg.Listen,
		AuthSecret: cfg.Auth.Secret,
		Anonymous:  cfg.Auth.Anonymous,
	}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the synchronization API.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return action.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&action.Listen, "listen", action.Listen, "listen address")
	cmd.Flags().BoolVar(&action.Anonymous, "anonymous", action.Anonymous, "grant full access without tokens (development)")
	return cmd
}

func newCloneCmd(base *actions.Strata) *cobra.Command {
	action := &actions.Clone{Strata: base}
	cmd := &cobra.Command{
		Use:   "clone REMOTE-URL ORGANIZATION/DATABASE",
		Short: "Clone a remote database.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action.RemoteURL = args[0]
			action.Path = args[1]
			return action.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&action.Label, "label", "", "database label")
	cmd.Flags().StringVar(&action.Comment, "comment", "", "database comment")
	cmd.Flags().BoolVar(&action.Public, "public", false, "mark the database public")
	return cmd
}

func newFetchCmd(base *actions.Strata) *cobra.Command {
	action := &actions.Fetch{Strata: base}
	cmd := &cobra.Command{
		Use:   "fetch ORGANIZATION/DATABASE",
		Short: "Fetch a remote's new layers.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action.Path = args[0]
			return action.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&action.Remote, "remote", "origin", "remote name")
	return cmd
}

func newPushCmd(base *actions.Strata) *cobra.Command {
	action := &actions.Push{Strata: base}
	cmd := &cobra.Command{
		Use:   "push ORGANIZATION/DATABASE",
		Short: "Push local commits to a remote.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action.Path = args[0]
			return action.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&action.Remote, "remote", "origin", "remote name")
	cmd.Flags().StringVar(&action.Branch, "branch", "", "branch to push (default main)")
	return cmd
}

func newPullCmd(base *actions.Strata) *cobra.Command {
	action := &actions.Pull{Strata: base}
	cmd := &cobra.Command{
		Use:   "pull ORGANIZATION/DATABASE",
		Short: "Fetch and fast-forward the local branch.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action.Path = args[0]
			return action.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&action.Remote, "remote", "origin", "remote name")
	cmd.Flags().StringVar(&action.Branch, "branch", "", "local branch (default main)")
	cmd.Flags().StringVar(&action.RemoteBranch, "remote-branch", "", "remote branch (default the local branch)")
	return cmd
}

func newBundleCmd(base *actions.Strata) *cobra.Command {
	action := &actions.Bundle{Strata: base}
	cmd := &cobra.Command{
		Use:   "bundle ORGANIZATION/DATABASE",
		Short: "Write a database's history to a bundle file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action.Path = args[0]
			return action.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&action.Branch, "branch", "", "branch to bundle (default main)")
	cmd.Flags().StringVarP(&action.Output, "output", "o", "strata.bundle", "output file")
	return cmd
}

func newUnbundleCmd(base *actions.Strata) *cobra.Command {
	action := &actions.Unbundle{Strata: base}
	cmd := &cobra.Command{
		Use:   "unbundle ORGANIZATION/DATABASE FILE",
		Short: "Apply a bundle file to a database.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action.Path = args[0]
			action.File = args[1]
			return action.Run(cmd.Context())
		},
	}
	return cmd
}

func newLogCmd(base *actions.Strata) *cobra.Command {
	action := &actions.Log{Strata: base}
	cmd := &cobra.Command{
		Use:   "log ORGANIZATION/DATABASE",
		Short: "List a branch's commit history.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action.Path = args[0]
			return action.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&action.Branch, "branch", "", "branch (default main)")
	return cmd
}
