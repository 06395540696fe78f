package actions

import (
	"context"
	"fmt"

	"github.com/muesli/termenv"

	"github.com/stratadb/strata/internal/history"
	"github.com/stratadb/strata/internal/meta"
)

// Log lists a branch's commit ancestry, newest first.
type Log struct {
	*Strata

	Path   string
	Branch string
}

// logEntry is the JSON shape of one commit in log output.
type logEntry struct {
	ID        string   `json:"id"`
	Author    string   `json:"author"`
	Message   string   `json:"message"`
	Timestamp string   `json:"timestamp"`
	Parents   []string `json:"parents,omitempty"`
	Layer     string   `json:"layer"`
}

// Run executes the log listing.
func (action *Log) Run(ctx context.Context) error {
	branch, err := parseBranchPath(action.Path, action.Branch)
	if err != nil {
		return err
	}

	engine, closer, err := action.openEngine()
	if err != nil {
		return err
	}
	defer closer()

	var commits []meta.Commit
	err = engine.Meta().View(ctx, func(tx *meta.Tx) error {
		var err error
		commits, err = history.AncestryPath(ctx, tx, branch.DBPath, meta.LocalRepo, branch.Branch)
		return err
	})
	if err != nil {
		return err
	}

	if action.JSON {
		entries := make([]logEntry, 0, len(commits))
		for _, c := range commits {
			entries = append(entries, logEntry{
				ID:        c.ID,
				Author:    c.Author,
				Message:   c.Message,
				Timestamp: c.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
				Parents:   c.Parents,
				Layer:     c.Layers.Instance.Hex(),
			})
		}
		return action.emit(entries, "")
	}

	out := termenv.NewOutput(action.Out)
	for _, c := range commits {
		fmt.Fprintf(action.Out, "%s %s\n",
			out.String(c.ID[:12]).Foreground(out.Color("3")),
			c.Message)
		fmt.Fprintf(action.Out, "    %s  %s\n", c.Author, c.Timestamp.Format("2006-01-02 15:04:05"))
	}
	return nil
}
