package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/stratadb/strata/internal/layer"
)

// GraphLayers is the layer tuple a commit references, one per named graph.
// The instance chain is the one exchanged in packs; schema and inference
// layers are optional.
type GraphLayers struct {
	Instance  layer.ID `json:"instance"`
	Schema    layer.ID `json:"schema,omitempty"`
	Inference layer.ID `json:"inference,omitempty"`
}

// Commit is an immutable node in the version DAG.
type Commit struct {
	ID        string      `json:"id"`
	Author    string      `json:"author"`
	Message   string      `json:"message"`
	Timestamp time.Time   `json:"timestamp"`
	Parents   []string    `json:"parents,omitempty"`
	Layers    GraphLayers `json:"layers"`
	Branch    string      `json:"branch,omitempty"`
}

func (t *Tx) createRepo(graph *bolt.Bucket, name string) error {
	repo, err := graph.Bucket(bucketRepos).CreateBucket([]byte(name))
	if err != nil {
		return fmt.Errorf("creating repository %s: %w", name, err)
	}
	for _, b := range [][]byte{bucketBranches, bucketCommits, bucketState} {
		if _, err := repo.CreateBucket(b); err != nil {
			return fmt.Errorf("creating %s bucket for repository %s: %w", b, name, err)
		}
	}
	return nil
}

func (t *Tx) repo(path DBPath, name string) (*bolt.Bucket, error) {
	graph, err := t.graph(path)
	if err != nil {
		return nil, err
	}
	repo := graph.Bucket(bucketRepos).Bucket([]byte(name))
	if repo == nil {
		return nil, fmt.Errorf("repository %s on %s: %w", name, path, ErrRepoNotFound)
	}
	return repo, nil
}

// RepoExists reports whether a repository (local or remote tracking) exists.
func (t *Tx) RepoExists(path DBPath, name string) bool {
	graph, err := t.graph(path)
	if err != nil {
		return false
	}
	return graph.Bucket(bucketRepos).Bucket([]byte(name)) != nil
}

// BranchHead returns a branch's head commit. ok is false when the branch
// does not exist; an existing branch with an empty head is an empty branch.
func (t *Tx) BranchHead(path DBPath, repoName, branch string) (string, bool, error) {
	repo, err := t.repo(path, repoName)
	if err != nil {
		return "", false, err
	}
	raw := repo.Bucket(bucketBranches).Get([]byte(branch))
	if raw == nil {
		return "", false, nil
	}
	return string(raw), true, nil
}

// CreateBranch registers an empty branch.
func (t *Tx) CreateBranch(path DBPath, repoName, branch string) error {
	return t.ResetBranchHead(path, repoName, branch, "")
}

// ResetBranchHead points a branch at a commit, creating the branch if
// needed. The commit must already be in the repository's commit graph.
func (t *Tx) ResetBranchHead(path DBPath, repoName, branch, commitID string) error {
	repo, err := t.repo(path, repoName)
	if err != nil {
		return err
	}
	if commitID != "" {
		if repo.Bucket(bucketCommits).Get([]byte(commitID)) == nil {
			return fmt.Errorf("resetting branch %s to %s: %w", branch, commitID, ErrCommitNotFound)
		}
	}
	if err := repo.Bucket(bucketBranches).Put([]byte(branch), []byte(commitID)); err != nil {
		return fmt.Errorf("writing branch head: %w", err)
	}
	return nil
}

// DeleteBranch removes a branch pointer.
func (t *Tx) DeleteBranch(path DBPath, repoName, branch string) error {
	repo, err := t.repo(path, repoName)
	if err != nil {
		return err
	}
	if repo.Bucket(bucketBranches).Get([]byte(branch)) == nil {
		return fmt.Errorf("branch %s: %w", branch, ErrBranchNotFound)
	}
	return repo.Bucket(bucketBranches).Delete([]byte(branch))
}

// Branches lists a repository's branch names.
func (t *Tx) Branches(path DBPath, repoName string) ([]string, error) {
	repo, err := t.repo(path, repoName)
	if err != nil {
		return nil, err
	}
	var out []string
	err = repo.Bucket(bucketBranches).ForEach(func(name, _ []byte) error {
		out = append(out, string(name))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// InsertCommit records a commit. Idempotent: commits are immutable and
// content-identified, re-inserting an id is a no-op.
func (t *Tx) InsertCommit(path DBPath, repoName string, c Commit) error {
	if c.ID == "" {
		return fmt.Errorf("commit has empty id")
	}
	repo, err := t.repo(path, repoName)
	if err != nil {
		return err
	}
	commits := repo.Bucket(bucketCommits)
	if commits.Get([]byte(c.ID)) != nil {
		return nil
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding commit %s: %w", c.ID, err)
	}
	if err := commits.Put([]byte(c.ID), raw); err != nil {
		return fmt.Errorf("writing commit %s: %w", c.ID, err)
	}
	return nil
}

// Commit returns a commit by id.
func (t *Tx) Commit(path DBPath, repoName, id string) (*Commit, error) {
	repo, err := t.repo(path, repoName)
	if err != nil {
		return nil, err
	}
	raw := repo.Bucket(bucketCommits).Get([]byte(id))
	if raw == nil {
		return nil, fmt.Errorf("commit %s in %s/%s: %w", id, path, repoName, ErrCommitNotFound)
	}
	var c Commit
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decoding commit %s: %w", id, err)
	}
	return &c, nil
}

// HasCommit reports whether a commit is in the repository's graph.
func (t *Tx) HasCommit(path DBPath, repoName, id string) (bool, error) {
	repo, err := t.repo(path, repoName)
	if err != nil {
		return false, err
	}
	return repo.Bucket(bucketCommits).Get([]byte(id)) != nil, nil
}

// HeadLayer returns the repository's head layer, zero when the repository
// has no commits.
func (t *Tx) HeadLayer(path DBPath, repoName string) (layer.ID, error) {
	repo, err := t.repo(path, repoName)
	if err != nil {
		return layer.Zero, err
	}
	raw := repo.Bucket(bucketState).Get(keyHeadLayer)
	if raw == nil {
		return layer.Zero, nil
	}
	return layer.FromBytes(raw)
}

// SetHeadLayer records the repository's head layer.
func (t *Tx) SetHeadLayer(path DBPath, repoName string, id layer.ID) error {
	repo, err := t.repo(path, repoName)
	if err != nil {
		return err
	}
	if err := repo.Bucket(bucketState).Put(keyHeadLayer, id.Bytes()); err != nil {
		return fmt.Errorf("writing head layer: %w", err)
	}
	return nil
}

// Graph adapts a repository's commit parents to the DAG walker.
type Graph struct {
	tx   *Tx
	path DBPath
	repo string
}

// CommitParents resolves a commit's parents within this repository.
func (g Graph) CommitParents(_ context.Context, id string) ([]string, error) {
	c, err := g.tx.Commit(g.path, g.repo, id)
	if err != nil {
		return nil, err
	}
	return c.Parents, nil
}

// CommitGraph returns the repository's commit-parent resolver, valid for
// the lifetime of the transaction.
func (t *Tx) CommitGraph(path DBPath, repoName string) Graph {
	return Graph{tx: t, path: path, repo: repoName}
}
