// Package meta implements the repository metadata graph: databases, remotes,
// remote tracking heads, branches, and the commit DAG. All reads and writes
// happen inside a transaction; a top-level synchronization phase maps to one
// transaction, committed only once its invariants are re-established.
// Transactions never span network I/O.
package meta

import (
	"context"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Sentinel errors. Engines map these onto the synchronization error
// taxonomy at their boundary.
var (
	ErrDatabaseExists   = errors.New("database already exists")
	ErrDatabaseNotFound = errors.New("database not found")
	ErrRemoteExists     = errors.New("remote already exists")
	ErrRemoteNotFound   = errors.New("remote not found")
	ErrRepoNotFound     = errors.New("repository not found")
	ErrBranchNotFound   = errors.New("branch not found")
	ErrCommitNotFound   = errors.New("commit not found")
)

// LocalRepo is the repository name of a database's own commit graph. Remote
// tracking repositories are named after their remote.
const LocalRepo = "local"

// DBPath addresses a database as an organization/name pair.
type DBPath struct {
	Org  string
	Name string
}

// String renders the path as "org/name".
func (p DBPath) String() string {
	return p.Org + "/" + p.Name
}

// BranchPath addresses a branch of a database's local repository.
type BranchPath struct {
	DBPath
	Branch string
}

// String renders the path as "org/name/local/branch/name".
func (p BranchPath) String() string {
	return p.DBPath.String() + "/local/branch/" + p.Branch
}

// RemoteType distinguishes same-process repositories from network remotes.
type RemoteType string

const (
	// RemoteTypeLocal marks a remote served by this process.
	RemoteTypeLocal RemoteType = "local"
	// RemoteTypeRemote marks a network remote.
	RemoteTypeRemote RemoteType = "remote"
)

// RemoteRecord describes a registered remote.
type RemoteRecord struct {
	Name string     `json:"name"`
	URL  string     `json:"url"`
	Type RemoteType `json:"type"`
}

// DatabaseRecord describes a database. Finalized is set when a clone
// completes; lookups do not consult it, so an unfinalized database is
// reachable like any other. Clone compensation deletes a database whose pack
// failed.
type DatabaseRecord struct {
	Label     string            `json:"label,omitempty"`
	Comment   string            `json:"comment,omitempty"`
	Public    bool              `json:"public,omitempty"`
	Finalized bool              `json:"finalized"`
	Prefixes  map[string]string `json:"prefixes,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Bucket layout:
//
//	databases/<org/name>            -> DatabaseRecord
//	graphs/<org/name>/remotes/<r>   -> RemoteRecord
//	graphs/<org/name>/heads/<r>     -> 20-byte layer id (presence = known)
//	graphs/<org/name>/repos/<repo>/branches/<b> -> commit id
//	graphs/<org/name>/repos/<repo>/commits/<c>  -> Commit
//	graphs/<org/name>/repos/<repo>/state/headlayer -> 20-byte layer id
var (
	bucketDatabases = []byte("databases")
	bucketGraphs    = []byte("graphs")
	bucketRemotes   = []byte("remotes")
	bucketHeads     = []byte("heads")
	bucketRepos     = []byte("repos")
	bucketBranches  = []byte("branches")
	bucketCommits   = []byte("commits")
	bucketState     = []byte("state")

	keyHeadLayer = []byte("headlayer")
)

// Store is the metadata graph. bbolt gives strict serializability: one
// writer at a time, readers on consistent snapshots, which satisfies the
// branch-head atomicity requirement.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the metadata graph at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening metadata graph at %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketDatabases, bucketGraphs} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the backing file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Tx is a metadata transaction handle.
type Tx struct {
	tx       *bolt.Tx
	writable bool
}

// Update runs fn in a writable transaction. All mutations commit together
// or not at all.
func (s *Store) Update(ctx context.Context, fn func(*Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(&Tx{tx: tx, writable: true})
	})
}

// View runs fn in a read-only transaction.
func (s *Store) View(ctx context.Context, fn func(*Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bolt.Tx) error {
		return fn(&Tx{tx: tx})
	})
}

// graph returns the per-database bucket, or ErrDatabaseNotFound.
func (t *Tx) graph(path DBPath) (*bolt.Bucket, error) {
	b := t.tx.Bucket(bucketGraphs).Bucket([]byte(path.String()))
	if b == nil {
		return nil, fmt.Errorf("database %s: %w", path, ErrDatabaseNotFound)
	}
	return b, nil
}
