package meta

import (
	"encoding/json"
	"fmt"
)

// CreateDatabase registers an unfinalized database and its graph buckets.
func (t *Tx) CreateDatabase(path DBPath, rec DatabaseRecord) error {
	dbs := t.tx.Bucket(bucketDatabases)
	key := []byte(path.String())
	if dbs.Get(key) != nil {
		return fmt.Errorf("database %s: %w", path, ErrDatabaseExists)
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding database record: %w", err)
	}
	if err := dbs.Put(key, raw); err != nil {
		return fmt.Errorf("writing database record: %w", err)
	}

	graph, err := t.tx.Bucket(bucketGraphs).CreateBucket(key)
	if err != nil {
		return fmt.Errorf("creating graph bucket for %s: %w", path, err)
	}
	for _, name := range [][]byte{bucketRemotes, bucketHeads, bucketRepos} {
		if _, err := graph.CreateBucket(name); err != nil {
			return fmt.Errorf("creating %s bucket for %s: %w", name, path, err)
		}
	}
	// every database carries its own local repository
	return t.createRepo(graph, LocalRepo)
}

// Database returns a database record.
func (t *Tx) Database(path DBPath) (*DatabaseRecord, error) {
	raw := t.tx.Bucket(bucketDatabases).Get([]byte(path.String()))
	if raw == nil {
		return nil, fmt.Errorf("database %s: %w", path, ErrDatabaseNotFound)
	}
	var rec DatabaseRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decoding database record for %s: %w", path, err)
	}
	return &rec, nil
}

// DatabaseExists reports whether a database is registered, finalized or not.
func (t *Tx) DatabaseExists(path DBPath) bool {
	return t.tx.Bucket(bucketDatabases).Get([]byte(path.String())) != nil
}

// FinalizeDatabase sets a database's Finalized flag.
func (t *Tx) FinalizeDatabase(path DBPath) error {
	rec, err := t.Database(path)
	if err != nil {
		return err
	}
	rec.Finalized = true
	return t.putDatabase(path, rec)
}

// SetPrefixes replaces a database's prefix table.
func (t *Tx) SetPrefixes(path DBPath, prefixes map[string]string) error {
	rec, err := t.Database(path)
	if err != nil {
		return err
	}
	rec.Prefixes = prefixes
	return t.putDatabase(path, rec)
}

// DeleteDatabase removes a database record and its entire graph. Layers are
// left in the layer store; they are content addressed and referenced by
// nothing.
func (t *Tx) DeleteDatabase(path DBPath) error {
	key := []byte(path.String())
	dbs := t.tx.Bucket(bucketDatabases)
	if dbs.Get(key) == nil {
		return fmt.Errorf("database %s: %w", path, ErrDatabaseNotFound)
	}
	if err := dbs.Delete(key); err != nil {
		return fmt.Errorf("deleting database record: %w", err)
	}
	if err := t.tx.Bucket(bucketGraphs).DeleteBucket(key); err != nil {
		return fmt.Errorf("deleting graph for %s: %w", path, err)
	}
	return nil
}

func (t *Tx) putDatabase(path DBPath, rec *DatabaseRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding database record: %w", err)
	}
	if err := t.tx.Bucket(bucketDatabases).Put([]byte(path.String()), raw); err != nil {
		return fmt.Errorf("writing database record: %w", err)
	}
	return nil
}
