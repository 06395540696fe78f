package meta

import (
	"encoding/json"
	"fmt"

	"github.com/stratadb/strata/internal/layer"
)

// AddRemote registers a remote by name. The remote's tracking head starts
// unknown; a fetch must establish it before pushes are allowed.
func (t *Tx) AddRemote(path DBPath, name, url string, typ RemoteType) error {
	graph, err := t.graph(path)
	if err != nil {
		return err
	}
	remotes := graph.Bucket(bucketRemotes)
	if remotes.Get([]byte(name)) != nil {
		return fmt.Errorf("remote %s on %s: %w", name, path, ErrRemoteExists)
	}
	raw, err := json.Marshal(RemoteRecord{Name: name, URL: url, Type: typ})
	if err != nil {
		return fmt.Errorf("encoding remote record: %w", err)
	}
	if err := remotes.Put([]byte(name), raw); err != nil {
		return fmt.Errorf("writing remote record: %w", err)
	}
	// remote tracking repository for the new remote
	return t.createRepo(graph, name)
}

// InsertRemoteRepository registers a remote whose baseline is known empty:
// the tracking head is recorded as the zero layer rather than absent. Used
// by clone (fresh origin) and by the synthetic bundle remote.
func (t *Tx) InsertRemoteRepository(path DBPath, name, url string) error {
	if err := t.AddRemote(path, name, url, RemoteTypeRemote); err != nil {
		return err
	}
	return t.UpdateRepositoryHead(path, name, layer.Zero)
}

// RemoveRemote deletes a remote, its tracking head, and its tracking
// repository.
func (t *Tx) RemoveRemote(path DBPath, name string) error {
	graph, err := t.graph(path)
	if err != nil {
		return err
	}
	remotes := graph.Bucket(bucketRemotes)
	if remotes.Get([]byte(name)) == nil {
		return fmt.Errorf("remote %s on %s: %w", name, path, ErrRemoteNotFound)
	}
	if err := remotes.Delete([]byte(name)); err != nil {
		return fmt.Errorf("deleting remote record: %w", err)
	}
	if err := graph.Bucket(bucketHeads).Delete([]byte(name)); err != nil {
		return fmt.Errorf("deleting remote head: %w", err)
	}
	if graph.Bucket(bucketRepos).Bucket([]byte(name)) != nil {
		if err := graph.Bucket(bucketRepos).DeleteBucket([]byte(name)); err != nil {
			return fmt.Errorf("deleting tracking repository: %w", err)
		}
	}
	return nil
}

// Remote returns a remote record.
func (t *Tx) Remote(path DBPath, name string) (*RemoteRecord, error) {
	graph, err := t.graph(path)
	if err != nil {
		return nil, err
	}
	raw := graph.Bucket(bucketRemotes).Get([]byte(name))
	if raw == nil {
		return nil, fmt.Errorf("remote %s on %s: %w", name, path, ErrRemoteNotFound)
	}
	var rec RemoteRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decoding remote record: %w", err)
	}
	return &rec, nil
}

// Remotes lists the remotes registered on a database.
func (t *Tx) Remotes(path DBPath) ([]RemoteRecord, error) {
	graph, err := t.graph(path)
	if err != nil {
		return nil, err
	}
	var out []RemoteRecord
	err = graph.Bucket(bucketRemotes).ForEach(func(_, raw []byte) error {
		var rec RemoteRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("decoding remote record: %w", err)
		}
		out = append(out, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RepositoryHead returns the last observed layer id for a remote. known is
// false when the remote has never been fetched; a known zero head means the
// remote was observed empty.
func (t *Tx) RepositoryHead(path DBPath, remote string) (layer.ID, bool, error) {
	graph, err := t.graph(path)
	if err != nil {
		return layer.Zero, false, err
	}
	raw := graph.Bucket(bucketHeads).Get([]byte(remote))
	if raw == nil {
		return layer.Zero, false, nil
	}
	id, err := layer.FromBytes(raw)
	if err != nil {
		return layer.Zero, false, fmt.Errorf("decoding head of remote %s: %w", remote, err)
	}
	return id, true, nil
}

// UpdateRepositoryHead records the last observed layer id for a remote.
func (t *Tx) UpdateRepositoryHead(path DBPath, remote string, id layer.ID) error {
	graph, err := t.graph(path)
	if err != nil {
		return err
	}
	if err := graph.Bucket(bucketHeads).Put([]byte(remote), id.Bytes()); err != nil {
		return fmt.Errorf("writing head of remote %s: %w", remote, err)
	}
	return nil
}
