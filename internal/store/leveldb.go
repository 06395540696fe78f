package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/stratadb/strata/internal/layer"
)

// Key prefixes. Layer bytes and parent pointers are stored under separate
// keys so Parent stays a single point read.
var (
	prefixData   = []byte{'d'}
	prefixParent = []byte{'p'}
)

// LevelDB is a Store backed by a local leveldb database. Safe for
// concurrent use; writes for a layer are applied in one batch so a layer is
// never visible without its parent pointer.
type LevelDB struct {
	db *leveldb.DB
}

var _ Store = (*LevelDB)(nil)

// OpenLevelDB opens (creating if needed) a layer store at path.
func OpenLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{
		Filter: filter.NewBloomFilter(10),
	})
	if ldberrors.IsCorrupted(err) {
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("opening layer store at %s: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

// Put implements Store.
func (s *LevelDB) Put(ctx context.Context, id layer.ID, parent layer.ID, data []byte) (PutResult, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if layer.Hash(data) != id {
		return PutMismatch, nil
	}

	ok, err := s.db.Has(dataKey(id), nil)
	if err != nil {
		return 0, fmt.Errorf("checking layer %s: %w", id, err)
	}
	if ok {
		return PutAlreadyPresent, nil
	}

	batch := new(leveldb.Batch)
	batch.Put(dataKey(id), data)
	batch.Put(parentKey(id), parent.Bytes())
	if err := s.db.Write(batch, nil); err != nil {
		return 0, fmt.Errorf("writing layer %s: %w", id, err)
	}
	return PutOK, nil
}

// Get implements Store.
func (s *LevelDB) Get(ctx context.Context, id layer.ID) (layer.ID, []byte, error) {
	if err := ctx.Err(); err != nil {
		return layer.Zero, nil, err
	}
	data, err := s.db.Get(dataKey(id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return layer.Zero, nil, fmt.Errorf("layer %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return layer.Zero, nil, fmt.Errorf("reading layer %s: %w", id, err)
	}
	parent, err := s.Parent(ctx, id)
	if err != nil {
		return layer.Zero, nil, err
	}
	return parent, data, nil
}

// Parent implements Store.
func (s *LevelDB) Parent(ctx context.Context, id layer.ID) (layer.ID, error) {
	if err := ctx.Err(); err != nil {
		return layer.Zero, err
	}
	raw, err := s.db.Get(parentKey(id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return layer.Zero, fmt.Errorf("layer %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return layer.Zero, fmt.Errorf("reading parent of layer %s: %w", id, err)
	}
	return layer.FromBytes(raw)
}

// Has implements Store.
func (s *LevelDB) Has(ctx context.Context, id layer.ID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok, err := s.db.Has(dataKey(id), nil)
	if err != nil {
		return false, fmt.Errorf("checking layer %s: %w", id, err)
	}
	return ok, nil
}

// Close implements Store.
func (s *LevelDB) Close() error {
	return s.db.Close()
}

func dataKey(id layer.ID) []byte {
	return append(prefixData, id.Bytes()...)
}

func parentKey(id layer.ID) []byte {
	return append(prefixParent, id.Bytes()...)
}
