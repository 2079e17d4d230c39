package storage

import (
	"errors"

	"github.com/cockroachdb/pebble"
)

// PebbleDB stores state in a Pebble LSM tree.
type PebbleDB struct {
	db *pebble.DB
}

// NewPebbleDB opens (or creates) a Pebble store in dir.
func NewPebbleDB(dir string) (*PebbleDB, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleDB{db: db}, nil
}

func (p *PebbleDB) Put(key []byte, value []byte) error {
	return p.db.Set(key, value, pebble.Sync)
}

func (p *PebbleDB) Get(key []byte) ([]byte, error) {
	value, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), value...), nil
}

func (p *PebbleDB) Delete(key []byte) error {
	return p.db.Delete(key, pebble.Sync)
}

func (p *PebbleDB) Write(batch *Batch) error {
	native := p.db.NewBatch()
	defer native.Close()
	if err := batch.Replay(func(key, value []byte, del bool) error {
		if del {
			return native.Delete(key, nil)
		}
		return native.Set(key, value, nil)
	}); err != nil {
		return err
	}
	return native.Commit(pebble.Sync)
}

func (p *PebbleDB) Close() {
	if p == nil || p.db == nil {
		return
	}
	_ = p.db.Close()
}
