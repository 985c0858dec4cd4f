package state

import (
	"sync"

	"github.com/Tabellio/cosmoswap/storage"
)

// Overlay stages writes on top of a base database until Commit flushes them.
// The host runs every inbound call against a fresh overlay so the call's
// state writes land all together or not at all.
type Overlay struct {
	mu      sync.Mutex
	base    storage.Database
	writes  map[string][]byte
	deletes map[string]struct{}
}

// NewOverlay wraps the base database with an empty write buffer.
func NewOverlay(base storage.Database) *Overlay {
	return &Overlay{
		base:    base,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

func (o *Overlay) Put(key []byte, value []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	k := string(key)
	delete(o.deletes, k)
	o.writes[k] = append([]byte(nil), value...)
	return nil
}

func (o *Overlay) Get(key []byte) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	k := string(key)
	if _, gone := o.deletes[k]; gone {
		return nil, storage.ErrNotFound
	}
	if value, ok := o.writes[k]; ok {
		return append([]byte(nil), value...), nil
	}
	return o.base.Get(key)
}

func (o *Overlay) Has(key []byte) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	k := string(key)
	if _, gone := o.deletes[k]; gone {
		return false, nil
	}
	if _, ok := o.writes[k]; ok {
		return true, nil
	}
	return o.base.Has(key)
}

func (o *Overlay) Delete(key []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	k := string(key)
	delete(o.writes, k)
	o.deletes[k] = struct{}{}
	return nil
}

// WriteBatch stages the supplied puts and deletes like individual calls
// would; they reach the base only on Commit.
func (o *Overlay) WriteBatch(puts map[string][]byte, deletes map[string]struct{}) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for k := range deletes {
		delete(o.writes, k)
		o.deletes[k] = struct{}{}
	}
	for k, value := range puts {
		delete(o.deletes, k)
		o.writes[k] = append([]byte(nil), value...)
	}
	return nil
}

// Commit flushes the staged writes and deletes to the base database as one
// atomic batch, so the base never holds a partially applied unit.
func (o *Overlay) Commit() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.writes) == 0 && len(o.deletes) == 0 {
		return nil
	}
	if err := o.base.WriteBatch(o.writes, o.deletes); err != nil {
		return err
	}
	o.writes = make(map[string][]byte)
	o.deletes = make(map[string]struct{})
	return nil
}

// Discard drops the staged writes without touching the base database.
func (o *Overlay) Discard() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writes = make(map[string][]byte)
	o.deletes = make(map[string]struct{})
}

// Close satisfies storage.Database; the base stays open.
func (o *Overlay) Close() {}
