package storage

import (
	"errors"
	"sync"
)

var (
	// ErrNotFound is returned when no record is stored under a key.
	ErrNotFound = errors.New("storage: key not found")
	// ErrExists is returned by Insert when the key is already occupied.
	ErrExists = errors.New("storage: key already exists")
	// ErrClosed is returned once the database has been closed.
	ErrClosed = errors.New("storage: database closed")
)

// Reader exposes read access to the keyed records visible to a transaction.
type Reader interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
}

// Writer extends Reader with mutations. Insert is create-only and is the
// primitive used to guarantee at most one record per derived address.
type Writer interface {
	Reader
	Put(key, value []byte) error
	Insert(key, value []byte) error
	Delete(key []byte) error
}

// Database is a generic interface for a transactional key-value store.
// Update runs fn in a read-write transaction that commits only when fn
// returns nil; any error discards every write made inside it.
type Database interface {
	View(fn func(Reader) error) error
	Update(fn func(Writer) error) error
	Close() error
}

// Get reads a single key outside of an explicit transaction.
func Get(db Database, key []byte) ([]byte, error) {
	var out []byte
	err := db.View(func(r Reader) error {
		value, err := r.Get(key)
		if err != nil {
			return err
		}
		out = value
		return nil
	})
	return out, err
}

// Put writes a single key outside of an explicit transaction.
func Put(db Database, key, value []byte) error {
	return db.Update(func(w Writer) error { return w.Put(key, value) })
}

// --- In-Memory DB (for testing) ---

// MemDB keeps records in a map. Update transactions are serialised and
// buffered in an overlay that is applied only on success.
type MemDB struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

func NewMemDB() *MemDB {
	return &MemDB{
		data: make(map[string][]byte),
	}
}

func (db *MemDB) View(fn func(Reader) error) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return ErrClosed
	}
	return fn(&memTx{base: db.data})
}

func (db *MemDB) Update(fn func(Writer) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}
	tx := &memTx{
		base:    db.data,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
	if err := fn(tx); err != nil {
		return err
	}
	for key := range tx.deletes {
		delete(db.data, key)
	}
	for key, value := range tx.writes {
		db.data[key] = value
	}
	return nil
}

// Len reports the number of committed records.
func (db *MemDB) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.data)
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.closed = true
	return nil
}

type memTx struct {
	base    map[string][]byte
	writes  map[string][]byte
	deletes map[string]struct{}
}

func (tx *memTx) Get(key []byte) ([]byte, error) {
	k := string(key)
	if tx.writes != nil {
		if value, ok := tx.writes[k]; ok {
			return append([]byte(nil), value...), nil
		}
		if _, ok := tx.deletes[k]; ok {
			return nil, ErrNotFound
		}
	}
	value, ok := tx.base[k]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (tx *memTx) Has(key []byte) (bool, error) {
	_, err := tx.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (tx *memTx) Put(key, value []byte) error {
	if tx.writes == nil {
		return errors.New("storage: write in read-only transaction")
	}
	k := string(key)
	delete(tx.deletes, k)
	tx.writes[k] = append([]byte(nil), value...)
	return nil
}

func (tx *memTx) Insert(key, value []byte) error {
	exists, err := tx.Has(key)
	if err != nil {
		return err
	}
	if exists {
		return ErrExists
	}
	return tx.Put(key, value)
}

func (tx *memTx) Delete(key []byte) error {
	if tx.writes == nil {
		return errors.New("storage: write in read-only transaction")
	}
	k := string(key)
	delete(tx.writes, k)
	tx.deletes[k] = struct{}{}
	return nil
}
