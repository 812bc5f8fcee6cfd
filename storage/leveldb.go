package storage

import (
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
)

// LevelDB is a persistent key-value store using LevelDB. Writes go through
// leveldb transactions; reads use point-in-time snapshots.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

func (ldb *LevelDB) View(fn func(Reader) error) error {
	snap, err := ldb.db.GetSnapshot()
	if err != nil {
		return err
	}
	defer snap.Release()
	return fn(&levelSnapshot{snap: snap})
}

// Update opens a leveldb transaction. leveldb allows only one open
// transaction at a time, which also serialises writers.
func (ldb *LevelDB) Update(fn func(Writer) error) error {
	tr, err := ldb.db.OpenTransaction()
	if err != nil {
		return err
	}
	if err := fn(&levelTx{tr: tr}); err != nil {
		tr.Discard()
		return err
	}
	return tr.Commit()
}

// Close closes the database connection.
func (ldb *LevelDB) Close() error {
	return ldb.db.Close()
}

func mapLevelErr(err error) error {
	if errors.Is(err, leveldb.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

type levelSnapshot struct {
	snap *leveldb.Snapshot
}

func (s *levelSnapshot) Get(key []byte) ([]byte, error) {
	value, err := s.snap.Get(key, nil)
	if err != nil {
		return nil, mapLevelErr(err)
	}
	return value, nil
}

func (s *levelSnapshot) Has(key []byte) (bool, error) {
	return s.snap.Has(key, nil)
}

type levelTx struct {
	tr *leveldb.Transaction
}

func (tx *levelTx) Get(key []byte) ([]byte, error) {
	value, err := tx.tr.Get(key, nil)
	if err != nil {
		return nil, mapLevelErr(err)
	}
	return value, nil
}

func (tx *levelTx) Has(key []byte) (bool, error) {
	return tx.tr.Has(key, nil)
}

func (tx *levelTx) Put(key, value []byte) error {
	return tx.tr.Put(key, value, nil)
}

func (tx *levelTx) Insert(key, value []byte) error {
	exists, err := tx.tr.Has(key, nil)
	if err != nil {
		return err
	}
	if exists {
		return ErrExists
	}
	return tx.tr.Put(key, value, nil)
}

func (tx *levelTx) Delete(key []byte) error {
	return tx.tr.Delete(key, nil)
}
