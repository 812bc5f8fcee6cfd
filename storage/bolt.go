package storage

import (
	"errors"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketRecords = []byte("records")

// BoltDB is a persistent store backed by a single bbolt bucket. bbolt
// transactions are fully ACID, so Update maps one-to-one onto db.Update.
type BoltDB struct {
	db *bolt.DB
}

// NewBoltDB opens (or creates) a bbolt database at path. Read-only handles
// never create the records bucket; reads against a fresh file find nothing.
func NewBoltDB(path string, options *bolt.Options) (*BoltDB, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	if options.ReadOnly {
		return &BoltDB{db: db}, nil
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRecords)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltDB{db: db}, nil
}

func (b *BoltDB) View(fn func(Reader) error) error {
	return b.db.View(func(tx *bolt.Tx) error {
		return fn(&boltTx{bucket: tx.Bucket(bucketRecords)})
	})
}

func (b *BoltDB) Update(fn func(Writer) error) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return fn(&boltTx{bucket: tx.Bucket(bucketRecords), writable: true})
	})
}

// Close releases the underlying Bolt database handle.
func (b *BoltDB) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

type boltTx struct {
	bucket   *bolt.Bucket
	writable bool
}

func (tx *boltTx) Get(key []byte) ([]byte, error) {
	if tx.bucket == nil {
		return nil, ErrNotFound
	}
	raw := tx.bucket.Get(key)
	if raw == nil {
		return nil, ErrNotFound
	}
	// bbolt values are only valid for the life of the transaction.
	return append([]byte(nil), raw...), nil
}

func (tx *boltTx) Has(key []byte) (bool, error) {
	if tx.bucket == nil {
		return false, nil
	}
	return tx.bucket.Get(key) != nil, nil
}

func (tx *boltTx) Put(key, value []byte) error {
	if !tx.writable {
		return errors.New("storage: write in read-only transaction")
	}
	return tx.bucket.Put(key, value)
}

func (tx *boltTx) Insert(key, value []byte) error {
	if tx.bucket.Get(key) != nil {
		return ErrExists
	}
	return tx.Put(key, value)
}

func (tx *boltTx) Delete(key []byte) error {
	if !tx.writable {
		return errors.New("storage: write in read-only transaction")
	}
	return tx.bucket.Delete(key)
}
