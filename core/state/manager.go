package state

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"nftstake/storage"
)

var errReadOnly = errors.New("state: manager is read-only")

// Manager reads and writes RLP-encoded records inside a single storage
// transaction. A Manager built from a Reader rejects writes.
type Manager struct {
	r storage.Reader
	w storage.Writer
}

// NewManager creates a read-only manager over the provided reader.
func NewManager(r storage.Reader) *Manager {
	return &Manager{r: r}
}

// NewWriteManager creates a manager able to mutate records through w.
func NewWriteManager(w storage.Writer) *Manager {
	return &Manager{r: w, w: w}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256 before it reaches the database.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	if m.w == nil {
		return errReadOnly
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.w.Put(kvKey(key), encoded)
}

// KVInsert behaves like KVPut but fails with storage.ErrExists when the key
// is already occupied.
func (m *Manager) KVInsert(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	if m.w == nil {
		return errReadOnly
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.w.Insert(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.r.Get(kvKey(key))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the value stored under key. Deleting a missing key is not
// an error.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	if m.w == nil {
		return errReadOnly
	}
	return m.w.Delete(kvKey(key))
}
