package state

import (
	"fmt"

	"nftstake/native/nftstake"
	"nftstake/storage"
)

// StakeStore persists staking records in a storage.Database. Each View or
// Update maps onto exactly one database transaction.
type StakeStore struct {
	db storage.Database
}

// NewStakeStore wraps db.
func NewStakeStore(db storage.Database) (*StakeStore, error) {
	if db == nil {
		return nil, fmt.Errorf("state: database must not be nil")
	}
	return &StakeStore{db: db}, nil
}

// View runs fn against a read-only snapshot.
func (s *StakeStore) View(fn func(nftstake.State) error) error {
	return s.db.View(func(r storage.Reader) error {
		return fn(&stakeState{m: NewManager(r)})
	})
}

// Update runs fn inside a write transaction that commits only when fn
// returns nil.
func (s *StakeStore) Update(fn func(nftstake.State) error) error {
	return s.db.Update(func(w storage.Writer) error {
		return fn(&stakeState{m: NewWriteManager(w)})
	})
}

type stakeState struct {
	m *Manager
}

func (s *stakeState) ConfigID() nftstake.ConfigID { return StakeConfigID() }

func (s *stakeState) StakeConfig() (*nftstake.Config, bool, error) {
	var stored storedStakeConfig
	ok, err := s.m.KVGet(stakeConfigKey(), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return stored.toConfig(), true, nil
}

func (s *stakeState) InsertStakeConfig(cfg *nftstake.Config) error {
	if cfg == nil {
		return fmt.Errorf("state: config must not be nil")
	}
	return s.m.KVInsert(stakeConfigKey(), newStoredStakeConfig(cfg))
}

func (s *stakeState) Holder(id nftstake.HolderID) (*nftstake.Holder, bool, error) {
	var stored storedHolder
	ok, err := s.m.KVGet(stakeHolderKey(id), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return stored.toHolder(), true, nil
}

func (s *stakeState) InsertHolder(h *nftstake.Holder) error {
	if h == nil {
		return fmt.Errorf("state: holder must not be nil")
	}
	return s.m.KVInsert(stakeHolderKey(h.ID), newStoredHolder(h))
}

func (s *stakeState) PutHolder(h *nftstake.Holder) error {
	if h == nil {
		return fmt.Errorf("state: holder must not be nil")
	}
	return s.m.KVPut(stakeHolderKey(h.ID), newStoredHolder(h))
}

func (s *stakeState) Lock(item nftstake.ItemID) (*nftstake.Lock, bool, error) {
	var stored storedLock
	ok, err := s.m.KVGet(stakeLockKey(item, s.ConfigID()), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	return stored.toLock(), true, nil
}

func (s *stakeState) InsertLock(l *nftstake.Lock) error {
	if l == nil {
		return fmt.Errorf("state: lock must not be nil")
	}
	return s.m.KVInsert(stakeLockKey(l.Item, s.ConfigID()), newStoredLock(l))
}

func (s *stakeState) DeleteLock(item nftstake.ItemID) error {
	return s.m.KVDelete(stakeLockKey(item, s.ConfigID()))
}
