package nftstake

import (
	"errors"

	"nftstake/storage"
)

// ledger owns Lock records. Uniqueness per item comes from the store's
// create-only insert, never from a read-then-write check.
type ledger struct {
	st State
}

func (l ledger) create(owner HolderID, item ItemID, ts int64) (*Lock, error) {
	rec := &Lock{Owner: owner, Item: item, LockedAt: ts}
	if err := l.st.InsertLock(rec); err != nil {
		if errors.Is(err, storage.ErrExists) {
			return nil, ErrDuplicateLock
		}
		return nil, err
	}
	return rec.Clone(), nil
}

func (l ledger) get(item ItemID) (*Lock, error) {
	rec, ok, err := l.st.Lock(item)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotFound
	}
	return rec, nil
}

// owned loads the lock for item and checks it belongs to requester.
func (l ledger) owned(item ItemID, requester HolderID) (*Lock, error) {
	rec, err := l.get(item)
	if err != nil {
		return nil, err
	}
	if rec.Owner != requester {
		return nil, ErrNotOwner
	}
	return rec, nil
}

func (l ledger) remove(item ItemID, requester HolderID) error {
	if _, err := l.owned(item, requester); err != nil {
		return err
	}
	return l.st.DeleteLock(item)
}
