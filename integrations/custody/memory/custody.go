// Package memory provides an in-process custody ledger. It enforces the same
// delegate and freeze rules as an on-chain token program, which makes it the
// custody backend for development deployments and engine integration tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"nftstake/native/nftstake"
)

var (
	ErrUnknownItem  = errors.New("custody: unknown item")
	ErrNotItemOwner = errors.New("custody: caller does not own item")
	ErrNotDelegate  = errors.New("custody: authority is not the item delegate")
	ErrFrozen       = errors.New("custody: item is frozen")
	ErrItemExists   = errors.New("custody: item already minted")
)

type record struct {
	owner      nftstake.HolderID
	collection nftstake.CollectionID
	verified   bool
	delegate   *nftstake.HolderID
	frozen     bool
}

// ItemState is a read-only snapshot of one item's custody record.
type ItemState struct {
	Owner      nftstake.HolderID
	Collection nftstake.CollectionID
	Verified   bool
	Delegate   *nftstake.HolderID
	Frozen     bool
}

// Custody is a mutex-guarded custody ledger.
type Custody struct {
	mu    sync.RWMutex
	items map[nftstake.ItemID]*record
}

// New creates an empty ledger.
func New() *Custody {
	return &Custody{items: make(map[nftstake.ItemID]*record)}
}

// Mint records a new item owned by owner. verified marks the item as a
// verified member of collection.
func (c *Custody) Mint(item nftstake.ItemID, owner nftstake.HolderID, collection nftstake.CollectionID, verified bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[item]; ok {
		return ErrItemExists
	}
	c.items[item] = &record{owner: owner, collection: collection, verified: verified}
	return nil
}

// Transfer moves item to a new owner. Frozen items cannot move, and any
// delegate is cleared on transfer.
func (c *Custody) Transfer(item nftstake.ItemID, from, to nftstake.HolderID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, err := c.lookup(item)
	if err != nil {
		return err
	}
	if rec.owner != from {
		return ErrNotItemOwner
	}
	if rec.frozen {
		return ErrFrozen
	}
	rec.owner = to
	rec.delegate = nil
	return nil
}

// Item returns a snapshot of item's custody record.
func (c *Custody) Item(item nftstake.ItemID) (ItemState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, err := c.lookup(item)
	if err != nil {
		return ItemState{}, err
	}
	state := ItemState{
		Owner:      rec.owner,
		Collection: rec.collection,
		Verified:   rec.verified,
		Frozen:     rec.frozen,
	}
	if rec.delegate != nil {
		delegate := *rec.delegate
		state.Delegate = &delegate
	}
	return state, nil
}

func (c *Custody) lookup(item nftstake.ItemID) (*record, error) {
	rec, ok := c.items[item]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownItem, item)
	}
	return rec, nil
}

func (c *Custody) VerifyCollection(ctx context.Context, item nftstake.ItemID, collection nftstake.CollectionID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, err := c.lookup(item)
	if err != nil {
		return false, err
	}
	return rec.verified && rec.collection == collection, nil
}

func (c *Custody) GrantDelegate(ctx context.Context, item nftstake.ItemID, owner, authority nftstake.HolderID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, err := c.lookup(item)
	if err != nil {
		return err
	}
	if rec.owner != owner {
		return ErrNotItemOwner
	}
	if rec.frozen {
		return ErrFrozen
	}
	delegate := authority
	rec.delegate = &delegate
	return nil
}

func (c *Custody) RevokeDelegate(ctx context.Context, item nftstake.ItemID, owner nftstake.HolderID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, err := c.lookup(item)
	if err != nil {
		return err
	}
	if rec.owner != owner {
		return ErrNotItemOwner
	}
	if rec.frozen {
		return ErrFrozen
	}
	rec.delegate = nil
	return nil
}

func (c *Custody) Freeze(ctx context.Context, item nftstake.ItemID, authority nftstake.HolderID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, err := c.lookup(item)
	if err != nil {
		return err
	}
	if rec.delegate == nil || *rec.delegate != authority {
		return ErrNotDelegate
	}
	if rec.frozen {
		return ErrFrozen
	}
	rec.frozen = true
	return nil
}

func (c *Custody) Thaw(ctx context.Context, item nftstake.ItemID, authority nftstake.HolderID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, err := c.lookup(item)
	if err != nil {
		return err
	}
	if !rec.frozen {
		return nil
	}
	if rec.delegate == nil || *rec.delegate != authority {
		return ErrNotDelegate
	}
	rec.frozen = false
	return nil
}

var _ nftstake.Custody = (*Custody)(nil)
