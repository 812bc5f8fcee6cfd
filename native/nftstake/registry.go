package nftstake

import (
	"errors"
	"fmt"
	"math"

	"nftstake/storage"
)

// registry owns Holder records. Its mutators are unexported: only the
// engine and settlement change balances.
type registry struct {
	st State
}

func (r registry) register(id HolderID) (*Holder, error) {
	holder := &Holder{ID: id}
	if err := r.st.InsertHolder(holder); err != nil {
		if errors.Is(err, storage.ErrExists) {
			return nil, ErrAlreadyRegistered
		}
		return nil, err
	}
	return holder.Clone(), nil
}

func (r registry) get(id HolderID) (*Holder, error) {
	holder, ok, err := r.st.Holder(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrHolderNotFound
	}
	return holder, nil
}

func (r registry) mutate(id HolderID, fn func(*Holder) error) (*Holder, error) {
	holder, err := r.get(id)
	if err != nil {
		return nil, err
	}
	if err := fn(holder); err != nil {
		return nil, err
	}
	if err := r.st.PutHolder(holder); err != nil {
		return nil, err
	}
	return holder, nil
}

func (r registry) incrementLocks(id HolderID, max uint8) (*Holder, error) {
	return r.mutate(id, func(h *Holder) error {
		if h.ActiveLocks >= max {
			return ErrMaxLocksReached
		}
		h.ActiveLocks++
		return nil
	})
}

func (r registry) decrementLocks(id HolderID) (*Holder, error) {
	return r.mutate(id, func(h *Holder) error {
		if h.ActiveLocks == 0 {
			return fmt.Errorf("nftstake: holder %s has no active locks", id)
		}
		h.ActiveLocks--
		return nil
	})
}

func (r registry) addPoints(id HolderID, amount uint32) (*Holder, error) {
	return r.mutate(id, func(h *Holder) error {
		if uint64(h.Points)+uint64(amount) > math.MaxUint32 {
			return ErrPointsOverflow
		}
		h.Points += amount
		return nil
	})
}

// resetPoints zeroes the balance and returns the prior value.
func (r registry) resetPoints(id HolderID) (uint32, error) {
	var prior uint32
	_, err := r.mutate(id, func(h *Holder) error {
		if h.Points == 0 {
			return ErrNothingToClaim
		}
		prior = h.Points
		h.Points = 0
		return nil
	})
	return prior, err
}
