package state

import (
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"nftstake/native/nftstake"
)

// StakeConfigID is the deterministic record address of the staking
// configuration.
func StakeConfigID() nftstake.ConfigID {
	var id nftstake.ConfigID
	copy(id[:], ethcrypto.Keccak256(stakeConfigKeyBytes))
	return id
}

func stakeConfigKey() []byte {
	return append([]byte(nil), stakeConfigKeyBytes...)
}

func stakeHolderKey(id nftstake.HolderID) []byte {
	buf := make([]byte, len(stakeHolderPrefix)+len(id))
	copy(buf, stakeHolderPrefix)
	copy(buf[len(stakeHolderPrefix):], id[:])
	return buf
}

// stakeLockKey binds the lock address to both the item and the
// configuration, so one item has exactly one lock slot.
func stakeLockKey(item nftstake.ItemID, cfg nftstake.ConfigID) []byte {
	buf := make([]byte, len(stakeLockPrefix)+len(item)+len(cfg))
	copy(buf, stakeLockPrefix)
	copy(buf[len(stakeLockPrefix):], item[:])
	copy(buf[len(stakeLockPrefix)+len(item):], cfg[:])
	return buf
}

type storedStakeConfig struct {
	PointsPerLock uint8
	MaxLocks      uint8
	FreezePeriod  uint32
	Collection    [32]byte
}

func newStoredStakeConfig(cfg *nftstake.Config) *storedStakeConfig {
	if cfg == nil {
		return &storedStakeConfig{}
	}
	return &storedStakeConfig{
		PointsPerLock: cfg.PointsPerLock,
		MaxLocks:      cfg.MaxLocks,
		FreezePeriod:  cfg.FreezePeriod,
		Collection:    cfg.Collection,
	}
}

func (s *storedStakeConfig) toConfig() *nftstake.Config {
	return &nftstake.Config{
		PointsPerLock: s.PointsPerLock,
		MaxLocks:      s.MaxLocks,
		FreezePeriod:  s.FreezePeriod,
		Collection:    s.Collection,
	}
}

type storedHolder struct {
	ID          [20]byte
	Points      uint32
	ActiveLocks uint8
}

func newStoredHolder(h *nftstake.Holder) *storedHolder {
	return &storedHolder{ID: h.ID, Points: h.Points, ActiveLocks: h.ActiveLocks}
}

func (s *storedHolder) toHolder() *nftstake.Holder {
	return &nftstake.Holder{ID: s.ID, Points: s.Points, ActiveLocks: s.ActiveLocks}
}

type storedLock struct {
	Owner    [20]byte
	Item     [32]byte
	LockedAt uint64
}

func newStoredLock(l *nftstake.Lock) *storedLock {
	ts := l.LockedAt
	if ts < 0 {
		ts = 0
	}
	return &storedLock{Owner: l.Owner, Item: l.Item, LockedAt: uint64(ts)}
}

func (s *storedLock) toLock() *nftstake.Lock {
	return &nftstake.Lock{Owner: s.Owner, Item: s.Item, LockedAt: int64(s.LockedAt)}
}
