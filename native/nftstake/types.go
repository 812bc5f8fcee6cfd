package nftstake

import (
	"encoding/hex"
	"fmt"
	"strings"

	"nftstake/crypto"
)

// HolderID identifies a holder account.
type HolderID [20]byte

// ItemID identifies a unique asset.
type ItemID [32]byte

// CollectionID identifies the collection an item must belong to.
type CollectionID [32]byte

// ConfigID is the deterministic record address of the staking configuration.
type ConfigID [32]byte

// String renders the holder as a bech32 address.
func (h HolderID) String() string {
	return crypto.MustNewAddress(crypto.HolderPrefix, h[:]).String()
}

func (i ItemID) String() string       { return "0x" + hex.EncodeToString(i[:]) }
func (c CollectionID) String() string { return "0x" + hex.EncodeToString(c[:]) }
func (c ConfigID) String() string     { return "0x" + hex.EncodeToString(c[:]) }

// ParseHolderID accepts a bech32 holder address or a 0x-prefixed hex string.
func ParseHolderID(raw string) (HolderID, error) {
	var id HolderID
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return id, fmt.Errorf("nftstake: holder address required")
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		if err := decodeHexInto(id[:], trimmed); err != nil {
			return id, fmt.Errorf("nftstake: holder address: %w", err)
		}
		return id, nil
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return id, fmt.Errorf("nftstake: holder address: %w", err)
	}
	if addr.Prefix() != crypto.HolderPrefix {
		return id, fmt.Errorf("nftstake: holder address must use %s prefix", crypto.HolderPrefix)
	}
	copy(id[:], addr.Bytes())
	return id, nil
}

// ParseItemID decodes a 0x-prefixed (or bare) 32-byte hex identifier.
func ParseItemID(raw string) (ItemID, error) {
	var id ItemID
	if err := decodeHexInto(id[:], raw); err != nil {
		return id, fmt.Errorf("nftstake: item id: %w", err)
	}
	return id, nil
}

// ParseCollectionID decodes a 0x-prefixed (or bare) 32-byte hex identifier.
func ParseCollectionID(raw string) (CollectionID, error) {
	var id CollectionID
	if err := decodeHexInto(id[:], raw); err != nil {
		return id, fmt.Errorf("nftstake: collection id: %w", err)
	}
	return id, nil
}

func decodeHexInto(dst []byte, raw string) error {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return err
	}
	if len(decoded) != len(dst) {
		return fmt.Errorf("expected %d bytes, got %d", len(dst), len(decoded))
	}
	copy(dst, decoded)
	return nil
}

// Config holds the global staking parameters. There is at most one.
type Config struct {
	// PointsPerLock is credited once per completed lock cycle.
	PointsPerLock uint8
	MaxLocks      uint8
	// FreezePeriod is the minimum number of seconds an item stays locked.
	FreezePeriod uint32
	Collection   CollectionID
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Holder is the per-holder aggregate record.
type Holder struct {
	ID          HolderID
	Points      uint32
	ActiveLocks uint8
}

// Clone returns a copy of the holder record.
func (h *Holder) Clone() *Holder {
	if h == nil {
		return nil
	}
	clone := *h
	return &clone
}

// Lock records that custody of Item is delegated to the staking authority.
// All fields are immutable for the lifetime of the record.
type Lock struct {
	Owner    HolderID
	Item     ItemID
	LockedAt int64
}

// Clone returns a copy of the lock record.
func (l *Lock) Clone() *Lock {
	if l == nil {
		return nil
	}
	clone := *l
	return &clone
}

// UnlockableAt returns the first unix second at which the lock may be released.
func (l *Lock) UnlockableAt(cfg *Config) int64 {
	if l == nil || cfg == nil {
		return 0
	}
	return l.LockedAt + int64(cfg.FreezePeriod)
}
