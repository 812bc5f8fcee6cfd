package events

import (
	"encoding/hex"
	"strconv"

	"nftstake/core/types"
	"nftstake/crypto"
)

const (
	// TypeStakeConfigured is emitted once when the staking configuration is created.
	TypeStakeConfigured = "nftstake.configured"
	// TypeHolderRegistered is emitted when a holder record is created.
	TypeHolderRegistered = "nftstake.holderRegistered"
	// TypeItemLocked is emitted after an item is delegated, frozen and recorded.
	TypeItemLocked = "nftstake.locked"
	// TypeItemUnlocked is emitted after an item is thawed and its record destroyed.
	TypeItemUnlocked = "nftstake.unlocked"
	// TypeRewardsClaimed is emitted when a holder redeems accumulated points.
	TypeRewardsClaimed = "nftstake.claimed"
)

// StakeConfigured captures the global staking parameters.
type StakeConfigured struct {
	ConfigID      [32]byte
	PointsPerLock uint8
	MaxLocks      uint8
	FreezePeriod  uint32
	Collection    [32]byte
}

// EventType satisfies the Event interface.
func (StakeConfigured) EventType() string { return TypeStakeConfigured }

// Event converts the structured payload into a broadcastable event.
func (e StakeConfigured) Event() *types.Event {
	attrs := map[string]string{
		"configId":      formatID(e.ConfigID),
		"pointsPerLock": strconv.FormatUint(uint64(e.PointsPerLock), 10),
		"maxLocks":      strconv.FormatUint(uint64(e.MaxLocks), 10),
		"freezePeriod":  strconv.FormatUint(uint64(e.FreezePeriod), 10),
	}
	if e.Collection != ([32]byte{}) {
		attrs["collection"] = formatID(e.Collection)
	}
	return &types.Event{Type: TypeStakeConfigured, Attributes: attrs}
}

// HolderRegistered captures the creation of a holder record.
type HolderRegistered struct {
	Holder [20]byte
}

// EventType satisfies the Event interface.
func (HolderRegistered) EventType() string { return TypeHolderRegistered }

// Event converts the structured payload into a broadcastable event.
func (e HolderRegistered) Event() *types.Event {
	return &types.Event{Type: TypeHolderRegistered, Attributes: map[string]string{
		"holder": formatHolder(e.Holder),
	}}
}

// ItemLocked captures a completed lock transition.
type ItemLocked struct {
	Holder      [20]byte
	Item        [32]byte
	Authority   [20]byte
	LockedAt    int64
	ActiveLocks uint8
}

// EventType satisfies the Event interface.
func (ItemLocked) EventType() string { return TypeItemLocked }

// Event converts the structured payload into a broadcastable event.
func (e ItemLocked) Event() *types.Event {
	return &types.Event{Type: TypeItemLocked, Attributes: map[string]string{
		"holder":      formatHolder(e.Holder),
		"item":        formatID(e.Item),
		"authority":   crypto.MustNewAddress(crypto.AuthorityPrefix, e.Authority[:]).String(),
		"lockedAt":    strconv.FormatInt(e.LockedAt, 10),
		"activeLocks": strconv.FormatUint(uint64(e.ActiveLocks), 10),
	}}
}

// ItemUnlocked captures a completed unlock transition and the points it earned.
type ItemUnlocked struct {
	Holder       [20]byte
	Item         [32]byte
	LockedAt     int64
	UnlockedAt   int64
	PointsEarned uint32
	Points       uint32
	ActiveLocks  uint8
}

// EventType satisfies the Event interface.
func (ItemUnlocked) EventType() string { return TypeItemUnlocked }

// Event converts the structured payload into a broadcastable event.
func (e ItemUnlocked) Event() *types.Event {
	return &types.Event{Type: TypeItemUnlocked, Attributes: map[string]string{
		"holder":       formatHolder(e.Holder),
		"item":         formatID(e.Item),
		"lockedAt":     strconv.FormatInt(e.LockedAt, 10),
		"unlockedAt":   strconv.FormatInt(e.UnlockedAt, 10),
		"pointsEarned": strconv.FormatUint(uint64(e.PointsEarned), 10),
		"points":       strconv.FormatUint(uint64(e.Points), 10),
		"activeLocks":  strconv.FormatUint(uint64(e.ActiveLocks), 10),
	}}
}

// RewardsClaimed captures a settlement of accumulated points.
type RewardsClaimed struct {
	Holder    [20]byte
	Payout    uint32
	ClaimedAt int64
}

// EventType satisfies the Event interface.
func (RewardsClaimed) EventType() string { return TypeRewardsClaimed }

// Event converts the structured payload into a broadcastable event.
func (e RewardsClaimed) Event() *types.Event {
	attrs := map[string]string{
		"holder": formatHolder(e.Holder),
		"payout": strconv.FormatUint(uint64(e.Payout), 10),
	}
	if e.ClaimedAt > 0 {
		attrs["claimedAt"] = strconv.FormatInt(e.ClaimedAt, 10)
	}
	return &types.Event{Type: TypeRewardsClaimed, Attributes: attrs}
}

func formatHolder(addr [20]byte) string {
	return crypto.MustNewAddress(crypto.HolderPrefix, addr[:]).String()
}

func formatID(id [32]byte) string {
	return "0x" + hex.EncodeToString(id[:])
}
