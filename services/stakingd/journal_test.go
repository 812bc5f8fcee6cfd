package stakingd

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"nftstake/core/events"
	"nftstake/integrations/exports"
	"nftstake/native/nftstake"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	journal, err := NewJournal(db, 6, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = journal.Close() })
	return journal
}

func TestJournalRecordsEvents(t *testing.T) {
	journal := newTestJournal(t)
	holder := nftstake.HolderID{0x01}
	item := nftstake.ItemID{0x02}

	journal.Emit(events.HolderRegistered{Holder: holder})
	journal.Emit(events.ItemLocked{Holder: holder, Item: item, LockedAt: 100, ActiveLocks: 1})
	journal.Emit(events.ItemUnlocked{Holder: holder, Item: item, LockedAt: 100, UnlockedAt: 200, PointsEarned: 7, Points: 7})

	entries, err := journal.Entries(context.Background(), JournalFilter{Holder: holder.String()})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	locked, err := journal.Entries(context.Background(), JournalFilter{Type: events.TypeItemLocked})
	require.NoError(t, err)
	require.Len(t, locked, 1)
	require.Equal(t, item.String(), locked[0].Item)
	require.EqualValues(t, 100, locked[0].AttributeInt("lockedAt"))

	unlocked, err := journal.Entries(context.Background(), JournalFilter{Type: events.TypeItemUnlocked})
	require.NoError(t, err)
	require.Len(t, unlocked, 1)
	require.EqualValues(t, 7, unlocked[0].Points)

	active, err := journal.ActiveLocks(context.Background())
	require.NoError(t, err)
	require.Zero(t, active)
}

func TestJournalClaims(t *testing.T) {
	journal := newTestJournal(t)
	holder := nftstake.HolderID{0x0A}
	claimedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	journal.Emit(events.RewardsClaimed{Holder: holder, Payout: 20, ClaimedAt: claimedAt.Unix()})
	journal.Emit(events.ItemLocked{Holder: holder, Item: nftstake.ItemID{0x01}})

	receipts, err := journal.Claims(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	receipt := receipts[0]
	require.Equal(t, holder, receipt.Holder)
	require.EqualValues(t, 20, receipt.Points)
	require.Equal(t, "20000000", receipt.Amount.Dec())
	require.True(t, receipt.ClaimedAt.Equal(claimedAt))

	later, err := journal.Claims(context.Background(), claimedAt.Add(time.Minute))
	require.NoError(t, err)
	require.Empty(t, later)

	data, checksum, err := exports.ClaimsCSV(receipts)
	require.NoError(t, err)
	require.NotEmpty(t, checksum)
	require.Contains(t, string(data), holder.String())

	active, err := journal.ActiveLocks(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, active)
}
