package stakingd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nftstake/config"
	"nftstake/core/events"
	"nftstake/integrations/webhooks"
	"nftstake/native/nftstake"
)

type queueStub struct {
	payloads []webhooks.ClaimPayload
	err      error
}

func (q *queueStub) EnqueueClaim(payload webhooks.ClaimPayload) error {
	q.payloads = append(q.payloads, payload)
	return q.err
}

func TestClaimNotifierForwardsClaims(t *testing.T) {
	queue := &queueStub{}
	notifier := newClaimNotifier(queue, 2, nil)
	holder := nftstake.HolderID{0x09}

	notifier.Emit(events.ItemLocked{Holder: holder})
	notifier.Emit(events.RewardsClaimed{Holder: holder, Payout: 15, ClaimedAt: 1_700_000_000})

	require.Len(t, queue.payloads, 1)
	payload := queue.payloads[0]
	require.Equal(t, holder.String(), payload.Holder)
	require.EqualValues(t, 15, payload.Points)
	require.Equal(t, "1500", payload.Amount)
	require.Equal(t, time.Unix(1_700_000_000, 0).UTC(), payload.ClaimedAt)

	queue.err = errors.New("queue full")
	notifier.Emit(events.RewardsClaimed{Holder: holder, Payout: 1})
	require.Len(t, queue.payloads, 2)
}

func TestRuntimeWiresJournal(t *testing.T) {
	cfg := Config{
		Storage: StorageConfig{Backend: StorageBolt, Path: filepath.Join(t.TempDir(), "state.db")},
		Custody: CustodyConfig{Driver: CustodyMemory},
		Journal: JournalConfig{DSN: "file:" + filepath.Join(t.TempDir(), "journal.db")},
		Rewards: RewardsConfig{Decimals: 0},
	}
	rt, err := newRuntime(cfg, nil)
	require.NoError(t, err)
	defer rt.Close()

	params := filepath.Join(t.TempDir(), "params.toml")
	require.NoError(t, writeParamsFile(params))
	require.NoError(t, bootstrapConfig(rt.engine, params, testLogger()))
	require.NoError(t, bootstrapConfig(rt.engine, params, testLogger()))

	holder := nftstake.HolderID{0x0B}
	_, err = rt.engine.RegisterHolder(holder)
	require.NoError(t, err)

	entries, err := rt.journal.Entries(context.Background(), JournalFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, events.TypeStakeConfigured, entries[0].Type)
	require.Equal(t, events.TypeHolderRegistered, entries[1].Type)
}

func writeParamsFile(path string) error {
	params := config.DefaultParams()
	params.Collection = testCollectionID
	return config.WriteParams(path, params, false)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
