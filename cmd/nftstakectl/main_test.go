package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"nftstake/config"
	"nftstake/core/events"
	"nftstake/core/state"
	"nftstake/native/nftstake"
	"nftstake/services/stakingd"
	"nftstake/storage"
)

const testCollection = "0xc1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1c1"

func TestInitConfigWritesParams(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.toml")
	var out bytes.Buffer
	err := runInitConfig([]string{"-out", path, "-points", "5", "-max-locks", "3", "-freeze", "90m", "-collection", testCollection}, &out)
	require.NoError(t, err)

	params, err := config.LoadParams(path)
	require.NoError(t, err)
	cfg, err := config.ValidateParams(params)
	require.NoError(t, err)
	require.EqualValues(t, 5, cfg.PointsPerLock)
	require.EqualValues(t, 3, cfg.MaxLocks)
	require.EqualValues(t, 5400, cfg.FreezePeriod)

	err = runInitConfig([]string{"-out", path, "-collection", testCollection}, &out)
	require.ErrorContains(t, err, "already exists")

	err = runInitConfig([]string{"-out", filepath.Join(t.TempDir(), "bad.toml"), "-max-locks", "0", "-collection", testCollection}, &out)
	require.Error(t, err)
}

func seedStore(t *testing.T, path string, holder nftstake.HolderID, item nftstake.ItemID) {
	t.Helper()
	db, err := storage.NewBoltDB(path, nil)
	require.NoError(t, err)
	defer db.Close()
	store, err := state.NewStakeStore(db)
	require.NoError(t, err)
	require.NoError(t, store.Update(func(st nftstake.State) error {
		if err := st.InsertStakeConfig(&nftstake.Config{PointsPerLock: 10, MaxLocks: 2, FreezePeriod: 3600, Collection: nftstake.CollectionID{0xC1}}); err != nil {
			return err
		}
		if err := st.InsertHolder(&nftstake.Holder{ID: holder, Points: 20, ActiveLocks: 1}); err != nil {
			return err
		}
		return st.InsertLock(&nftstake.Lock{Owner: holder, Item: item, LockedAt: 1_700_000_000})
	}))
}

func TestShowHolderAndLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stakingd.db")
	holder := nftstake.HolderID{0x01}
	item := nftstake.ItemID{0x02}
	seedStore(t, path, holder, item)

	var out bytes.Buffer
	require.NoError(t, runShowHolder([]string{"-store", path, holder.String()}, &out))
	var holderView map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &holderView))
	require.EqualValues(t, 20, holderView["points"])
	require.EqualValues(t, 1, holderView["activeLocks"])

	out.Reset()
	require.NoError(t, runShowLock([]string{"-store", path, item.String()}, &out))
	var lockView map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &lockView))
	require.Equal(t, holder.String(), lockView["owner"])
	require.Equal(t, "2023-11-14T22:13:20Z", lockView["lockedAt"])
	require.Equal(t, "2023-11-14T23:13:20Z", lockView["unlockableAt"])

	err := runShowLock([]string{"-store", path, nftstake.ItemID{0x03}.String()}, &out)
	require.ErrorIs(t, err, nftstake.ErrLockNotFound)

	err = runShowHolder([]string{"-store", path}, &out)
	require.Error(t, err)
}

func TestIssueToken(t *testing.T) {
	t.Setenv("NFTSTAKECTL_TEST_SECRET", "secret")
	var out bytes.Buffer
	holder := nftstake.HolderID{0x04}.String()
	require.NoError(t, runIssueToken([]string{"-secret-env", "NFTSTAKECTL_TEST_SECRET", "-subject", holder, "-scopes", "stake:holder, stake:admin"}, &out))
	require.Equal(t, 2, strings.Count(strings.TrimSpace(out.String()), "."))

	err := runIssueToken([]string{"-secret-env", "NFTSTAKECTL_TEST_UNSET", "-subject", holder}, &out)
	require.Error(t, err)
}

func TestExportClaims(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "journal.db")
	journal, err := stakingd.OpenJournal(dsn, 3, nil)
	require.NoError(t, err)
	holder := nftstake.HolderID{0x05}
	journal.Emit(events.RewardsClaimed{Holder: holder, Payout: 4, ClaimedAt: 1_700_000_000})
	require.NoError(t, journal.Close())

	var out bytes.Buffer
	require.NoError(t, runExportClaims([]string{"-journal", dsn}, &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "id,holder,points,amount,claimed_at", lines[0])
	require.Contains(t, lines[1], holder.String())
	require.Contains(t, lines[1], ",4,4000,")

	target := filepath.Join(t.TempDir(), "claims.jsonl")
	out.Reset()
	require.NoError(t, runExportClaims([]string{"-journal", dsn, "-format", "jsonl", "-out", target}, &out))
	require.Contains(t, out.String(), "wrote 1 claims")

	require.Error(t, runExportClaims([]string{"-journal", dsn, "-format", "xml"}, &out))
}

func TestKeygen(t *testing.T) {
	t.Setenv("NFTSTAKECTL_TEST_PASS", "correct horse")
	path := filepath.Join(t.TempDir(), "custody.json")
	var out bytes.Buffer
	require.NoError(t, runKeygen([]string{"-out", path, "-pass-env", "NFTSTAKECTL_TEST_PASS"}, &out))
	var view map[string]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &view))
	require.True(t, strings.HasPrefix(view["address"], "0x"))
	holder, err := nftstake.ParseHolderID(view["holder"])
	require.NoError(t, err)
	require.Equal(t, strings.ToLower(view["address"]), "0x"+hex.EncodeToString(holder[:]))

	out.Reset()
	require.Error(t, runKeygen([]string{"-out", path, "-pass-env", "NFTSTAKECTL_TEST_PASS"}, &out))
}
