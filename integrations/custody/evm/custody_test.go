package evm

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"nftstake/native/nftstake"
)

type sentCall struct {
	method string
	args   []interface{}
	nonce  uint64
	from   common.Address
}

type fakeClient struct {
	t        *testing.T
	abi      abi.ABI
	chainID  *big.Int
	mu       sync.Mutex
	nonce    uint64
	sent     []sentCall
	member   bool
	frozen   map[[32]byte]bool
	revert   map[string]bool
	pending  int
	receipts map[common.Hash]*gethtypes.Receipt
}

func newFakeClient(t *testing.T) *fakeClient {
	parsed, err := abi.JSON(strings.NewReader(CustodyABI))
	require.NoError(t, err)
	return &fakeClient{
		t:        t,
		abi:      parsed,
		chainID:  big.NewInt(1337),
		frozen:   map[[32]byte]bool{},
		revert:   map[string]bool{},
		receipts: map[common.Hash]*gethtypes.Receipt{},
	}
}

func (f *fakeClient) ChainID(context.Context) (*big.Int, error) { return f.chainID, nil }

func (f *fakeClient) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *fakeClient) SuggestGasPrice(context.Context) (*big.Int, error) { return big.NewInt(1_000_000_000), nil }

func (f *fakeClient) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) { return 50_000, nil }

func (f *fakeClient) SendTransaction(_ context.Context, tx *gethtypes.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sender, err := gethtypes.Sender(gethtypes.LatestSignerForChainID(f.chainID), tx)
	require.NoError(f.t, err)
	method, err := f.abi.MethodById(tx.Data()[:4])
	require.NoError(f.t, err)
	args, err := method.Inputs.Unpack(tx.Data()[4:])
	require.NoError(f.t, err)
	f.sent = append(f.sent, sentCall{method: method.Name, args: args, nonce: tx.Nonce(), from: sender})
	f.nonce++
	status := gethtypes.ReceiptStatusSuccessful
	if f.revert[method.Name] {
		status = gethtypes.ReceiptStatusFailed
	} else if method.Name == "freeze" || method.Name == "thaw" {
		f.frozen[args[0].([32]byte)] = method.Name == "freeze"
	}
	f.receipts[tx.Hash()] = &gethtypes.Receipt{Status: status, TxHash: tx.Hash()}
	return nil
}

func (f *fakeClient) TransactionReceipt(_ context.Context, hash common.Hash) (*gethtypes.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending > 0 {
		f.pending--
		return nil, ethereum.NotFound
	}
	receipt, ok := f.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (f *fakeClient) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	method, err := f.abi.MethodById(msg.Data[:4])
	require.NoError(f.t, err)
	switch method.Name {
	case "isVerifiedMember":
		return method.Outputs.Pack(f.member)
	case "isFrozen":
		args, err := method.Inputs.Unpack(msg.Data[4:])
		require.NoError(f.t, err)
		f.mu.Lock()
		defer f.mu.Unlock()
		return method.Outputs.Pack(f.frozen[args[0].([32]byte)])
	}
	f.t.Fatalf("unexpected view call %s", method.Name)
	return nil, nil
}

func newTestCustody(t *testing.T) (*Custody, *fakeClient) {
	t.Helper()
	key, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	client := newFakeClient(t)
	c, err := New(client, Config{
		Contract:     common.HexToAddress("0x00000000000000000000000000000000000000c5"),
		Signer:       key,
		PollInterval: time.Millisecond,
	})
	require.NoError(t, err)
	return c, client
}

func TestLockSequenceOnChain(t *testing.T) {
	ctx := context.Background()
	c, client := newTestCustody(t)
	item := nftstake.ItemID{0x01}
	owner := nftstake.HolderID{0x0A}
	authority := nftstake.DeriveLockAuthority(nftstake.ConfigID{0x01}, item)

	require.NoError(t, c.GrantDelegate(ctx, item, owner, authority))
	client.pending = 2
	require.NoError(t, c.Freeze(ctx, item, authority))
	require.NoError(t, c.Thaw(ctx, item, authority))
	require.NoError(t, c.RevokeDelegate(ctx, item, owner))

	require.Len(t, client.sent, 4)
	want := []string{"approveDelegate", "freeze", "thaw", "revokeDelegate"}
	for i, call := range client.sent {
		require.Equal(t, want[i], call.method)
		require.Equal(t, uint64(i), call.nonce)
		require.Equal(t, c.From(), call.from)
		require.Equal(t, [32]byte(item), call.args[0])
	}
	require.Equal(t, common.Address(owner), client.sent[0].args[1])
	require.Equal(t, common.Address(authority), client.sent[0].args[2])
}

func TestRevertedTransactionFails(t *testing.T) {
	c, client := newTestCustody(t)
	client.revert["freeze"] = true
	err := c.Freeze(context.Background(), nftstake.ItemID{0x02}, nftstake.HolderID{0x0B})
	require.Error(t, err)
	require.Contains(t, err.Error(), "reverted")
}

func TestWaitHonoursContext(t *testing.T) {
	c, client := newTestCustody(t)
	client.pending = 1 << 30
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Freeze(ctx, nftstake.ItemID{0x03}, nftstake.HolderID{0x0C})
	require.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestThawOfThawedItemIsNoop(t *testing.T) {
	ctx := context.Background()
	c, client := newTestCustody(t)
	item := nftstake.ItemID{0x05}
	authority := nftstake.HolderID{0x0D}

	require.NoError(t, c.Thaw(ctx, item, authority))
	require.Empty(t, client.sent)

	require.NoError(t, c.Freeze(ctx, item, authority))
	require.NoError(t, c.Thaw(ctx, item, authority))
	require.NoError(t, c.Thaw(ctx, item, authority))
	require.Len(t, client.sent, 2)
	require.Equal(t, "thaw", client.sent[1].method)
}

func TestVerifyCollection(t *testing.T) {
	c, client := newTestCustody(t)
	client.member = true
	ok, err := c.VerifyCollection(context.Background(), nftstake.ItemID{0x04}, nftstake.CollectionID{0xC1})
	require.NoError(t, err)
	require.True(t, ok)
	client.member = false
	ok, err = c.VerifyCollection(context.Background(), nftstake.ItemID{0x04}, nftstake.CollectionID{0xC1})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNewValidation(t *testing.T) {
	key, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	_, err = New(nil, Config{Signer: key, Contract: common.Address{0x01}})
	require.Error(t, err)
	_, err = New(newFakeClient(t), Config{Contract: common.Address{0x01}})
	require.Error(t, err)
	_, err = New(newFakeClient(t), Config{Signer: key})
	require.Error(t, err)
}
