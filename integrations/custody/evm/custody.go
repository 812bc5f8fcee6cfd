// Package evm implements nftstake.Custody against a custody contract on an
// EVM chain. Every mutating call is sent as a signed transaction and waits
// for a successful receipt, so a nil error means the action is on-chain.
package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"nftstake/native/nftstake"
)

// CustodyABI describes the custody contract surface used by the adapter.
const CustodyABI = `[
 {"type":"function","name":"isVerifiedMember","stateMutability":"view",
  "inputs":[{"name":"item","type":"bytes32"},{"name":"collection","type":"bytes32"}],
  "outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"isFrozen","stateMutability":"view",
  "inputs":[{"name":"item","type":"bytes32"}],
  "outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"approveDelegate","stateMutability":"nonpayable",
  "inputs":[{"name":"item","type":"bytes32"},{"name":"owner","type":"address"},{"name":"authority","type":"address"}],"outputs":[]},
 {"type":"function","name":"revokeDelegate","stateMutability":"nonpayable",
  "inputs":[{"name":"item","type":"bytes32"},{"name":"owner","type":"address"}],"outputs":[]},
 {"type":"function","name":"freeze","stateMutability":"nonpayable",
  "inputs":[{"name":"item","type":"bytes32"},{"name":"authority","type":"address"}],"outputs":[]},
 {"type":"function","name":"thaw","stateMutability":"nonpayable",
  "inputs":[{"name":"item","type":"bytes32"},{"name":"authority","type":"address"}],"outputs":[]}
]`

// Client defines the subset of the Ethereum RPC used by the adapter.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// DialClient initialises an EVM RPC client for the provided endpoint.
func DialClient(endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("evm endpoint required")
	}
	return ethclient.Dial(trimmed)
}

// Config wires the adapter to a deployed contract.
type Config struct {
	Contract     common.Address
	Signer       *ecdsa.PrivateKey
	PollInterval time.Duration
	// GasMultiplierPct pads gas estimates; 0 selects 120.
	GasMultiplierPct uint64
}

// Custody sends custody actions to the contract.
type Custody struct {
	client   Client
	abi      abi.ABI
	contract common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	poll     time.Duration
	gasPct   uint64

	mu      sync.Mutex
	chainID *big.Int
}

// New constructs an adapter from a client and configuration.
func New(client Client, cfg Config) (*Custody, error) {
	if client == nil {
		return nil, errors.New("evm custody: client required")
	}
	if cfg.Signer == nil {
		return nil, errors.New("evm custody: signer required")
	}
	if (cfg.Contract == common.Address{}) {
		return nil, errors.New("evm custody: contract address required")
	}
	parsed, err := abi.JSON(strings.NewReader(CustodyABI))
	if err != nil {
		return nil, fmt.Errorf("evm custody: parse abi: %w", err)
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}
	gasPct := cfg.GasMultiplierPct
	if gasPct == 0 {
		gasPct = 120
	}
	return &Custody{
		client:   client,
		abi:      parsed,
		contract: cfg.Contract,
		key:      cfg.Signer,
		from:     gethcrypto.PubkeyToAddress(cfg.Signer.PublicKey),
		poll:     poll,
		gasPct:   gasPct,
	}, nil
}

// From returns the account that signs custody transactions.
func (c *Custody) From() common.Address { return c.from }

func (c *Custody) VerifyCollection(ctx context.Context, item nftstake.ItemID, collection nftstake.CollectionID) (bool, error) {
	return c.callBool(ctx, "isVerifiedMember", [32]byte(item), [32]byte(collection))
}

// callBool runs a view method that returns a single bool.
func (c *Custody) callBool(ctx context.Context, method string, args ...interface{}) (bool, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return false, err
	}
	out, err := c.client.CallContract(ctx, ethereum.CallMsg{From: c.from, To: &c.contract, Data: data}, nil)
	if err != nil {
		return false, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := c.abi.Unpack(method, out)
	if err != nil {
		return false, fmt.Errorf("decode %s: %w", method, err)
	}
	if len(values) != 1 {
		return false, fmt.Errorf("decode %s: unexpected %d values", method, len(values))
	}
	result, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("decode %s: unexpected type %T", method, values[0])
	}
	return result, nil
}

func (c *Custody) GrantDelegate(ctx context.Context, item nftstake.ItemID, owner, authority nftstake.HolderID) error {
	return c.transact(ctx, "approveDelegate", [32]byte(item), common.Address(owner), common.Address(authority))
}

func (c *Custody) RevokeDelegate(ctx context.Context, item nftstake.ItemID, owner nftstake.HolderID) error {
	return c.transact(ctx, "revokeDelegate", [32]byte(item), common.Address(owner))
}

func (c *Custody) Freeze(ctx context.Context, item nftstake.ItemID, authority nftstake.HolderID) error {
	return c.transact(ctx, "freeze", [32]byte(item), common.Address(authority))
}

// Thaw skips the transaction when the item is already thawed; the contract
// reverts a thaw of an unfrozen item.
func (c *Custody) Thaw(ctx context.Context, item nftstake.ItemID, authority nftstake.HolderID) error {
	frozen, err := c.callBool(ctx, "isFrozen", [32]byte(item))
	if err != nil {
		return err
	}
	if !frozen {
		return nil
	}
	return c.transact(ctx, "thaw", [32]byte(item), common.Address(authority))
}

func (c *Custody) chain(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chainID != nil {
		return c.chainID, nil
	}
	id, err := c.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}
	c.chainID = id
	return id, nil
}

// transact signs and submits a call, then blocks until it is mined. Calls
// are serialised so nonces are assigned in order.
func (c *Custody) transact(ctx context.Context, method string, args ...interface{}) error {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return err
	}
	chainID, err := c.chain(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	tx, err := c.buildTx(ctx, chainID, data)
	if err == nil {
		err = c.client.SendTransaction(ctx, tx)
	}
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if err := c.waitMined(ctx, tx.Hash()); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

func (c *Custody) buildTx(ctx context.Context, chainID *big.Int, data []byte) (*gethtypes.Transaction, error) {
	nonce, err := c.client.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}
	gas, err := c.client.EstimateGas(ctx, ethereum.CallMsg{From: c.from, To: &c.contract, Data: data})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}
	gas = gas * c.gasPct / 100
	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &c.contract,
		Value:    big.NewInt(0),
		Data:     data,
	})
	signed, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signed, nil
}

func (c *Custody) waitMined(ctx context.Context, hash common.Hash) error {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	for {
		receipt, err := c.client.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			if receipt.Status != gethtypes.ReceiptStatusSuccessful {
				return fmt.Errorf("transaction %s reverted", hash.Hex())
			}
			return nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			return fmt.Errorf("fetch receipt: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

var _ nftstake.Custody = (*Custody)(nil)
