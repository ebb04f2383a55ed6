// Package ledger talks to the messenger NFT contract: minting message tokens,
// reading per-caller token metadata and the on-chain key registry.
package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"nft_messenger/internal/utils/log"
)

var (
	ErrReadOnly        = errors.New("ledger client has no signing key")
	ErrTxFailed        = errors.New("transaction reverted")
	ErrInvalidAddress  = errors.New("invalid address")
	ErrInvalidTokenID  = errors.New("invalid token id")
	ErrInvalidEncKey   = errors.New("wrapped key is not 0x-prefixed hex")
	ErrNoContract      = errors.New("contract address not configured")
	ErrNoTokensEmitted = errors.New("mint emitted no MessageMinted events")
)

type (
	// Backend is what ethclient.Client provides.
	Backend interface {
		bind.ContractBackend
		bind.DeployBackend
		ChainID(ctx context.Context) (*big.Int, error)
	}

	Client struct {
		backend  Backend
		address  common.Address
		abi      abi.ABI
		contract *bind.BoundContract
		key      *ecdsa.PrivateKey
	}
)

// Dial connects to rpcURL. key may be nil for a read-only client.
func Dial(ctx context.Context, rpcURL, contract string, key *ecdsa.PrivateKey) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	c, err := New(eth, contract, key)
	if err != nil {
		eth.Close()
		return nil, err
	}
	return c, nil
}

func New(backend Backend, contract string, key *ecdsa.PrivateKey) (*Client, error) {
	if contract == "" {
		return nil, ErrNoContract
	}
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("%w: contract %q", ErrInvalidAddress, contract)
	}

	parsed, err := abi.JSON(strings.NewReader(messengerABI))
	if err != nil {
		return nil, err
	}

	address := common.HexToAddress(contract)
	return &Client{
		backend:  backend,
		address:  address,
		abi:      parsed,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
		key:      key,
	}, nil
}

// Account is the address transactions are sent from.
func (c *Client) Account() (common.Address, error) {
	if c.key == nil {
		return common.Address{}, ErrReadOnly
	}
	return crypto.PubkeyToAddress(c.key.PublicKey), nil
}

// MintMessageNFT mints one message token per recipient, waits for the receipt
// and returns the token ids from its MessageMinted events.
func (c *Client) MintMessageNFT(ctx context.Context, recipients []string, cid string, encKeys []string) ([]string, error) {
	addrs := make([]common.Address, len(recipients))
	for i, r := range recipients {
		if !common.IsHexAddress(r) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, r)
		}
		addrs[i] = common.HexToAddress(r)
	}
	keys := make([][]byte, len(encKeys))
	for i, k := range encKeys {
		b, err := hexutil.Decode(k)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEncKey, err)
		}
		keys[i] = b
	}

	receipt, err := c.transact(ctx, methodMint, addrs, cid, keys)
	if err != nil {
		return nil, err
	}

	ids, err := c.TokenIDs(receipt.Logs)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNoTokensEmitted
	}
	return ids, nil
}

// TokenIDs extracts minted token ids from this contract's MessageMinted logs.
func (c *Client) TokenIDs(logs []*types.Log) ([]string, error) {
	event := c.abi.Events[eventMessageMinted]

	var ids []string
	for _, l := range logs {
		if l == nil || l.Address != c.address || len(l.Topics) == 0 || l.Topics[0] != event.ID {
			continue
		}
		out := make(map[string]interface{})
		if err := c.contract.UnpackLogIntoMap(out, eventMessageMinted, *l); err != nil {
			return nil, fmt.Errorf("unpack %s: %w", eventMessageMinted, err)
		}
		id, ok := out["tokenId"].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("%s without tokenId", eventMessageMinted)
		}
		ids = append(ids, id.String())
	}
	return ids, nil
}

// GetMetadata returns the content address and the wrapped key stored for
// caller. encKey is empty when the contract holds no key for caller.
func (c *Client) GetMetadata(ctx context.Context, tokenID string, caller common.Address) (cid string, encKey string, err error) {
	id, ok := new(big.Int).SetString(tokenID, 10)
	if !ok || id.Sign() < 0 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidTokenID, tokenID)
	}

	var out []interface{}
	opts := &bind.CallOpts{Context: ctx, From: caller}
	if err := c.contract.Call(opts, &out, methodGetMetadata, id); err != nil {
		return "", "", fmt.Errorf("getMetadata(%s): %w", tokenID, err)
	}
	if len(out) != 2 {
		return "", "", fmt.Errorf("getMetadata(%s): %d outputs", tokenID, len(out))
	}

	cid, _ = out[0].(string)
	key, _ := out[1].([]byte)
	if len(key) > 0 {
		encKey = hexutil.Encode(key)
	}
	return cid, encKey, nil
}

func (c *Client) PublishKey(ctx context.Context, key string) error {
	_, err := c.transact(ctx, methodPublishKey, key)
	return err
}

// GetPublicKey returns "" when address has not published a key on chain.
func (c *Client) GetPublicKey(ctx context.Context, address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	if err := c.contract.Call(opts, &out, methodGetPublicKey, common.HexToAddress(address)); err != nil {
		return "", fmt.Errorf("getPublicKey(%s): %w", address, err)
	}
	if len(out) != 1 {
		return "", fmt.Errorf("getPublicKey(%s): %d outputs", address, len(out))
	}
	key, _ := out[0].(string)
	return key, nil
}

func (c *Client) transact(ctx context.Context, method string, params ...interface{}) (*types.Receipt, error) {
	if c.key == nil {
		return nil, ErrReadOnly
	}

	chainID, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx

	tx, err := c.contract.Transact(opts, method, params...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	log.Info("transaction sent", zap.String("method", method), zap.String("tx", tx.Hash().Hex()))

	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("wait for %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: %s %s", ErrTxFailed, method, tx.Hash().Hex())
	}
	return receipt, nil
}

func (c *Client) Close() {
	if eth, ok := c.backend.(*ethclient.Client); ok {
		eth.Close()
	}
}
