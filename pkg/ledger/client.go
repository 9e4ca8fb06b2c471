// Package ledger talks to the on-chain biometric registry contract.
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
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/jobmesh/identity-middleware/internal/metrics"
	"github.com/jobmesh/identity-middleware/pkg/config"
)

// ErrLedgerUnavailable indicates the registry could not be reached or a
// transaction could not be confirmed.
var ErrLedgerUnavailable = errors.New("ledger unavailable")

// registryABI is the BiometricRegistry contract interface. The registry
// maps wallet addresses to biometric digests and exposes a read path for
// verification.
const registryABI = `[
	{"type":"function","name":"registerBinding","stateMutability":"nonpayable","inputs":[{"name":"wallet","type":"address"},{"name":"biometricHash","type":"bytes32"},{"name":"credentialId","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"checkBinding","stateMutability":"view","inputs":[{"name":"wallet","type":"address"},{"name":"biometricHash","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"bindingOf","stateMutability":"view","inputs":[{"name":"wallet","type":"address"}],"outputs":[{"name":"","type":"bytes32"}]}
]`

// Client represents a connection to the biometric registry
type Client struct {
	config          config.LedgerConfig
	client          *ethclient.Client
	privateKey      *ecdsa.PrivateKey
	address         common.Address
	registryAddress common.Address
	registry        *bind.BoundContract
	logger          *zap.Logger
}

// NewClient connects to the ledger RPC and binds the registry contract
func NewClient(cfg config.LedgerConfig, logger *zap.Logger) (*Client, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ledger RPC: %w", err)
	}

	privateKey, err := crypto.HexToECDSA(cfg.SignerPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load signer key: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse registry ABI: %w", err)
	}

	address := crypto.PubkeyToAddress(privateKey.PublicKey)
	registryAddress := common.HexToAddress(cfg.RegistryContract)
	registry := bind.NewBoundContract(registryAddress, parsed, client, client, client)

	logger.Info("Connected to ledger",
		zap.Int64("chain_id", cfg.ChainID),
		zap.String("rpc_url", cfg.RPCURL),
		zap.String("registry_contract", registryAddress.Hex()),
		zap.String("signer_address", address.Hex()))

	return &Client{
		config:          cfg,
		client:          client,
		privateKey:      privateKey,
		address:         address,
		registryAddress: registryAddress,
		registry:        registry,
		logger:          logger,
	}, nil
}

// Close closes the ledger connection
func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

func (c *Client) transactor(ctx context.Context) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(c.privateKey, big.NewInt(c.config.ChainID))
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}

	nonce, err := c.client.PendingNonceAt(ctx, c.address)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	auth.Context = ctx
	auth.Nonce = big.NewInt(int64(nonce))
	auth.GasLimit = c.config.GasLimit
	return auth, nil
}

// RegisterBinding writes the wallet-to-digest binding together with the
// platform credential ID and waits for the transaction to be mined. The
// wait is bounded by the configured call timeout.
func (c *Client) RegisterBinding(ctx context.Context, wallet common.Address, biometricHash [32]byte, credentialID []byte) (common.Hash, error) {
	timer := prometheus.NewTimer(metrics.LedgerCallDuration.WithLabelValues("register_binding"))
	defer timer.ObserveDuration()

	ctx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
	defer cancel()

	auth, err := c.transactor(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	tx, err := c.registry.Transact(auth, "registerBinding", wallet, biometricHash, credentialID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: register binding: %v", ErrLedgerUnavailable, err)
	}

	receipt, err := bind.WaitMined(ctx, c.client, tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: wait for binding tx: %v", ErrLedgerUnavailable, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return common.Hash{}, fmt.Errorf("binding transaction %s reverted", tx.Hash().Hex())
	}

	c.logger.Info("Biometric binding registered",
		zap.String("wallet", wallet.Hex()),
		zap.String("tx_hash", tx.Hash().Hex()),
		zap.Uint64("block", receipt.BlockNumber.Uint64()))

	return tx.Hash(), nil
}

// CheckBinding returns whether the wallet is bound to the given digest.
func (c *Client) CheckBinding(ctx context.Context, wallet common.Address, biometricHash [32]byte) (bool, error) {
	timer := prometheus.NewTimer(metrics.LedgerCallDuration.WithLabelValues("check_binding"))
	defer timer.ObserveDuration()

	ctx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
	defer cancel()

	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	if err := c.registry.Call(opts, &out, "checkBinding", wallet, biometricHash); err != nil {
		return false, fmt.Errorf("%w: check binding: %v", ErrLedgerUnavailable, err)
	}

	matched, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected checkBinding result type %T", out[0])
	}
	return matched, nil
}

// BindingOf returns the digest bound to the wallet, or the zero digest if
// the wallet has no binding.
func (c *Client) BindingOf(ctx context.Context, wallet common.Address) ([32]byte, error) {
	timer := prometheus.NewTimer(metrics.LedgerCallDuration.WithLabelValues("binding_of"))
	defer timer.ObserveDuration()

	ctx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
	defer cancel()

	var out []interface{}
	opts := &bind.CallOpts{Context: ctx}
	if err := c.registry.Call(opts, &out, "bindingOf", wallet); err != nil {
		return [32]byte{}, fmt.Errorf("%w: binding lookup: %v", ErrLedgerUnavailable, err)
	}

	digest, ok := out[0].([32]byte)
	if !ok {
		return [32]byte{}, fmt.Errorf("unexpected bindingOf result type %T", out[0])
	}
	return digest, nil
}
