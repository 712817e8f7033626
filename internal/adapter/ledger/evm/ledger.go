// Package evm settles payments on an EVM compatible chain. One smallest
// payment unit is one gwei.
package evm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"strings"
	"time"

	"agentpay/internal/core/ports"
	"agentpay/internal/signer"
	"agentpay/pkg/apperror"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

var weiPerUnit = big.NewInt(1_000_000_000)

// Backend is the subset of ethclient.Client the ledger needs.
type Backend interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// Config describes the chain connection.
type Config struct {
	RPCURL         string
	ChainID        int64
	GasLimit       uint64
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
}

// Ledger implements ports.Ledger against an EVM JSON-RPC node.
type Ledger struct {
	backend        Backend
	closer         func()
	chainID        *big.Int
	gasLimit       uint64
	confirmTimeout time.Duration
	pollInterval   time.Duration
}

// Dial connects to cfg.RPCURL.
func Dial(ctx context.Context, cfg Config) (*Ledger, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("ledger rpc url is not configured")
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial ledger node: %w", err)
	}
	l := New(client, cfg)
	l.closer = client.Close
	return l, nil
}

// New wraps an existing backend.
func New(backend Backend, cfg Config) *Ledger {
	gasLimit := cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = 21_000
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}
	timeout := cfg.ConfirmTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	var chainID *big.Int
	if cfg.ChainID > 0 {
		chainID = big.NewInt(cfg.ChainID)
	}
	return &Ledger{
		backend:        backend,
		chainID:        chainID,
		gasLimit:       gasLimit,
		confirmTimeout: timeout,
		pollInterval:   poll,
	}
}

// Close releases the RPC connection when the ledger owns it.
func (l *Ledger) Close() {
	if l.closer != nil {
		l.closer()
	}
}

// CurrentBalance returns the balance of address in gwei.
func (l *Ledger) CurrentBalance(ctx context.Context, address string) (int64, error) {
	if !signer.ValidAddress(address) {
		return 0, apperror.InvalidRequest(fmt.Sprintf("invalid address %q", address))
	}
	wei, err := l.backend.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return 0, apperror.ErrLedgerUnavailable(fmt.Errorf("balance of %s: %w", address, err))
	}
	return toUnits(wei), nil
}

// SubmitTransfer signs and broadcasts a value transfer and waits for its
// receipt. The memo travels as transaction data.
func (l *Ledger) SubmitTransfer(ctx context.Context, cred *signer.Credential, toAddress string, amount int64, memo *string) (string, error) {
	if amount <= 0 {
		return "", apperror.ErrLedgerRejected(errors.New("transfer amount must be positive"))
	}
	if !signer.ValidAddress(toAddress) {
		return "", apperror.ErrLedgerRejected(fmt.Errorf("invalid recipient address %q", toAddress))
	}
	if cred == nil {
		return "", apperror.ErrLedgerRejected(signer.ErrZeroed)
	}
	key, err := cred.PrivateKey()
	if err != nil {
		return "", apperror.ErrLedgerRejected(err)
	}
	from := common.HexToAddress(cred.Address())
	to := common.HexToAddress(toAddress)

	chainID, err := l.resolveChainID(ctx)
	if err != nil {
		return "", apperror.ErrLedgerUnavailable(fmt.Errorf("chain id: %w", err))
	}
	gasPrice, err := l.backend.SuggestGasPrice(ctx)
	if err != nil {
		return "", apperror.ErrLedgerUnavailable(fmt.Errorf("suggest gas price: %w", err))
	}
	balance, err := l.backend.BalanceAt(ctx, from, nil)
	if err != nil {
		return "", apperror.ErrLedgerUnavailable(fmt.Errorf("balance of %s: %w", from.Hex(), err))
	}

	var data []byte
	if memo != nil {
		data = []byte(*memo)
	}
	gas := l.gasLimit
	if len(data) > 0 {
		// 16 gas per non-zero calldata byte on top of the base transfer.
		gas += uint64(len(data)) * 16
	}

	value := new(big.Int).Mul(big.NewInt(amount), weiPerUnit)
	fee := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gas))
	required := new(big.Int).Add(value, fee)
	if balance.Cmp(required) < 0 {
		return "", apperror.ErrInsufficientFunds(ceilUnits(required), toUnits(balance))
	}

	nonce, err := l.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return "", apperror.ErrLedgerUnavailable(fmt.Errorf("pending nonce: %w", err))
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    value,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return "", apperror.ErrLedgerRejected(fmt.Errorf("sign transaction: %w", err))
	}
	if err := l.backend.SendTransaction(ctx, signed); err != nil {
		return "", classifySendError(err)
	}

	receipt, err := l.waitReceipt(ctx, signed.Hash())
	if err != nil {
		return "", err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", apperror.ErrLedgerRejected(fmt.Errorf("transaction %s reverted", signed.Hash().Hex()))
	}
	return signed.Hash().Hex(), nil
}

// classifySendError tells a node that refused the transaction apart from a
// node that could not be reached.
func classifySendError(err error) *apperror.AppError {
	wrapped := fmt.Errorf("send transaction: %w", err)

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return apperror.ErrLedgerRejected(wrapped)
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode >= http.StatusInternalServerError || httpErr.StatusCode == http.StatusTooManyRequests {
			return apperror.ErrLedgerUnavailable(wrapped)
		}
		return apperror.ErrLedgerRejected(wrapped)
	}
	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return apperror.ErrLedgerUnavailable(wrapped)
	}
	return apperror.ErrLedgerRejected(wrapped)
}

func (l *Ledger) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, l.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := l.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, gethcore.NotFound) {
			return nil, apperror.ErrLedgerUnavailable(fmt.Errorf("receipt for %s: %w", hash.Hex(), err))
		}
		select {
		case <-ctx.Done():
			return nil, apperror.ErrLedgerUnavailable(fmt.Errorf("transaction %s not confirmed within %s", hash.Hex(), l.confirmTimeout))
		case <-ticker.C:
		}
	}
}

// SettlementStatus looks up the receipt of a previously submitted transfer.
func (l *Ledger) SettlementStatus(ctx context.Context, settlementID string) (*ports.SettlementStatus, error) {
	receipt, err := l.backend.TransactionReceipt(ctx, common.HexToHash(settlementID))
	if errors.Is(err, gethcore.NotFound) {
		return &ports.SettlementStatus{Confirmed: false, RawStatus: "pending"}, nil
	}
	if err != nil {
		return nil, apperror.ErrLedgerUnavailable(fmt.Errorf("receipt for %s: %w", settlementID, err))
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return &ports.SettlementStatus{Confirmed: true, RawStatus: "reverted", Error: "execution reverted"}, nil
	}
	return &ports.SettlementStatus{Confirmed: true, RawStatus: "success"}, nil
}

// Ping implements ports.HealthChecker.
func (l *Ledger) Ping(ctx context.Context) error {
	_, err := l.backend.ChainID(ctx)
	return err
}

// Name returns the dependency name.
func (l *Ledger) Name() string {
	return "ledger"
}

func (l *Ledger) resolveChainID(ctx context.Context) (*big.Int, error) {
	if l.chainID != nil {
		return l.chainID, nil
	}
	return l.backend.ChainID(ctx)
}

func toUnits(wei *big.Int) int64 {
	return new(big.Int).Quo(wei, weiPerUnit).Int64()
}

func ceilUnits(wei *big.Int) int64 {
	q, r := new(big.Int).QuoRem(wei, weiPerUnit, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q.Int64()
}
