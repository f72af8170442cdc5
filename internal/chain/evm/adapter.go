// Package evm implements the chain adapter for EVM networks. One package
// serves any EVM chain; the engine currently wires it for Ethereum.
package evm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/payrail/payrail/internal/chain"
	"github.com/payrail/payrail/internal/chain/evm/rpc"
	"github.com/payrail/payrail/internal/chain/ratelimit"
	"github.com/payrail/payrail/internal/chain/signer"
	"github.com/payrail/payrail/internal/domain/model"
)

const weiDecimals = 18 // decimal shift, 1 ETH = 1e18 wei

// TransferClient submits transfers through the signing service.
type TransferClient interface {
	Transfer(ctx context.Context, params signer.TransferParams) (signer.TransferResult, error)
}

type Adapter struct {
	client  rpc.RPCClient
	signer  TransferClient
	chain   model.Chain
	network model.Network
	limiter *ratelimit.Limiter
	logger  *slog.Logger

	mu       sync.Mutex
	decimals map[string]int32 // contract -> on-chain decimals
}

var _ chain.Adapter = (*Adapter)(nil)

func NewAdapter(chainName model.Chain, rpcURL string, network model.Network, signerClient TransferClient, limiter *ratelimit.Limiter, logger *slog.Logger) *Adapter {
	return &Adapter{
		client:   rpc.NewClient(rpcURL, logger),
		signer:   signerClient,
		chain:    chainName,
		network:  network,
		limiter:  limiter,
		logger:   logger.With("chain", chainName.String(), "network", network.String()),
		decimals: make(map[string]int32),
	}
}

func (a *Adapter) limit(ctx context.Context) error {
	if a.limiter == nil {
		return nil
	}
	return a.limiter.Wait(ctx)
}

func (a *Adapter) Chain() model.Chain {
	return a.chain
}

func (a *Adapter) Network() model.Network {
	return a.network
}

// GetBalance returns the native balance in ETH units, or the ERC-20
// balance scaled by the contract's decimals() value.
func (a *Adapter) GetBalance(ctx context.Context, address string, token model.Token) (decimal.Decimal, error) {
	if err := a.limit(ctx); err != nil {
		return decimal.Zero, err
	}

	if token.Native() {
		wei, err := a.client.GetBalance(ctx, address)
		ratelimit.RecordRPCCall(a.chain.String(), "eth_getBalance", err)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%s balance: %w", a.chain, err)
		}
		return decimal.NewFromBigInt(wei, -weiDecimals), nil
	}

	contract, ok := token.Contract(a.network)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s on %s", chain.ErrUnsupportedToken, token.Symbol, a.network)
	}

	raw, err := a.client.GetERC20Balance(ctx, contract, address)
	ratelimit.RecordRPCCall(a.chain.String(), "eth_call", err)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s token balance: %w", a.chain, err)
	}
	scale, err := a.contractDecimals(ctx, contract)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(raw, -scale), nil
}

// contractDecimals resolves and caches the ERC-20 decimals() value.
// Token contracts never change their scale, so one query per contract
// suffices for the process lifetime.
func (a *Adapter) contractDecimals(ctx context.Context, contract string) (int32, error) {
	a.mu.Lock()
	scale, ok := a.decimals[contract]
	a.mu.Unlock()
	if ok {
		return scale, nil
	}

	scale, err := a.client.GetERC20Decimals(ctx, contract)
	ratelimit.RecordRPCCall(a.chain.String(), "eth_call", err)
	if err != nil {
		return 0, fmt.Errorf("contract decimals %s: %w", contract, err)
	}

	a.mu.Lock()
	a.decimals[contract] = scale
	a.mu.Unlock()
	return scale, nil
}

// ValidateAddress checks 0x-prefixed hex encoding.
func (a *Adapter) ValidateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("%w: empty address", chain.ErrInvalidAddress)
	}
	if !common.IsHexAddress(address) {
		return fmt.Errorf("%w: %q is not a hex address", chain.ErrInvalidAddress, address)
	}
	return nil
}

func (a *Adapter) Transfer(ctx context.Context, req chain.TransferRequest) (chain.TransferReceipt, error) {
	if a.signer == nil {
		return chain.TransferReceipt{}, errors.New("evm transfer: no signer configured")
	}
	if err := a.limit(ctx); err != nil {
		return chain.TransferReceipt{}, err
	}

	params := signer.TransferParams{
		RequestID: req.RequestID,
		Chain:     a.chain.String(),
		Network:   a.network.String(),
		Token:     req.Token.Symbol,
		From:      req.From,
		// Normalize to the checksummed form the signer expects.
		To:     common.HexToAddress(req.To).Hex(),
		Amount: req.Amount.String(),
		Memo:   req.Memo,
	}
	if !req.Token.Native() {
		contract, ok := req.Token.Contract(a.network)
		if !ok {
			return chain.TransferReceipt{}, fmt.Errorf("%w: %s on %s", chain.ErrUnsupportedToken, req.Token.Symbol, a.network)
		}
		params.Contract = contract
	}

	result, err := a.signer.Transfer(ctx, params)
	if err != nil {
		return chain.TransferReceipt{}, chain.MapSignerError(a.chain.String(), err)
	}

	return chain.TransferReceipt{
		TxHash:   result.TxHash,
		Status:   chain.ReceiptStatus(result.Status),
		Sequence: result.Sequence,
	}, nil
}

// Health reports whether the RPC node serves block numbers.
func (a *Adapter) Health(ctx context.Context) error {
	_, err := a.client.GetBlockNumber(ctx)
	ratelimit.RecordRPCCall(a.chain.String(), "eth_blockNumber", err)
	return err
}
