package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"

	"github.com/payrail/payrail/internal/chain"
	"github.com/payrail/payrail/internal/chain/ratelimit"
	"github.com/payrail/payrail/internal/chain/signer"
	"github.com/payrail/payrail/internal/chain/solana/rpc"
	"github.com/payrail/payrail/internal/domain/model"
)

const lamportsPerSol = 9 // decimal shift, 1 SOL = 1e9 lamports

// TransferClient submits transfers through the signing service.
type TransferClient interface {
	Transfer(ctx context.Context, params signer.TransferParams) (signer.TransferResult, error)
}

type Adapter struct {
	client  rpc.RPCClient
	signer  TransferClient
	network model.Network
	limiter *ratelimit.Limiter
	logger  *slog.Logger
}

var _ chain.Adapter = (*Adapter)(nil)

func NewAdapter(rpcURL string, network model.Network, signerClient TransferClient, limiter *ratelimit.Limiter, logger *slog.Logger) *Adapter {
	return &Adapter{
		client:  rpc.NewClient(rpcURL, logger),
		signer:  signerClient,
		network: network,
		limiter: limiter,
		logger:  logger.With("chain", "solana", "network", network.String()),
	}
}

func (a *Adapter) limit(ctx context.Context) error {
	if a.limiter == nil {
		return nil
	}
	return a.limiter.Wait(ctx)
}

func (a *Adapter) Chain() model.Chain {
	return model.ChainSolana
}

func (a *Adapter) Network() model.Network {
	return a.network
}

// GetBalance returns the SOL balance for native queries, or the summed SPL
// token account balance for the token's mint on this network.
func (a *Adapter) GetBalance(ctx context.Context, address string, token model.Token) (decimal.Decimal, error) {
	if err := a.limit(ctx); err != nil {
		return decimal.Zero, err
	}

	if token.Native() {
		lamports, slot, err := a.client.GetBalance(ctx, address)
		ratelimit.RecordRPCCall("solana", "getBalance", err)
		if err != nil {
			return decimal.Zero, fmt.Errorf("solana balance: %w", err)
		}
		a.logger.Debug("fetched native balance", "address", address, "lamports", lamports, "slot", slot)
		return decimal.NewFromUint64(lamports).Shift(-lamportsPerSol), nil
	}

	mint, ok := token.Contract(a.network)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s on %s", chain.ErrUnsupportedToken, token.Symbol, a.network)
	}

	accounts, slot, err := a.client.GetTokenAccountsByOwner(ctx, address, mint)
	ratelimit.RecordRPCCall("solana", "getTokenAccountsByOwner", err)
	if err != nil {
		return decimal.Zero, fmt.Errorf("solana token balance: %w", err)
	}

	total := decimal.Zero
	for _, acct := range accounts {
		amt := acct.Account.Data.Parsed.Info.TokenAmount
		var v decimal.Decimal
		if amt.UIAmountString != "" {
			v, err = decimal.NewFromString(amt.UIAmountString)
		} else {
			v, err = decimal.NewFromString(amt.Amount)
			v = v.Shift(-int32(amt.Decimals))
		}
		if err != nil {
			return decimal.Zero, fmt.Errorf("parse token amount %q: %w", amt.UIAmountString, err)
		}
		total = total.Add(v)
	}
	a.logger.Debug("fetched token balance",
		"address", address,
		"mint", mint,
		"accounts", len(accounts),
		"slot", slot,
	)
	return total, nil
}

// ValidateAddress checks that the address is base58 for a 32-byte key.
func (a *Adapter) ValidateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("%w: empty address", chain.ErrInvalidAddress)
	}
	raw, err := base58.Decode(address)
	if err != nil {
		return fmt.Errorf("%w: %s", chain.ErrInvalidAddress, err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("%w: decoded length %d, want 32", chain.ErrInvalidAddress, len(raw))
	}
	return nil
}

func (a *Adapter) Transfer(ctx context.Context, req chain.TransferRequest) (chain.TransferReceipt, error) {
	if a.signer == nil {
		return chain.TransferReceipt{}, errors.New("solana transfer: no signer configured")
	}
	if err := a.limit(ctx); err != nil {
		return chain.TransferReceipt{}, err
	}

	params := signer.TransferParams{
		RequestID: req.RequestID,
		Chain:     model.ChainSolana.String(),
		Network:   a.network.String(),
		Token:     req.Token.Symbol,
		From:      req.From,
		To:        req.To,
		Amount:    req.Amount.String(),
		Memo:      req.Memo,
	}
	if !req.Token.Native() {
		mint, ok := req.Token.Contract(a.network)
		if !ok {
			return chain.TransferReceipt{}, fmt.Errorf("%w: %s on %s", chain.ErrUnsupportedToken, req.Token.Symbol, a.network)
		}
		params.Contract = mint
	}

	result, err := a.signer.Transfer(ctx, params)
	if err != nil {
		return chain.TransferReceipt{}, chain.MapSignerError("solana", err)
	}

	return chain.TransferReceipt{
		TxHash:   result.TxHash,
		Status:   chain.ReceiptStatus(result.Status),
		Sequence: result.Sequence,
	}, nil
}

// Health reports whether the RPC node answers getHealth.
func (a *Adapter) Health(ctx context.Context) error {
	err := a.client.GetHealth(ctx)
	ratelimit.RecordRPCCall("solana", "getHealth", err)
	return err
}
