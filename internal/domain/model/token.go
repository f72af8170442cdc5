package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownToken marks registry lookups for symbols that are not
// configured. Callers wrap it with the offending symbol.
var ErrUnknownToken = errors.New("unknown token")

// Token is an immutable registry entry describing a payable asset.
// Decimals is the engine-facing rounding precision for amounts of this
// token; on-chain minor-unit scaling (lamports, wei) is an adapter concern.
type Token struct {
	Symbol      string
	Name        string
	Chain       Chain
	Decimals    int32
	CoinGeckoID string
	Stablecoin  bool
	// Contracts maps network to the mint/contract address. Empty for
	// native assets.
	Contracts map[Network]string
}

// Native reports whether the token is the chain's native asset.
func (t Token) Native() bool {
	return len(t.Contracts) == 0
}

// Contract returns the mint/contract address for the given network.
func (t Token) Contract(network Network) (string, bool) {
	addr, ok := t.Contracts[network]
	return addr, ok
}

// Solana native SOL mint address
const SolanaNativeMint = "11111111111111111111111111111111"

// DefaultTokens returns the built-in registry. Order is meaningful: it is
// the preference order for USD-denominated payments and the final
// tie-break order for funding suggestions.
func DefaultTokens() []Token {
	return []Token{
		{
			Symbol:      "SOL",
			Name:        "Solana",
			Chain:       ChainSolana,
			Decimals:    4,
			CoinGeckoID: "solana",
		},
		{
			Symbol:      "ETH",
			Name:        "Ethereum",
			Chain:       ChainEthereum,
			Decimals:    6,
			CoinGeckoID: "ethereum",
		},
		{
			Symbol:      "USDC",
			Name:        "USD Coin",
			Chain:       ChainSolana,
			Decimals:    2,
			CoinGeckoID: "usd-coin",
			Stablecoin:  true,
			Contracts: map[Network]string{
				NetworkMainnet: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
				NetworkDevnet:  "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU",
			},
		},
		{
			Symbol:      "USDT",
			Name:        "Tether",
			Chain:       ChainEthereum,
			Decimals:    2,
			CoinGeckoID: "tether",
			Stablecoin:  true,
			Contracts: map[Network]string{
				NetworkMainnet: "0xdAC17F958D2ee523a2206206994597C13D831ec7",
				NetworkSepolia: "0x7169D38820dfd117C3FA1f22a697dBA58d90BA06",
			},
		},
	}
}

// Registry holds the configured token set and preserves declaration order.
type Registry struct {
	ordered []Token
	bySym   map[string]Token
}

// NewRegistry builds a registry from the given tokens. Symbols are
// case-insensitive and must be unique; each token's chain must be valid.
func NewRegistry(tokens []Token) (*Registry, error) {
	r := &Registry{bySym: make(map[string]Token, len(tokens))}
	for _, t := range tokens {
		sym := strings.ToUpper(strings.TrimSpace(t.Symbol))
		if sym == "" {
			return nil, fmt.Errorf("token with empty symbol")
		}
		if !t.Chain.Valid() {
			return nil, fmt.Errorf("token %s: unknown chain %q", sym, t.Chain)
		}
		if t.Decimals < 0 {
			return nil, fmt.Errorf("token %s: negative decimals", sym)
		}
		if _, dup := r.bySym[sym]; dup {
			return nil, fmt.Errorf("duplicate token symbol %s", sym)
		}
		t.Symbol = sym
		r.bySym[sym] = t
		r.ordered = append(r.ordered, t)
	}
	if len(r.ordered) == 0 {
		return nil, fmt.Errorf("empty token registry")
	}
	return r, nil
}

// Lookup returns the token for a symbol, case-insensitively.
func (r *Registry) Lookup(symbol string) (Token, bool) {
	t, ok := r.bySym[strings.ToUpper(strings.TrimSpace(symbol))]
	return t, ok
}

// Tokens returns the registry in declaration order.
func (r *Registry) Tokens() []Token {
	out := make([]Token, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// TokensOnChain returns the registry tokens that live on the given chain,
// in declaration order.
func (r *Registry) TokensOnChain(chain Chain) []Token {
	var out []Token
	for _, t := range r.ordered {
		if t.Chain == chain {
			out = append(out, t)
		}
	}
	return out
}

// Symbols returns all registered symbols in declaration order.
func (r *Registry) Symbols() []string {
	out := make([]string, 0, len(r.ordered))
	for _, t := range r.ordered {
		out = append(out, t.Symbol)
	}
	return out
}
