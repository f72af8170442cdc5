package rpc

import "encoding/json"

// JSON-RPC request/response types

type Request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// rpcContext wraps the "context" envelope most account queries return.
type rpcContext struct {
	Slot int64 `json:"slot"`
}

// getBalance response
type BalanceResult struct {
	Context rpcContext `json:"context"`
	Value   uint64     `json:"value"`
}

// getTokenAccountsByOwner response (jsonParsed encoding)
type TokenAccountsResult struct {
	Context rpcContext     `json:"context"`
	Value   []TokenAccount `json:"value"`
}

type TokenAccount struct {
	Pubkey  string `json:"pubkey"`
	Account struct {
		Lamports uint64 `json:"lamports"`
		Data     struct {
			Program string `json:"program"`
			Parsed  struct {
				Type string           `json:"type"`
				Info TokenAccountInfo `json:"info"`
			} `json:"parsed"`
		} `json:"data"`
	} `json:"account"`
}

type TokenAccountInfo struct {
	Mint        string      `json:"mint"`
	Owner       string      `json:"owner"`
	TokenAmount TokenAmount `json:"tokenAmount"`
}

type TokenAmount struct {
	Amount         string `json:"amount"` // raw integer in minor units
	Decimals       int    `json:"decimals"`
	UIAmountString string `json:"uiAmountString"`
}
