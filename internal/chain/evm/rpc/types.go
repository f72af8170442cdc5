package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

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

// callMsg is the eth_call parameter object.
type callMsg struct {
	To   string `json:"to"`
	Data string `json:"data"`
}

// ParseHexBig decodes a 0x-prefixed hex quantity into a big integer.
func ParseHexBig(value string) (*big.Int, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return nil, fmt.Errorf("empty hex value")
	}
	raw = strings.TrimPrefix(strings.ToLower(raw), "0x")
	if raw == "" {
		return big.NewInt(0), nil
	}
	n, ok := new(big.Int).SetString(raw, 16)
	if !ok {
		return nil, fmt.Errorf("parse hex %q", value)
	}
	return n, nil
}

// ParseHexInt64 decodes a 0x-prefixed hex quantity into an int64.
func ParseHexInt64(value string) (int64, error) {
	n, err := ParseHexBig(value)
	if err != nil {
		return 0, err
	}
	if !n.IsInt64() {
		return 0, fmt.Errorf("hex %q overflows int64", value)
	}
	return n.Int64(), nil
}
