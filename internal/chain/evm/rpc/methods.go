package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ERC-20 function selectors.
var (
	selectorBalanceOf = []byte{0x70, 0xa0, 0x82, 0x31} // balanceOf(address)
	selectorDecimals  = []byte{0x31, 0x3c, 0xe5, 0x67} // decimals()
)

// GetBalance returns the wei balance of an address at the latest block.
func (c *Client) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	result, err := c.call(ctx, "eth_getBalance", []interface{}{address, "latest"})
	if err != nil {
		return nil, fmt.Errorf("eth_getBalance(%s): %w", address, err)
	}

	var hexVal string
	if err := json.Unmarshal(result, &hexVal); err != nil {
		return nil, fmt.Errorf("unmarshal balance: %w", err)
	}
	wei, err := ParseHexBig(hexVal)
	if err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}
	return wei, nil
}

// GetERC20Balance calls balanceOf(holder) on the token contract and
// returns the raw minor-unit amount.
func (c *Client) GetERC20Balance(ctx context.Context, contract, holder string) (*big.Int, error) {
	data := append([]byte{}, selectorBalanceOf...)
	data = append(data, common.LeftPadBytes(common.HexToAddress(holder).Bytes(), 32)...)

	result, err := c.ethCall(ctx, contract, data)
	if err != nil {
		return nil, fmt.Errorf("balanceOf(%s): %w", holder, err)
	}
	return result, nil
}

// GetERC20Decimals calls decimals() on the token contract.
func (c *Client) GetERC20Decimals(ctx context.Context, contract string) (int32, error) {
	result, err := c.ethCall(ctx, contract, selectorDecimals)
	if err != nil {
		return 0, fmt.Errorf("decimals(): %w", err)
	}
	if !result.IsInt64() || result.Int64() < 0 || result.Int64() > 77 {
		return 0, fmt.Errorf("implausible decimals %s for %s", result, contract)
	}
	return int32(result.Int64()), nil
}

// GetBlockNumber returns the latest block number; used as a liveness probe.
func (c *Client) GetBlockNumber(ctx context.Context) (int64, error) {
	result, err := c.call(ctx, "eth_blockNumber", []interface{}{})
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber: %w", err)
	}

	var hexNum string
	if err := json.Unmarshal(result, &hexNum); err != nil {
		return 0, fmt.Errorf("unmarshal block number: %w", err)
	}
	return ParseHexInt64(hexNum)
}

func (c *Client) ethCall(ctx context.Context, contract string, data []byte) (*big.Int, error) {
	msg := callMsg{
		To:   common.HexToAddress(contract).Hex(),
		Data: hexutil.Encode(data),
	}
	result, err := c.call(ctx, "eth_call", []interface{}{msg, "latest"})
	if err != nil {
		return nil, fmt.Errorf("eth_call(%s): %w", contract, err)
	}

	var hexVal string
	if err := json.Unmarshal(result, &hexVal); err != nil {
		return nil, fmt.Errorf("unmarshal call result: %w", err)
	}
	return ParseHexBig(hexVal)
}
