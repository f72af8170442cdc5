package rpc

import (
	"context"
	"encoding/json"
	"fmt"
)

// GetBalance returns the lamport balance of an account and the slot the
// value was observed at.
func (c *Client) GetBalance(ctx context.Context, address string) (uint64, int64, error) {
	params := []interface{}{
		address,
		map[string]string{"commitment": "confirmed"},
	}
	result, err := c.call(ctx, "getBalance", params)
	if err != nil {
		return 0, 0, fmt.Errorf("getBalance(%s): %w", address, err)
	}

	var res BalanceResult
	if err := json.Unmarshal(result, &res); err != nil {
		return 0, 0, fmt.Errorf("unmarshal balance: %w", err)
	}
	return res.Value, res.Context.Slot, nil
}

// GetTokenAccountsByOwner returns the owner's SPL token accounts for one
// mint, parsed, plus the observation slot. An owner may hold several
// accounts for the same mint; callers sum them.
func (c *Client) GetTokenAccountsByOwner(ctx context.Context, owner, mint string) ([]TokenAccount, int64, error) {
	params := []interface{}{
		owner,
		map[string]string{"mint": mint},
		map[string]interface{}{
			"encoding":   "jsonParsed",
			"commitment": "confirmed",
		},
	}
	result, err := c.call(ctx, "getTokenAccountsByOwner", params)
	if err != nil {
		return nil, 0, fmt.Errorf("getTokenAccountsByOwner(%s): %w", owner, err)
	}

	var res TokenAccountsResult
	if err := json.Unmarshal(result, &res); err != nil {
		return nil, 0, fmt.Errorf("unmarshal token accounts: %w", err)
	}
	return res.Value, res.Context.Slot, nil
}

// GetHealth reports node health. A healthy node returns "ok"; unhealthy
// nodes answer with an RPC error.
func (c *Client) GetHealth(ctx context.Context) error {
	result, err := c.call(ctx, "getHealth", []interface{}{})
	if err != nil {
		return fmt.Errorf("getHealth: %w", err)
	}

	var status string
	if err := json.Unmarshal(result, &status); err != nil {
		return fmt.Errorf("unmarshal health: %w", err)
	}
	if status != "ok" {
		return fmt.Errorf("node unhealthy: %s", status)
	}
	return nil
}
