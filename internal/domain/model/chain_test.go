package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChainString(t *testing.T) {
	assert.Equal(t, "solana", ChainSolana.String())
	assert.Equal(t, "ethereum", ChainEthereum.String())
}

func TestChainValid(t *testing.T) {
	assert.True(t, ChainSolana.Valid())
	assert.True(t, ChainEthereum.Valid())
	assert.False(t, Chain("dogecoin").Valid())
	assert.False(t, Chain("").Valid())
}

func TestNetworkString(t *testing.T) {
	assert.Equal(t, "mainnet", NetworkMainnet.String())
	assert.Equal(t, "devnet", NetworkDevnet.String())
	assert.Equal(t, "sepolia", NetworkSepolia.String())
}

func TestTransferStatusConstants(t *testing.T) {
	assert.Equal(t, TransferStatus("CONFIRMED"), TransferStatusConfirmed)
	assert.Equal(t, TransferStatus("SUBMITTED"), TransferStatusSubmitted)
	assert.Equal(t, TransferStatus("REJECTED"), TransferStatusRejected)
}
