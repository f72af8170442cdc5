package model

type Chain string

const (
	ChainSolana   Chain = "solana"
	ChainEthereum Chain = "ethereum"
)

func (c Chain) String() string {
	return string(c)
}

// Valid reports whether c is a chain this engine can route payments to.
func (c Chain) Valid() bool {
	switch c {
	case ChainSolana, ChainEthereum:
		return true
	}
	return false
}

type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkDevnet  Network = "devnet"
	NetworkSepolia Network = "sepolia"
)

func (n Network) String() string {
	return string(n)
}

// TransferStatus is the submission status reported by a chain adapter.
type TransferStatus string

const (
	TransferStatusConfirmed TransferStatus = "CONFIRMED"
	TransferStatusSubmitted TransferStatus = "SUBMITTED"
	TransferStatusRejected  TransferStatus = "REJECTED"
)
