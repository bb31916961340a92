package domain

// Block represents a blockchain block together with its transactions
type Block struct {
	ChainID      ChainID
	Number       uint64
	Hash         string
	ParentHash   string
	Timestamp    uint64
	Transactions []*Transaction
}
