package entity

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type Transfer struct {
	ID              uint           `db:"id"`
	ChainID         string         `db:"chain_id"`
	TransactionHash common.Hash    `db:"transaction_hash"`
	BlockNumber     uint           `db:"block_number"`
	LogIndex        uint           `db:"log_index"`
	TokenAddress    common.Address `db:"token_address"`
	FromAddress     common.Address `db:"from_address"`
	ToAddress       common.Address `db:"to_address"`
	Value           string         `db:"value"`
	BlockTimestamp  time.Time      `db:"block_timestamp"`
	CreatedAt       *time.Time     `db:"created_at"`
}

// TransferKey identifies a single Transfer event on a chain.
type TransferKey struct {
	ChainID         string
	TransactionHash common.Hash
	LogIndex        uint
}

func (t *Transfer) Key() TransferKey {
	return TransferKey{
		ChainID:         t.ChainID,
		TransactionHash: t.TransactionHash,
		LogIndex:        t.LogIndex,
	}
}

type TransferOrder string

const (
	OrderByBlockNumber TransferOrder = "block_number"
	OrderByTimestamp   TransferOrder = "block_timestamp"
)

type TransferFilter struct {
	ChainID     string
	Participant *common.Address
	Token       *common.Address
	FromBlock   *uint
	ToBlock     *uint
	FromTime    *time.Time
	ToTime      *time.Time
	OrderBy     TransferOrder
	Descending  bool
	Limit       uint
	Offset      uint
}

type TransfersRepo interface {
	// Ensure inserts transfers skipping already stored ones and returns the number of inserted rows.
	Ensure(ctx context.Context, transfers ...*Transfer) (int, error)
	Find(ctx context.Context, filter *TransferFilter) ([]*Transfer, error)
	Count(ctx context.Context, filter *TransferFilter) (uint, error)
}
