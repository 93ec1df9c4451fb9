package indexer

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/transfer-indexer/config"
)

type TrackedToken struct {
	Address    common.Address
	StartBlock uint
}

func TrackedTokens(cfg *config.Config) []*TrackedToken {
	tokens := make([]*TrackedToken, len(cfg.Tokens))
	for i, token := range cfg.Tokens {
		tokens[i] = &TrackedToken{
			Address:    token.Address,
			StartBlock: cfg.TokenStartBlock(token),
		}
	}
	return tokens
}

type BlocksRange struct {
	From uint
	To   uint
}

// SplitBlockRange splits [fromBlock, toBlock] into consecutive ranges of at most maxSize blocks.
func SplitBlockRange(fromBlock uint, toBlock uint, maxSize uint) []*BlocksRange {
	batches := make([]*BlocksRange, 0, 10)
	for fromBlock <= toBlock {
		batchToBlock := fromBlock + maxSize - 1
		if batchToBlock > toBlock {
			batchToBlock = toBlock
		}
		batches = append(batches, &BlocksRange{
			From: fromBlock,
			To:   batchToBlock,
		})
		fromBlock += maxSize
	}
	return batches
}
