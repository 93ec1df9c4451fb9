package memory

import (
	"context"
	"sync"

	"github.com/omni/transfer-indexer/db"
	"github.com/omni/transfer-indexer/entity"
)

var _ entity.BlockTimestampsRepo = (*BlockTimestampsRepo)(nil)

type blockKey struct {
	chainID     string
	blockNumber uint
}

type BlockTimestampsRepo struct {
	mu         sync.RWMutex
	timestamps map[blockKey]entity.BlockTimestamp
}

func NewBlockTimestampsRepo() *BlockTimestampsRepo {
	return &BlockTimestampsRepo{
		timestamps: make(map[blockKey]entity.BlockTimestamp, 1024),
	}
}

func (r *BlockTimestampsRepo) Ensure(ctx context.Context, ts *entity.BlockTimestamp) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timestamps[blockKey{ts.ChainID, ts.BlockNumber}] = entity.BlockTimestamp{
		ChainID:     ts.ChainID,
		BlockNumber: ts.BlockNumber,
		Timestamp:   ts.Timestamp,
	}
	return nil
}

func (r *BlockTimestampsRepo) GetByBlockNumber(ctx context.Context, chainID string, blockNumber uint) (*entity.BlockTimestamp, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ts, ok := r.timestamps[blockKey{chainID, blockNumber}]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &ts, nil
}
