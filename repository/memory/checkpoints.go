package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/transfer-indexer/db"
	"github.com/omni/transfer-indexer/entity"
)

var _ entity.CheckpointsRepo = (*CheckpointsRepo)(nil)

type checkpointKey struct {
	chainID string
	address common.Address
}

type CheckpointsRepo struct {
	mu          sync.RWMutex
	checkpoints map[checkpointKey]entity.Checkpoint
}

func NewCheckpointsRepo() *CheckpointsRepo {
	return &CheckpointsRepo{
		checkpoints: make(map[checkpointKey]entity.Checkpoint),
	}
}

func (r *CheckpointsRepo) Ensure(ctx context.Context, checkpoint *entity.Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := checkpointKey{checkpoint.ChainID, checkpoint.Address}
	if cur, ok := r.checkpoints[key]; ok && cur.LastIndexedBlock >= checkpoint.LastIndexedBlock {
		return nil
	}
	r.checkpoints[key] = entity.Checkpoint{
		ChainID:          checkpoint.ChainID,
		Address:          checkpoint.Address,
		LastIndexedBlock: checkpoint.LastIndexedBlock,
	}
	return nil
}

func (r *CheckpointsRepo) GetByChainIDAndAddress(ctx context.Context, chainID string, addr common.Address) (*entity.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	checkpoint, ok := r.checkpoints[checkpointKey{chainID, addr}]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &checkpoint, nil
}

func (r *CheckpointsRepo) FindByChainID(ctx context.Context, chainID string, addrs ...common.Address) ([]*entity.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wanted := make(map[common.Address]bool, len(addrs))
	for _, addr := range addrs {
		wanted[addr] = true
	}
	r.mu.RLock()
	res := make([]*entity.Checkpoint, 0, len(r.checkpoints))
	for key, checkpoint := range r.checkpoints {
		if key.chainID != chainID || (len(wanted) > 0 && !wanted[key.address]) {
			continue
		}
		checkpoint := checkpoint
		res = append(res, &checkpoint)
	}
	r.mu.RUnlock()
	sort.Slice(res, func(i, j int) bool {
		return bytes.Compare(res[i].Address[:], res[j].Address[:]) < 0
	})
	return res, nil
}
