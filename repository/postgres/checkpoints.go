package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/ethereum/go-ethereum/common"
	"github.com/lib/pq"

	"github.com/omni/transfer-indexer/db"
	"github.com/omni/transfer-indexer/entity"
)

type checkpointsRepo basePostgresRepo

func NewCheckpointsRepo(table string, db *db.DB) entity.CheckpointsRepo {
	return (*checkpointsRepo)(newBasePostgresRepo(table, db))
}

func (r *checkpointsRepo) Ensure(ctx context.Context, checkpoint *entity.Checkpoint) error {
	q, args, err := sq.Insert(r.table).
		Columns("chain_id", "address", "last_indexed_block").
		Values(checkpoint.ChainID, checkpoint.Address, checkpoint.LastIndexedBlock).
		Suffix(fmt.Sprintf("ON CONFLICT (chain_id, address) DO UPDATE SET updated_at = NOW(), "+
			"last_indexed_block = GREATEST(%s.last_indexed_block, EXCLUDED.last_indexed_block)", r.table)).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("can't insert checkpoint: %w", err)
	}
	return nil
}

func (r *checkpointsRepo) GetByChainIDAndAddress(ctx context.Context, chainID string, addr common.Address) (*entity.Checkpoint, error) {
	q, args, err := sq.Select("*").
		From(r.table).
		Where(sq.Eq{"chain_id": chainID, "address": addr}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	checkpoint := new(entity.Checkpoint)
	err = r.db.GetContext(ctx, checkpoint, q, args...)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, db.ErrNotFound
		}
		return nil, fmt.Errorf("can't get checkpoint by chain_id and address: %w", err)
	}
	return checkpoint, nil
}

func (r *checkpointsRepo) FindByChainID(ctx context.Context, chainID string, addrs ...common.Address) ([]*entity.Checkpoint, error) {
	builder := sq.Select("*").
		From(r.table).
		Where(sq.Eq{"chain_id": chainID}).
		OrderBy("address")
	if len(addrs) > 0 {
		raw := make([][]byte, len(addrs))
		for i, addr := range addrs {
			raw[i] = addr.Bytes()
		}
		builder = builder.Where("address = ANY(?)", pq.Array(raw))
	}
	q, args, err := builder.PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	checkpoints := make([]*entity.Checkpoint, 0, len(addrs))
	err = r.db.SelectContext(ctx, &checkpoints, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't find checkpoints: %w", err)
	}
	return checkpoints, nil
}
