package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/omni/transfer-indexer/db"
	"github.com/omni/transfer-indexer/entity"
)

// maxInsertRows keeps a single INSERT below the postgres limit of 65535 bind parameters.
const maxInsertRows = 2000

type transfersRepo basePostgresRepo

func NewTransfersRepo(table string, db *db.DB) entity.TransfersRepo {
	return (*transfersRepo)(newBasePostgresRepo(table, db))
}

func (r *transfersRepo) Ensure(ctx context.Context, transfers ...*entity.Transfer) (int, error) {
	if len(transfers) == 0 {
		return 0, nil
	}
	inserted := 0
	err := r.db.RunInTx(ctx, func(ctx context.Context) error {
		inserted = 0
		for start := 0; start < len(transfers); start += maxInsertRows {
			end := start + maxInsertRows
			if end > len(transfers) {
				end = len(transfers)
			}
			n, err := r.insertChunk(ctx, transfers[start:end])
			if err != nil {
				return err
			}
			inserted += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (r *transfersRepo) insertChunk(ctx context.Context, transfers []*entity.Transfer) (int, error) {
	builder := sq.Insert(r.table).
		Columns("chain_id", "transaction_hash", "block_number", "log_index", "token_address",
			"from_address", "to_address", "value", "block_timestamp")
	for _, t := range transfers {
		builder = builder.Values(t.ChainID, t.TransactionHash, t.BlockNumber, t.LogIndex, t.TokenAddress,
			t.FromAddress, t.ToAddress, t.Value, t.BlockTimestamp)
	}
	q, args, err := builder.
		Suffix("ON CONFLICT (chain_id, transaction_hash, log_index) DO NOTHING").
		Suffix("RETURNING id").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("can't build query: %w", err)
	}
	ids := make([]uint, 0, len(transfers))
	err = r.db.SelectContext(ctx, &ids, q, args...)
	if err != nil {
		return 0, fmt.Errorf("can't insert transfers: %w", err)
	}
	return len(ids), nil
}

func (r *transfersRepo) Find(ctx context.Context, filter *entity.TransferFilter) ([]*entity.Transfer, error) {
	q, args, err := buildFindTransfersQuery(r.table, filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	transfers := make([]*entity.Transfer, 0, 10)
	err = r.db.SelectContext(ctx, &transfers, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't find transfers: %w", err)
	}
	return transfers, nil
}

func (r *transfersRepo) Count(ctx context.Context, filter *entity.TransferFilter) (uint, error) {
	q, args, err := applyTransferFilter(sq.Select("COUNT(*)").From(r.table), filter).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("can't build query: %w", err)
	}
	var count uint
	err = r.db.GetContext(ctx, &count, q, args...)
	if err != nil {
		return 0, fmt.Errorf("can't count transfers: %w", err)
	}
	return count, nil
}

func applyTransferFilter(builder sq.SelectBuilder, filter *entity.TransferFilter) sq.SelectBuilder {
	if filter.ChainID != "" {
		builder = builder.Where(sq.Eq{"chain_id": filter.ChainID})
	}
	if filter.Participant != nil {
		builder = builder.Where(sq.Or{
			sq.Eq{"from_address": *filter.Participant},
			sq.Eq{"to_address": *filter.Participant},
		})
	}
	if filter.Token != nil {
		builder = builder.Where(sq.Eq{"token_address": *filter.Token})
	}
	if filter.FromBlock != nil {
		builder = builder.Where(sq.GtOrEq{"block_number": *filter.FromBlock})
	}
	if filter.ToBlock != nil {
		builder = builder.Where(sq.LtOrEq{"block_number": *filter.ToBlock})
	}
	if filter.FromTime != nil {
		builder = builder.Where(sq.GtOrEq{"block_timestamp": *filter.FromTime})
	}
	if filter.ToTime != nil {
		builder = builder.Where(sq.LtOrEq{"block_timestamp": *filter.ToTime})
	}
	return builder
}

func buildFindTransfersQuery(table string, filter *entity.TransferFilter) sq.SelectBuilder {
	builder := applyTransferFilter(sq.Select("*").From(table), filter)

	dir := "ASC"
	if filter.Descending {
		dir = "DESC"
	}
	orderBy := filter.OrderBy
	if orderBy != entity.OrderByTimestamp {
		orderBy = entity.OrderByBlockNumber
	}
	if orderBy == entity.OrderByTimestamp {
		builder = builder.OrderBy("block_timestamp " + dir)
	}
	builder = builder.OrderBy("block_number "+dir, "log_index "+dir)

	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}
	return builder.PlaceholderFormat(sq.Dollar)
}
