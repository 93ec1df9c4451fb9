package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/omni/transfer-indexer/config"
	"github.com/omni/transfer-indexer/logging"
	"github.com/omni/transfer-indexer/repository"
	"github.com/omni/transfer-indexer/source"
	"github.com/omni/transfer-indexer/utils"
)

// Backfill replays historical transfers of a token from its checkpoint up to the current frontier.
type Backfill struct {
	*pipeline
	batchSize  uint
	batchDelay time.Duration
}

func NewBackfill(logger logging.Logger, src source.Source, repo *repository.Repo, cfg *config.IndexerConfig) *Backfill {
	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = 1
	}
	return &Backfill{
		pipeline:   newPipeline(logger, src, repo, cfg),
		batchSize:  batchSize,
		batchDelay: cfg.BatchDelay,
	}
}

// Run indexes the token up to the frontier observed at its start and returns the reached checkpoint.
// The checkpoint is saved only after the transfers of the corresponding range are persisted.
func (b *Backfill) Run(ctx context.Context, token *TrackedToken) (uint, error) {
	logger := b.logger.WithFields(logrus.Fields{
		"token": token.Address,
		"phase": "backfill",
	})
	checkpoint, err := b.loadCheckpoint(ctx, logger, token)
	if err != nil {
		return 0, err
	}
	IndexedBlock.WithLabelValues(b.source.ChainID(), token.Address.String()).Set(float64(checkpoint))

	var frontier uint
	err = b.retry(ctx, logger, "get current frontier", func(ctx context.Context) error {
		frontier, err = b.source.CurrentFrontier(ctx)
		return err
	})
	if err != nil {
		return checkpoint, err
	}
	FrontierBlock.WithLabelValues(b.source.ChainID(), token.Address.String()).Set(float64(frontier))

	logger = logger.WithFields(logrus.Fields{
		"checkpoint": checkpoint,
		"frontier":   frontier,
	})
	if checkpoint >= frontier {
		logger.Info("token is already caught up")
		return checkpoint, nil
	}
	logger.Info("starting backfill")

	ranges := SplitBlockRange(checkpoint+1, frontier, b.batchSize)
	for i, r := range ranges {
		rangeLogger := logger.WithFields(logrus.Fields{
			"from_block": r.From,
			"to_block":   r.To,
		})
		events, err := b.fetchRange(ctx, rangeLogger, token, r.From, r.To)
		if err != nil {
			return checkpoint, err
		}
		inserted, err := b.persist(ctx, rangeLogger, token, events)
		if err != nil {
			return checkpoint, err
		}
		if err = b.saveCheckpoint(ctx, rangeLogger, token, r.To); err != nil {
			return checkpoint, err
		}
		checkpoint = r.To
		rangeLogger.WithFields(logrus.Fields{
			"count":    len(events),
			"inserted": inserted,
		}).Info("indexed block range")

		if i < len(ranges)-1 && b.batchDelay > 0 && utils.ContextSleep(ctx, b.batchDelay) == nil {
			return checkpoint, ctx.Err()
		}
	}
	logger.WithField("checkpoint", checkpoint).Info("caught up to frontier")
	return checkpoint, nil
}

// Reindex fetches and stores transfers of the token in [fromBlock, toBlock] without touching its checkpoint.
func (b *Backfill) Reindex(ctx context.Context, token *TrackedToken, fromBlock, toBlock uint) (int, error) {
	if fromBlock > toBlock {
		return 0, fmt.Errorf("%w: from block %d is greater than to block %d", source.ErrInvalidRange, fromBlock, toBlock)
	}
	logger := b.logger.WithFields(logrus.Fields{
		"token": token.Address,
		"phase": "reindex",
	})
	total := 0
	for _, r := range SplitBlockRange(fromBlock, toBlock, b.batchSize) {
		rangeLogger := logger.WithFields(logrus.Fields{
			"from_block": r.From,
			"to_block":   r.To,
		})
		events, err := b.fetchRange(ctx, rangeLogger, token, r.From, r.To)
		if err != nil {
			return total, err
		}
		inserted, err := b.persist(ctx, rangeLogger, token, events)
		if err != nil {
			return total, err
		}
		total += inserted
		rangeLogger.WithFields(logrus.Fields{
			"count":    len(events),
			"inserted": inserted,
		}).Info("reindexed block range")
	}
	return total, nil
}
