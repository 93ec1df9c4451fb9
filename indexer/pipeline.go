package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/omni/transfer-indexer/config"
	"github.com/omni/transfer-indexer/db"
	"github.com/omni/transfer-indexer/entity"
	"github.com/omni/transfer-indexer/logging"
	"github.com/omni/transfer-indexer/repository"
	"github.com/omni/transfer-indexer/source"
	"github.com/omni/transfer-indexer/utils"
)

// pipeline holds the persistence steps shared by backfill and live tail.
type pipeline struct {
	logger           logging.Logger
	source           source.Source
	repo             *repository.Repo
	backoff          *utils.Backoff
	blockTimeWorkers int
}

func newPipeline(logger logging.Logger, src source.Source, repo *repository.Repo, cfg *config.IndexerConfig) *pipeline {
	workers := cfg.BlockTimeWorkers
	if workers < 1 {
		workers = 1
	}
	retry := cfg.Retry
	if retry == nil {
		retry = new(config.RetryConfig)
		retry.ApplyDefaults()
	}
	return &pipeline{
		logger: logger,
		source: src,
		repo:   repo,
		backoff: &utils.Backoff{
			MaxAttempts:     retry.MaxAttempts,
			InitialInterval: retry.InitialBackoff,
			MaxInterval:     retry.MaxBackoff,
			Multiplier:      retry.Multiplier,
			Jitter:          0.25,
		},
		blockTimeWorkers: workers,
	}
}

func storeErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// retry runs fn with the shared backoff policy.
// Exhausted retries and invalid ranges are reported as ErrEntityFatal, cancellation as the context error.
func (p *pipeline) retry(ctx context.Context, logger logging.Logger, action string, fn func(ctx context.Context) error) error {
	attempt := 0
	err := p.backoff.Retry(ctx, func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, source.ErrInvalidRange) {
			return utils.Permanent(err)
		}
		if ctx.Err() == nil {
			logger.WithError(err).WithField("attempt", attempt).Warnf("failed to %s, retrying", action)
		}
		return err
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: can't %s: %w", ErrEntityFatal, action, err)
}

func (p *pipeline) loadCheckpoint(ctx context.Context, logger logging.Logger, token *TrackedToken) (uint, error) {
	var checkpoint uint
	err := p.retry(ctx, logger, "load checkpoint", func(ctx context.Context) error {
		cp, err := p.repo.Checkpoints.GetByChainIDAndAddress(ctx, p.source.ChainID(), token.Address)
		if errors.Is(err, db.ErrNotFound) {
			logger.WithField("start_block", token.StartBlock).Warn("token checkpoint is not present, starting indexing from scratch")
			checkpoint = token.StartBlock
			return nil
		}
		if err != nil {
			return storeErr(err)
		}
		checkpoint = cp.LastIndexedBlock
		return nil
	})
	return checkpoint, err
}

func (p *pipeline) saveCheckpoint(ctx context.Context, logger logging.Logger, token *TrackedToken, block uint) error {
	err := p.retry(ctx, logger, "save checkpoint", func(ctx context.Context) error {
		return storeErr(p.repo.Checkpoints.Ensure(ctx, &entity.Checkpoint{
			ChainID:          p.source.ChainID(),
			Address:          token.Address,
			LastIndexedBlock: block,
		}))
	})
	if err != nil {
		return err
	}
	IndexedBlock.WithLabelValues(p.source.ChainID(), token.Address.String()).Set(float64(block))
	return nil
}

func (p *pipeline) fetchRange(ctx context.Context, logger logging.Logger, token *TrackedToken, from, to uint) ([]*source.Event, error) {
	var events []*source.Event
	err := p.retry(ctx, logger, "fetch transfer logs", func(ctx context.Context) error {
		var err error
		events, err = p.source.FetchRange(ctx, token.Address, from, to)
		return err
	})
	return events, err
}

// persist resolves block times for events and stores them, returning the number of new transfers.
func (p *pipeline) persist(ctx context.Context, logger logging.Logger, token *TrackedToken, events []*source.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	var transfers []*entity.Transfer
	err := p.retry(ctx, logger, "resolve block timestamps", func(ctx context.Context) error {
		var err error
		transfers, err = p.buildTransfers(ctx, events)
		return err
	})
	if err != nil {
		return 0, err
	}
	var inserted int
	err = p.retry(ctx, logger, "insert transfers", func(ctx context.Context) error {
		var err error
		inserted, err = p.repo.Transfers.Ensure(ctx, transfers...)
		return storeErr(err)
	})
	if err != nil {
		return 0, err
	}
	labels := []string{p.source.ChainID(), token.Address.String()}
	InsertedTransfers.WithLabelValues(labels...).Add(float64(inserted))
	DuplicateTransfers.WithLabelValues(labels...).Add(float64(len(transfers) - inserted))
	logger.WithFields(logrus.Fields{
		"count":    len(transfers),
		"inserted": inserted,
	}).Debug("saved transfers")
	return inserted, nil
}

func (p *pipeline) buildTransfers(ctx context.Context, events []*source.Event) ([]*entity.Transfer, error) {
	blocks := make([]uint, 0, len(events))
	for _, e := range events {
		if len(blocks) == 0 || blocks[len(blocks)-1] != e.BlockNumber {
			blocks = append(blocks, e.BlockNumber)
		}
	}
	timestamps, err := p.resolveBlockTimes(ctx, blocks)
	if err != nil {
		return nil, err
	}
	chainID := p.source.ChainID()
	transfers := make([]*entity.Transfer, len(events))
	for i, e := range events {
		transfers[i] = &entity.Transfer{
			ChainID:         chainID,
			TransactionHash: e.TxHash,
			BlockNumber:     e.BlockNumber,
			LogIndex:        e.LogIndex,
			TokenAddress:    e.Token,
			FromAddress:     e.From,
			ToAddress:       e.To,
			Value:           e.Value.String(),
			BlockTimestamp:  timestamps[e.BlockNumber],
		}
	}
	return transfers, nil
}

// resolveBlockTimes resolves timestamps of the unique blocks concurrently.
func (p *pipeline) resolveBlockTimes(ctx context.Context, blocks []uint) (map[uint]time.Time, error) {
	res := make(map[uint]time.Time, len(blocks))
	seen := make(map[uint]bool, len(blocks))
	mu := new(sync.Mutex)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.blockTimeWorkers)
	for _, block := range blocks {
		block := block
		if seen[block] {
			continue
		}
		seen[block] = true
		g.Go(func() error {
			ts, err := p.blockTime(ctx, block)
			if err != nil {
				return err
			}
			mu.Lock()
			res[block] = ts
			mu.Unlock()
			return nil
		})
	}
	return res, g.Wait()
}

func (p *pipeline) blockTime(ctx context.Context, block uint) (time.Time, error) {
	chainID := p.source.ChainID()
	cached, err := p.repo.BlockTimestamps.GetByBlockNumber(ctx, chainID, block)
	if err == nil {
		return cached.Timestamp, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return time.Time{}, storeErr(err)
	}
	ts, err := p.source.ResolveBlockTime(ctx, block)
	if err != nil {
		return time.Time{}, err
	}
	err = p.repo.BlockTimestamps.Ensure(ctx, &entity.BlockTimestamp{
		ChainID:     chainID,
		BlockNumber: block,
		Timestamp:   ts,
	})
	return ts, storeErr(err)
}
