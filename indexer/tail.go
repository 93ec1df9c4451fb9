package indexer

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/omni/transfer-indexer/config"
	"github.com/omni/transfer-indexer/logging"
	"github.com/omni/transfer-indexer/repository"
	"github.com/omni/transfer-indexer/source"
	"github.com/omni/transfer-indexer/utils"
)

type TailState int

const (
	TailAttaching TailState = iota
	TailActive
	TailDetached
)

func (s TailState) String() string {
	switch s {
	case TailAttaching:
		return "attaching"
	case TailActive:
		return "active"
	case TailDetached:
		return "detached"
	default:
		return fmt.Sprintf("TailState(%d)", int(s))
	}
}

// Tail persists live transfers of a token delivered by a source subscription.
type Tail struct {
	*pipeline
	// OnStateChange is called on every tail state transition.
	OnStateChange func(token *TrackedToken, state TailState)
}

func NewTail(logger logging.Logger, src source.Source, repo *repository.Repo, cfg *config.IndexerConfig) *Tail {
	return &Tail{
		pipeline: newPipeline(logger, src, repo, cfg),
	}
}

func (t *Tail) setState(logger logging.Logger, token *TrackedToken, state TailState) {
	logger.WithField("state", state.String()).Debug("tail state changed")
	TailStateGauge.WithLabelValues(t.source.ChainID(), token.Address.String()).Set(float64(state))
	synced := 0.0
	if state == TailActive {
		synced = 1
	}
	SyncedToken.WithLabelValues(t.source.ChainID(), token.Address.String()).Set(synced)
	if t.OnStateChange != nil {
		t.OnStateChange(token, state)
	}
}

// Run follows the token from the given checkpoint until ctx is cancelled.
// A broken subscription is re-established from the latest checkpoint, ErrEntityFatal is returned
// once reconnects fail more times in a row than the retry policy allows.
func (t *Tail) Run(ctx context.Context, token *TrackedToken, from uint) error {
	logger := t.logger.WithFields(logrus.Fields{
		"token": token.Address,
		"phase": "tail",
	})
	defer t.setState(logger, token, TailDetached)

	checkpoint := from
	failures := 0
	for {
		t.setState(logger, token, TailAttaching)
		err := t.follow(ctx, logger, token, &checkpoint, &failures)
		if ctx.Err() != nil {
			logger.WithField("checkpoint", checkpoint).Info("live tail detached")
			return nil
		}
		if errors.Is(err, ErrEntityFatal) {
			return err
		}
		failures++
		if t.backoff.MaxAttempts > 0 && failures >= t.backoff.MaxAttempts {
			return fmt.Errorf("%w: subscription failed %d times in a row: %w", ErrEntityFatal, failures, err)
		}
		interval := t.backoff.Interval(failures)
		logger.WithError(err).WithFields(logrus.Fields{
			"attempt":    failures,
			"checkpoint": checkpoint,
			"retry_in":   interval.String(),
		}).Warn("live tail subscription broken, reconnecting")
		if utils.ContextSleep(ctx, interval) == nil {
			logger.WithField("checkpoint", checkpoint).Info("live tail detached")
			return nil
		}
	}
}

func (t *Tail) follow(ctx context.Context, logger logging.Logger, token *TrackedToken, checkpoint *uint, failures *int) error {
	sub, err := t.source.Subscribe(ctx, token.Address, *checkpoint)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	t.setState(logger, token, TailActive)
	logger.WithField("from_block", *checkpoint).Info("live tail attached")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-sub.Deliveries():
			if !ok {
				select {
				case err = <-sub.Err():
					return err
				default:
					return source.ErrSubscriptionBroken
				}
			}
			*failures = 0
			if err = t.handleDelivery(ctx, logger, token, delivery, checkpoint); err != nil {
				return err
			}
		}
	}
}

// handleDelivery persists the delivered transfers and then moves the checkpoint forward, never backward.
func (t *Tail) handleDelivery(ctx context.Context, logger logging.Logger, token *TrackedToken, delivery *source.Delivery, checkpoint *uint) error {
	inserted, err := t.persist(ctx, logger, token, delivery.Events)
	if err != nil {
		return err
	}
	block := delivery.MaxBlock()
	if block <= *checkpoint {
		if len(delivery.Events) > 0 {
			logger.WithFields(logrus.Fields{
				"count":      len(delivery.Events),
				"inserted":   inserted,
				"to_block":   block,
				"checkpoint": *checkpoint,
			}).Debug("received already indexed transfers")
		}
		return nil
	}
	if err = t.saveCheckpoint(ctx, logger, token, block); err != nil {
		return err
	}
	*checkpoint = block
	FrontierBlock.WithLabelValues(t.source.ChainID(), token.Address.String()).Set(float64(block))
	logger.WithFields(logrus.Fields{
		"count":      len(delivery.Events),
		"inserted":   inserted,
		"checkpoint": block,
	}).Info("indexed live transfers")
	return nil
}
