package source

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/omni/transfer-indexer/contract"
	"github.com/omni/transfer-indexer/logging"
	"github.com/omni/transfer-indexer/utils"
)

const (
	deliveriesBuffer = 16
	logsBuffer       = 1024
)

type subscription struct {
	deliveries chan *Delivery
	errs       chan error
	cancel     context.CancelFunc
	done       chan struct{}
}

func newSubscription(ctx context.Context) (*subscription, context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	return &subscription{
		deliveries: make(chan *Delivery, deliveriesBuffer),
		errs:       make(chan error, 1),
		cancel:     cancel,
		done:       make(chan struct{}),
	}, ctx
}

func (s *subscription) Deliveries() <-chan *Delivery {
	return s.deliveries
}

func (s *subscription) Err() <-chan error {
	return s.errs
}

// Unsubscribe stops the producer and waits for it to exit, it is safe to call multiple times.
func (s *subscription) Unsubscribe() {
	s.cancel()
	<-s.done
}

func (s *subscription) deliver(ctx context.Context, d *Delivery) bool {
	select {
	case s.deliveries <- d:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *subscription) run(ctx context.Context, fn func(ctx context.Context) error) {
	go func() {
		defer close(s.done)
		defer close(s.deliveries)
		defer s.cancel()

		if err := fn(ctx); err != nil && ctx.Err() == nil {
			s.errs <- fmt.Errorf("%w: %w", ErrSubscriptionBroken, err)
		}
	}()
}

// catchUp delivers all events in (cursor, to] in batch sized ranges and returns the new cursor.
func (a *Adapter) catchUp(ctx context.Context, s *subscription, token common.Address, cursor, to uint) (uint, error) {
	for cursor < to {
		next := cursor + a.batchSize
		if next > to {
			next = to
		}
		events, err := a.FetchRange(ctx, token, cursor+1, next)
		if err != nil {
			return cursor, err
		}
		if !s.deliver(ctx, &Delivery{Events: events, ToBlock: next}) {
			return cursor, nil
		}
		cursor = next
	}
	return cursor, nil
}

func (a *Adapter) pollLogs(ctx context.Context, logger logging.Logger, token common.Address, fromBlock uint) Subscription {
	s, ctx := newSubscription(ctx)
	s.run(ctx, func(ctx context.Context) error {
		logger.Info("polling for new transfer logs")
		cursor := fromBlock
		for {
			frontier, err := a.CurrentFrontier(ctx)
			if err != nil {
				return err
			}
			if cursor, err = a.catchUp(ctx, s, token, cursor, frontier); err != nil {
				return err
			}
			if utils.ContextSleep(ctx, a.pollInterval) == nil {
				return nil
			}
		}
	})
	return s
}

func (a *Adapter) subscribeLogs(ctx context.Context, logger logging.Logger, token common.Address, fromBlock uint) (Subscription, error) {
	logs := make(chan types.Log, logsBuffer)
	q := ethereum.FilterQuery{
		Addresses: []common.Address{token},
		Topics:    [][]common.Hash{{contract.TransferTopic}},
	}
	ethSub, err := a.client.SubscribeFilterLogs(ctx, q, logs)
	if err != nil {
		return nil, fmt.Errorf("%w: can't subscribe to logs: %w", ErrSubscriptionBroken, err)
	}
	s, ctx := newSubscription(ctx)
	s.run(ctx, func(ctx context.Context) error {
		defer ethSub.Unsubscribe()

		logger.Info("subscribed to new transfer logs")
		head, err := a.CurrentFrontier(ctx)
		if err != nil {
			return err
		}
		cursor, err := a.catchUp(ctx, s, token, fromBlock, head)
		if err != nil {
			return err
		}

		var pending []types.Log
		var pendingBlock uint64
		flush := func() bool {
			if len(pending) == 0 {
				return true
			}
			block := uint(pendingBlock)
			events := a.decodeLogs(token, pending)
			pending = nil
			if block <= cursor && len(events) == 0 {
				return true
			}
			return s.deliver(ctx, &Delivery{Events: events, ToBlock: block})
		}
		timer := time.NewTimer(a.pollInterval)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case err := <-ethSub.Err():
				if err == nil {
					err = ErrSubscriptionBroken
				}
				return err
			case log := <-logs:
				if log.BlockNumber != pendingBlock && !flush() {
					return nil
				}
				pendingBlock = log.BlockNumber
				pending = append(pending, log)
				resetTimer(timer, a.pollInterval)
			case <-timer.C:
				if !flush() {
					return nil
				}
				timer.Reset(a.pollInterval)
			}
		}
	})
	return s, nil
}

func resetTimer(timer *time.Timer, d time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(d)
}
