package source

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/omni/transfer-indexer/config"
	"github.com/omni/transfer-indexer/contract"
	"github.com/omni/transfer-indexer/ethclient"
	"github.com/omni/transfer-indexer/logging"
)

var _ Source = (*Adapter)(nil)

type Adapter struct {
	logger        logging.Logger
	client        ethclient.Client
	confirmations uint
	safeLogs      bool
	subscriptions bool
	batchSize     uint
	pollInterval  time.Duration
}

func NewAdapter(logger logging.Logger, client ethclient.Client, chainCfg *config.ChainConfig, cfg *config.IndexerConfig) *Adapter {
	return &Adapter{
		logger: logger.WithFields(logrus.Fields{
			"chain_id": client.ChainID(),
		}),
		client:        client,
		confirmations: chainCfg.BlockConfirmations,
		safeLogs:      chainCfg.SafeLogsRequest,
		subscriptions: chainCfg.UseSubscriptions(),
		batchSize:     cfg.BatchSize,
		pollInterval:  cfg.PollInterval,
	}
}

func (a *Adapter) ChainID() string {
	return a.client.ChainID()
}

func (a *Adapter) CurrentFrontier(ctx context.Context) (uint, error) {
	head, err := a.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: can't get head block: %w", ErrSourceUnavailable, err)
	}
	if head < a.confirmations {
		return 0, nil
	}
	return head - a.confirmations, nil
}

func (a *Adapter) ResolveBlockTime(ctx context.Context, block uint) (time.Time, error) {
	header, err := a.client.HeaderByNumber(ctx, block)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: can't get block %d header: %w", ErrSourceUnavailable, block, err)
	}
	return time.Unix(int64(header.Time), 0).UTC(), nil
}

func (a *Adapter) FetchRange(ctx context.Context, token common.Address, from, to uint) ([]*Event, error) {
	if from > to {
		return nil, fmt.Errorf("%w: from block %d is greater than to block %d", ErrInvalidRange, from, to)
	}
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(uint64(from)),
		ToBlock:   new(big.Int).SetUint64(uint64(to)),
		Addresses: []common.Address{token},
		Topics:    [][]common.Hash{{contract.TransferTopic}},
	}
	var logs []types.Log
	var err error
	if a.safeLogs {
		logs, err = a.client.FilterLogsSafe(ctx, q)
	} else {
		logs, err = a.client.FilterLogs(ctx, q)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: can't get logs in range [%d, %d]: %w", ErrSourceUnavailable, from, to, err)
	}
	return a.decodeLogs(token, logs), nil
}

// decodeLogs converts raw logs into events sorted by block number and log index.
func (a *Adapter) decodeLogs(token common.Address, logs []types.Log) []*Event {
	events := make([]*Event, 0, len(logs))
	for i := range logs {
		log := &logs[i]
		logger := a.logger.WithFields(logrus.Fields{
			"token":        token,
			"tx_hash":      log.TxHash,
			"block_number": log.BlockNumber,
			"log_index":    log.Index,
		})
		if log.Removed {
			logger.Warn("skipping removed log")
			continue
		}
		if log.Address != token {
			continue
		}
		transfer, err := contract.ParseTransfer(log)
		if err != nil {
			if errors.Is(err, contract.ErrNotTransfer) {
				logger.Debug("skipping non erc20 transfer log")
			} else {
				logger.WithError(err).Warn("skipping malformed transfer log")
			}
			continue
		}
		events = append(events, &Event{
			Token:       token,
			TxHash:      log.TxHash,
			BlockNumber: uint(log.BlockNumber),
			LogIndex:    log.Index,
			From:        transfer.From,
			To:          transfer.To,
			Value:       transfer.Value,
		})
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].BlockNumber != events[j].BlockNumber {
			return events[i].BlockNumber < events[j].BlockNumber
		}
		return events[i].LogIndex < events[j].LogIndex
	})
	return events
}

// Subscribe starts delivering events of blocks after fromBlock.
// Websocket subscriptions are used when configured, otherwise the frontier is polled.
func (a *Adapter) Subscribe(ctx context.Context, token common.Address, fromBlock uint) (Subscription, error) {
	logger := a.logger.WithFields(logrus.Fields{
		"token":      token,
		"from_block": fromBlock,
	})
	if a.subscriptions {
		return a.subscribeLogs(ctx, logger, token, fromBlock)
	}
	return a.pollLogs(ctx, logger, token, fromBlock), nil
}
