package source_test

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"

	"github.com/omni/transfer-indexer/contract"
	"github.com/omni/transfer-indexer/ethclient"
)

var _ ethclient.Client = (*fakeClient)(nil)

type fakeClient struct {
	mu          sync.Mutex
	head        uint
	logs        []types.Log
	err         error
	filterCalls [][2]uint
	safeCalls   int

	live    chan types.Log
	liveErr chan error
}

func newFakeClient(head uint, logs ...types.Log) *fakeClient {
	return &fakeClient{
		head:    head,
		logs:    logs,
		live:    make(chan types.Log, 16),
		liveErr: make(chan error, 1),
	}
}

func (c *fakeClient) setHead(head uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head = head
}

func (c *fakeClient) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *fakeClient) addLogs(logs ...types.Log) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = append(c.logs, logs...)
}

func (c *fakeClient) calls() [][2]uint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][2]uint(nil), c.filterCalls...)
}

func (c *fakeClient) ChainID() string {
	return "1"
}

func (c *fakeClient) BlockNumber(_ context.Context) (uint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head, c.err
}

func (c *fakeClient) HeaderByNumber(_ context.Context, n uint) (*types.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return &types.Header{Number: new(big.Int).SetUint64(uint64(n)), Time: blockTime(n)}, nil
}

func (c *fakeClient) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	from, to := q.FromBlock.Uint64(), q.ToBlock.Uint64()
	c.filterCalls = append(c.filterCalls, [2]uint{uint(from), uint(to)})
	if c.err != nil {
		return nil, c.err
	}
	var res []types.Log
	for _, log := range c.logs {
		if log.BlockNumber >= from && log.BlockNumber <= to {
			res = append(res, log)
		}
	}
	return res, nil
}

func (c *fakeClient) FilterLogsSafe(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	c.mu.Lock()
	c.safeCalls++
	c.mu.Unlock()
	return c.FilterLogs(ctx, q)
}

func (c *fakeClient) SubscribeFilterLogs(_ context.Context, _ ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return event.NewSubscription(func(quit <-chan struct{}) error {
		for {
			select {
			case log := <-c.live:
				select {
				case ch <- log:
				case <-quit:
					return nil
				}
			case err := <-c.liveErr:
				return err
			case <-quit:
				return nil
			}
		}
	}), nil
}

func (c *fakeClient) Close() {}

func blockTime(n uint) uint64 {
	return 1_600_000_000 + uint64(n)*12
}

func transferLog(token common.Address, block uint64, index uint, from, to common.Address, value int64) types.Log {
	return types.Log{
		Address:     token,
		Topics:      []common.Hash{contract.TransferTopic, common.BytesToHash(from.Bytes()), common.BytesToHash(to.Bytes())},
		Data:        common.BigToHash(big.NewInt(value)).Bytes(),
		BlockNumber: block,
		Index:       index,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(block*1000 + uint64(index))),
	}
}
