package indexer_test

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/transfer-indexer/source"
)

var _ source.Source = (*fakeSource)(nil)

type fakeSource struct {
	mu            sync.Mutex
	frontier      uint
	events        []*source.Event
	fetches       [][2]uint
	fetchErrs     int
	failTokens    map[common.Address]bool
	subscribeErr  error
	subscribeFrom []uint
	subs          chan *fakeSubscription
}

func newFakeSource(frontier uint, events ...*source.Event) *fakeSource {
	return &fakeSource{
		frontier:   frontier,
		events:     events,
		failTokens: make(map[common.Address]bool),
		subs:       make(chan *fakeSubscription, 16),
	}
}

func (s *fakeSource) ChainID() string {
	return "1"
}

func (s *fakeSource) FetchRange(_ context.Context, token common.Address, from, to uint) ([]*source.Event, error) {
	if from > to {
		return nil, fmt.Errorf("%w: %d > %d", source.ErrInvalidRange, from, to)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches = append(s.fetches, [2]uint{from, to})
	if s.failTokens[token] {
		return nil, source.ErrSourceUnavailable
	}
	if s.fetchErrs > 0 {
		s.fetchErrs--
		return nil, source.ErrSourceUnavailable
	}
	var res []*source.Event
	for _, e := range s.events {
		if e.Token == token && e.BlockNumber >= from && e.BlockNumber <= to {
			res = append(res, e)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].BlockNumber < res[j].BlockNumber ||
			(res[i].BlockNumber == res[j].BlockNumber && res[i].LogIndex < res[j].LogIndex)
	})
	return res, nil
}

func (s *fakeSource) ResolveBlockTime(_ context.Context, block uint) (time.Time, error) {
	return blockTime(block), nil
}

func (s *fakeSource) CurrentFrontier(_ context.Context) (uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frontier, nil
}

func (s *fakeSource) Subscribe(_ context.Context, _ common.Address, fromBlock uint) (source.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribeFrom = append(s.subscribeFrom, fromBlock)
	if s.subscribeErr != nil {
		return nil, s.subscribeErr
	}
	sub := &fakeSubscription{
		deliveries: make(chan *source.Delivery, 16),
		errs:       make(chan error, 1),
	}
	s.subs <- sub
	return sub, nil
}

func (s *fakeSource) fetchCalls() [][2]uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][2]uint(nil), s.fetches...)
}

func (s *fakeSource) subscribeCalls() []uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint(nil), s.subscribeFrom...)
}

type fakeSubscription struct {
	deliveries chan *source.Delivery
	errs       chan error
	once       sync.Once
}

func (s *fakeSubscription) Deliveries() <-chan *source.Delivery {
	return s.deliveries
}

func (s *fakeSubscription) Err() <-chan error {
	return s.errs
}

func (s *fakeSubscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.deliveries)
	})
}

func (s *fakeSubscription) fail(err error) {
	s.once.Do(func() {
		s.errs <- err
		close(s.deliveries)
	})
}

func blockTime(block uint) time.Time {
	return time.Unix(1_600_000_000+int64(block)*12, 0).UTC()
}

func transferEvent(token common.Address, block uint, index uint) *source.Event {
	return &source.Event{
		Token:       token,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(uint64(block)*1000 + uint64(index))),
		BlockNumber: block,
		LogIndex:    index,
		From:        common.HexToAddress("0x0a"),
		To:          common.HexToAddress("0x0b"),
		Value:       big.NewInt(int64(block)),
	}
}
