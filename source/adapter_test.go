package source_test

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/omni/transfer-indexer/config"
	"github.com/omni/transfer-indexer/logging"
	"github.com/omni/transfer-indexer/source"
)

var (
	token   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	other   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	alice   = common.HexToAddress("0x0a")
	bob     = common.HexToAddress("0x0b")
	errRPC  = errors.New("connection refused")
	timeout = time.Second
)

func newAdapter(client *fakeClient, confirmations uint, ws bool) *source.Adapter {
	chainCfg := &config.ChainConfig{
		RPC:                &config.RPCConfig{Host: "http://localhost:8545"},
		ChainID:            "1",
		BlockConfirmations: confirmations,
	}
	if ws {
		chainCfg.RPC.WSHost = "ws://localhost:8546"
	}
	cfg := &config.IndexerConfig{
		BatchSize:    10,
		PollInterval: 10 * time.Millisecond,
	}
	return source.NewAdapter(logging.NewNop(), client, chainCfg, cfg)
}

func expectDelivery(t *testing.T, sub source.Subscription) *source.Delivery {
	t.Helper()
	select {
	case d, ok := <-sub.Deliveries():
		require.True(t, ok, "deliveries channel is closed")
		return d
	case <-time.After(timeout):
		require.FailNow(t, "no delivery received")
		return nil
	}
}

func expectClosed(t *testing.T, sub source.Subscription) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case _, ok := <-sub.Deliveries():
			if !ok {
				return
			}
		case <-deadline:
			require.FailNow(t, "deliveries channel is not closed")
		}
	}
}

func TestAdapter_FetchRange(t *testing.T) {
	t.Parallel()

	removed := transferLog(token, 12, 0, alice, bob, 5)
	removed.Removed = true
	erc721 := transferLog(token, 13, 0, alice, bob, 5)
	erc721.Topics = append(erc721.Topics, common.BigToHash(big.NewInt(7)))
	client := newFakeClient(100,
		transferLog(token, 15, 3, alice, bob, 30),
		transferLog(token, 11, 1, bob, alice, 20),
		transferLog(token, 11, 0, alice, bob, 10),
		removed,
		erc721,
		transferLog(other, 14, 0, alice, bob, 1),
		transferLog(token, 25, 0, alice, bob, 1),
	)
	adapter := newAdapter(client, 0, false)

	events, err := adapter.FetchRange(context.Background(), token, 10, 20)
	require.NoError(t, err)
	require.Equal(t, [][2]uint{{10, 20}}, client.calls())
	require.Len(t, events, 3)
	require.Equal(t, &source.Event{
		Token:       token,
		TxHash:      common.BigToHash(big.NewInt(11000)),
		BlockNumber: 11,
		LogIndex:    0,
		From:        alice,
		To:          bob,
		Value:       big.NewInt(10),
	}, events[0])
	require.Equal(t, uint(11), events[1].BlockNumber)
	require.Equal(t, uint(1), events[1].LogIndex)
	require.Equal(t, uint(15), events[2].BlockNumber)
	require.Equal(t, "30", events[2].Value.String())
}

func TestAdapter_FetchRangeErrors(t *testing.T) {
	t.Parallel()

	t.Run("invalid range", func(t *testing.T) {
		t.Parallel()
		client := newFakeClient(100)
		adapter := newAdapter(client, 0, false)
		_, err := adapter.FetchRange(context.Background(), token, 21, 20)
		require.ErrorIs(t, err, source.ErrInvalidRange)
		require.Empty(t, client.calls())
	})

	t.Run("transport failure", func(t *testing.T) {
		t.Parallel()
		client := newFakeClient(100)
		client.setErr(errRPC)
		adapter := newAdapter(client, 0, false)
		_, err := adapter.FetchRange(context.Background(), token, 1, 20)
		require.ErrorIs(t, err, source.ErrSourceUnavailable)
		require.ErrorIs(t, err, errRPC)
	})
}

func TestAdapter_FetchRangeSafe(t *testing.T) {
	t.Parallel()

	client := newFakeClient(100, transferLog(token, 5, 0, alice, bob, 1))
	adapter := source.NewAdapter(logging.NewNop(), client, &config.ChainConfig{
		RPC:             &config.RPCConfig{},
		SafeLogsRequest: true,
	}, &config.IndexerConfig{BatchSize: 10})

	events, err := adapter.FetchRange(context.Background(), token, 1, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, 1, client.safeCalls)
}

func TestAdapter_CurrentFrontier(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		Name          string
		Head          uint
		Confirmations uint
		Expected      uint
	}{
		{"no confirmations", 100, 0, 100},
		{"with confirmations", 100, 12, 88},
		{"head below confirmations", 5, 12, 0},
	} {
		test := test
		t.Run(test.Name, func(t *testing.T) {
			t.Parallel()
			adapter := newAdapter(newFakeClient(test.Head), test.Confirmations, false)
			frontier, err := adapter.CurrentFrontier(context.Background())
			require.NoError(t, err)
			require.Equal(t, test.Expected, frontier)
		})
	}

	t.Run("transport failure", func(t *testing.T) {
		t.Parallel()
		client := newFakeClient(100)
		client.setErr(errRPC)
		_, err := newAdapter(client, 0, false).CurrentFrontier(context.Background())
		require.ErrorIs(t, err, source.ErrSourceUnavailable)
	})
}

func TestAdapter_ResolveBlockTime(t *testing.T) {
	t.Parallel()

	client := newFakeClient(100)
	adapter := newAdapter(client, 0, false)

	ts, err := adapter.ResolveBlockTime(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, time.Unix(int64(blockTime(42)), 0).UTC(), ts)

	client.setErr(errRPC)
	_, err = adapter.ResolveBlockTime(context.Background(), 42)
	require.ErrorIs(t, err, source.ErrSourceUnavailable)
}

func TestAdapter_SubscribePolling(t *testing.T) {
	t.Parallel()

	client := newFakeClient(25,
		transferLog(token, 7, 0, alice, bob, 1),
		transferLog(token, 20, 0, alice, bob, 2),
	)
	adapter := newAdapter(client, 0, false)

	sub, err := adapter.Subscribe(context.Background(), token, 5)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	d := expectDelivery(t, sub)
	require.Equal(t, uint(15), d.ToBlock)
	require.Len(t, d.Events, 1)
	require.Equal(t, uint(7), d.Events[0].BlockNumber)

	d = expectDelivery(t, sub)
	require.Equal(t, uint(25), d.ToBlock)
	require.Len(t, d.Events, 1)

	client.addLogs(transferLog(token, 27, 1, bob, alice, 3))
	client.setHead(28)

	d = expectDelivery(t, sub)
	require.Equal(t, uint(28), d.ToBlock)
	require.Len(t, d.Events, 1)
	require.Equal(t, uint(27), d.Events[0].BlockNumber)
	require.Equal(t, uint(28), d.MaxBlock())

	sub.Unsubscribe()
	expectClosed(t, sub)
	select {
	case err := <-sub.Err():
		require.NoError(t, err, "unexpected error after unsubscribe")
	default:
	}
}

func TestAdapter_SubscribePollingBroken(t *testing.T) {
	t.Parallel()

	client := newFakeClient(5)
	client.setErr(errRPC)
	adapter := newAdapter(client, 0, false)

	sub, err := adapter.Subscribe(context.Background(), token, 0)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	expectClosed(t, sub)
	err = <-sub.Err()
	require.ErrorIs(t, err, source.ErrSubscriptionBroken)
	require.ErrorIs(t, err, errRPC)
}

func TestAdapter_SubscribeWebsocket(t *testing.T) {
	t.Parallel()

	client := newFakeClient(10, transferLog(token, 9, 0, alice, bob, 1))
	adapter := newAdapter(client, 0, true)

	sub, err := adapter.Subscribe(context.Background(), token, 8)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	d := expectDelivery(t, sub)
	require.Equal(t, uint(10), d.ToBlock)
	require.Len(t, d.Events, 1)
	require.Equal(t, [][2]uint{{9, 10}}, client.calls())

	client.live <- transferLog(token, 11, 1, alice, bob, 2)
	client.live <- transferLog(token, 11, 0, alice, bob, 3)
	client.live <- transferLog(token, 12, 0, bob, alice, 4)

	d = expectDelivery(t, sub)
	require.Equal(t, uint(11), d.ToBlock)
	require.Len(t, d.Events, 2)
	require.Equal(t, uint(0), d.Events[0].LogIndex)
	require.Equal(t, uint(1), d.Events[1].LogIndex)

	d = expectDelivery(t, sub)
	require.Equal(t, uint(12), d.ToBlock)
	require.Len(t, d.Events, 1)

	client.liveErr <- errRPC
	expectClosed(t, sub)
	err = <-sub.Err()
	require.ErrorIs(t, err, source.ErrSubscriptionBroken)
	require.ErrorIs(t, err, errRPC)
}

func TestDelivery_MaxBlock(t *testing.T) {
	t.Parallel()

	d := &source.Delivery{ToBlock: 10}
	require.Equal(t, uint(10), d.MaxBlock())

	d.Events = []*source.Event{{BlockNumber: 9}, {BlockNumber: 12}}
	require.Equal(t, uint(12), d.MaxBlock())
}
