package source

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrSourceUnavailable  = errors.New("event source unavailable")
	ErrInvalidRange       = errors.New("invalid block range")
	ErrSubscriptionBroken = errors.New("subscription broken")
)

// Event is a decoded erc20 Transfer log.
type Event struct {
	Token       common.Address
	TxHash      common.Hash
	BlockNumber uint
	LogIndex    uint
	From        common.Address
	To          common.Address
	Value       *big.Int
}

// Delivery is a batch of live events, all events up to ToBlock (inclusive) are included.
type Delivery struct {
	Events  []*Event
	ToBlock uint
}

// MaxBlock returns the highest block covered by the delivery.
func (d *Delivery) MaxBlock() uint {
	res := d.ToBlock
	for _, e := range d.Events {
		if e.BlockNumber > res {
			res = e.BlockNumber
		}
	}
	return res
}

// Subscription delivers live events until it breaks or is unsubscribed.
// Deliveries is closed on termination; a breaking error is sent to Err before that.
type Subscription interface {
	Deliveries() <-chan *Delivery
	Err() <-chan error
	Unsubscribe()
}

type Source interface {
	ChainID() string
	FetchRange(ctx context.Context, token common.Address, from, to uint) ([]*Event, error)
	ResolveBlockTime(ctx context.Context, block uint) (time.Time, error)
	CurrentFrontier(ctx context.Context) (uint, error)
	Subscribe(ctx context.Context, token common.Address, fromBlock uint) (Subscription, error)
}
