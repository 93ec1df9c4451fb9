package contract

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/omni/transfer-indexer/contract/abi"
)

var (
	ErrNotTransfer      = errors.New("log is not an erc20 transfer")
	ErrMalformedPayload = errors.New("malformed transfer payload")
)

// TransferTopic is the topic0 shared by erc20 and erc721 Transfer events.
var TransferTopic = abi.ERC20.EventID("Transfer")

type Transfer struct {
	From  common.Address
	To    common.Address
	Value *big.Int
}

// ParseTransfer decodes an erc20 Transfer log.
// Logs with the same topic0 but a different number of indexed arguments (erc721) are rejected with ErrNotTransfer.
func ParseTransfer(log *types.Log) (*Transfer, error) {
	event, data, err := abi.ERC20.ParseLog(log)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedPayload, err)
	}
	if event != abi.Transfer {
		return nil, ErrNotTransfer
	}
	from, ok1 := data["from"].(common.Address)
	to, ok2 := data["to"].(common.Address)
	value, ok3 := data["value"].(*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return nil, ErrMalformedPayload
	}
	return &Transfer{
		From:  from,
		To:    to,
		Value: value,
	}, nil
}
