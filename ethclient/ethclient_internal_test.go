package ethclient

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestToFilterArg(t *testing.T) {
	t.Parallel()

	addr := common.HexToAddress("0x01")
	topic := common.HexToHash("0x02")
	hash := common.HexToHash("0x03")

	for _, test := range []struct {
		Name     string
		Query    ethereum.FilterQuery
		Expected map[string]interface{}
		Err      bool
	}{
		{
			Name: "full range",
			Query: ethereum.FilterQuery{
				FromBlock: big.NewInt(10),
				ToBlock:   big.NewInt(20),
				Addresses: []common.Address{addr},
				Topics:    [][]common.Hash{{topic}},
			},
			Expected: map[string]interface{}{
				"address":   []common.Address{addr},
				"topics":    [][]common.Hash{{topic}},
				"fromBlock": "0xa",
				"toBlock":   "0x14",
			},
		},
		{
			Name: "missing from block",
			Query: ethereum.FilterQuery{
				ToBlock: big.NewInt(16),
			},
			Expected: map[string]interface{}{
				"address":   []common.Address(nil),
				"topics":    [][]common.Hash(nil),
				"fromBlock": "0x0",
				"toBlock":   "0x10",
			},
		},
		{
			Name:  "missing to block",
			Query: ethereum.FilterQuery{FromBlock: big.NewInt(1)},
			Err:   true,
		},
		{
			Name:  "block hash query",
			Query: ethereum.FilterQuery{BlockHash: &hash, ToBlock: big.NewInt(1)},
			Err:   true,
		},
	} {
		test := test
		t.Run(test.Name, func(t *testing.T) {
			t.Parallel()

			arg, err := toFilterArg(test.Query)
			if test.Err {
				require.ErrorIs(t, err, ErrInvalidLogsQuery)
				return
			}
			require.NoError(t, err)
			require.Equal(t, test.Expected, arg)
		})
	}
}

func TestNewLimiter(t *testing.T) {
	t.Parallel()

	require.Nil(t, newLimiter(0))
	require.Nil(t, newLimiter(-1))

	limiter := newLimiter(2.5)
	require.NotNil(t, limiter)
	require.Equal(t, 3, limiter.Burst())
	require.InDelta(t, 2.5, float64(limiter.Limit()), 0.0001)
}
