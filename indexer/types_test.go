package indexer_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/omni/transfer-indexer/config"
	"github.com/omni/transfer-indexer/indexer"
)

func TestSplitBlockRange(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		Name           string
		Input          [3]uint
		ExpectedOutput []*indexer.BlocksRange
	}{
		{
			Name:  "Split range in two",
			Input: [3]uint{100, 199, 50},
			ExpectedOutput: []*indexer.BlocksRange{
				{100, 149},
				{150, 199},
			},
		},
		{
			Name:  "Split range in three",
			Input: [3]uint{100, 200, 50},
			ExpectedOutput: []*indexer.BlocksRange{
				{100, 149},
				{150, 199},
				{200, 200},
			},
		},
		{
			Name:  "Fresh token backfill",
			Input: [3]uint{1, 25000, 10000},
			ExpectedOutput: []*indexer.BlocksRange{
				{1, 10000},
				{10001, 20000},
				{20001, 25000},
			},
		},
		{
			Name:  "Keep range as is",
			Input: [3]uint{100, 200, 999},
			ExpectedOutput: []*indexer.BlocksRange{
				{100, 200},
			},
		},
		{
			Name:  "Keep range of one block",
			Input: [3]uint{100, 100, 10},
			ExpectedOutput: []*indexer.BlocksRange{
				{100, 100},
			},
		},
		{
			Name:           "Invalid range",
			Input:          [3]uint{200, 100, 50},
			ExpectedOutput: []*indexer.BlocksRange{},
		},
	} {
		t.Logf("Running sub-test %q", test.Name)
		res := indexer.SplitBlockRange(test.Input[0], test.Input[1], test.Input[2])
		require.Equal(t, test.ExpectedOutput, res, "Failed %s", test.Name)
	}
}

func TestTrackedTokens(t *testing.T) {
	t.Parallel()

	a := common.HexToAddress("0x01")
	b := common.HexToAddress("0x02")
	cfg := &config.Config{
		Indexer: &config.IndexerConfig{StartBlock: 100},
		Tokens: []*config.TokenConfig{
			{Address: a},
			{Address: b, StartBlock: 500},
		},
	}
	require.Equal(t, []*indexer.TrackedToken{
		{Address: a, StartBlock: 100},
		{Address: b, StartBlock: 500},
	}, indexer.TrackedTokens(cfg))
}
