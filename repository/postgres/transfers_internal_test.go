package postgres

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/omni/transfer-indexer/entity"
)

func TestBuildFindTransfersQuery(t *testing.T) {
	t.Parallel()

	participant := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	token := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	fromBlock, toBlock := uint(100), uint(200)
	fromTime := time.Unix(1700000000, 0).UTC()

	for _, test := range []struct {
		Name         string
		Filter       *entity.TransferFilter
		ExpectedSQL  string
		ExpectedArgs []interface{}
		ArgsCount    int
	}{
		{
			Name:        "No filter",
			Filter:      &entity.TransferFilter{},
			ExpectedSQL: "SELECT * FROM transfers ORDER BY block_number ASC, log_index ASC",
		},
		{
			Name: "Participant and token, newest first",
			Filter: &entity.TransferFilter{
				ChainID:     "1",
				Participant: &participant,
				Token:       &token,
				Descending:  true,
				Limit:       20,
				Offset:      40,
			},
			ExpectedSQL: "SELECT * FROM transfers WHERE chain_id = $1 AND (from_address = $2 OR to_address = $3) " +
				"AND token_address = $4 ORDER BY block_number DESC, log_index DESC LIMIT 20 OFFSET 40",
			ArgsCount: 4,
		},
		{
			Name: "Block and time range ordered by timestamp",
			Filter: &entity.TransferFilter{
				FromBlock: &fromBlock,
				ToBlock:   &toBlock,
				FromTime:  &fromTime,
				OrderBy:   entity.OrderByTimestamp,
			},
			ExpectedSQL: "SELECT * FROM transfers WHERE block_number >= $1 AND block_number <= $2 AND block_timestamp >= $3 " +
				"ORDER BY block_timestamp ASC, block_number ASC, log_index ASC",
			ExpectedArgs: []interface{}{fromBlock, toBlock, fromTime},
			ArgsCount:    3,
		},
	} {
		test := test
		t.Run(test.Name, func(t *testing.T) {
			t.Parallel()
			q, args, err := buildFindTransfersQuery("transfers", test.Filter).ToSql()
			require.NoError(t, err)
			require.Equal(t, test.ExpectedSQL, q)
			require.Len(t, args, test.ArgsCount)
			if test.ExpectedArgs != nil {
				require.Equal(t, test.ExpectedArgs, args)
			}
		})
	}
}
