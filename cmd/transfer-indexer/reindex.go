package main

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	reindexToken string
	reindexFrom  uint
	reindexTo    uint
)

var reindexCmd = &cobra.Command{
	Use:   "reindex-range",
	Short: "Re-fetch and store transfers of a token in a block range, leaving its checkpoint untouched",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !common.IsHexAddress(reindexToken) {
			return fmt.Errorf("invalid token address %q", reindexToken)
		}
		if reindexTo == 0 {
			return errors.New("--to is not specified")
		}
		if reindexTo < reindexFrom {
			return fmt.Errorf("--to %d is less than --from %d", reindexTo, reindexFrom)
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		idx, err := a.newIndexer()
		if err != nil {
			return err
		}
		token := common.HexToAddress(reindexToken)
		inserted, err := idx.Reindex(cmd.Context(), token, reindexFrom, reindexTo)
		if err != nil {
			return err
		}
		a.logger.WithFields(logrus.Fields{
			"token":      token,
			"from_block": reindexFrom,
			"to_block":   reindexTo,
			"inserted":   inserted,
		}).Info("finished reindexing block range")
		return nil
	},
}

func init() {
	reindexCmd.Flags().StringVar(&reindexToken, "token", "", "tracked token address")
	reindexCmd.Flags().UintVar(&reindexFrom, "from", 0, "first block of the range")
	reindexCmd.Flags().UintVar(&reindexTo, "to", 0, "last block of the range")
	_ = reindexCmd.MarkFlagRequired("token")
	_ = reindexCmd.MarkFlagRequired("to")
}
