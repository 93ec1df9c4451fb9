package main

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/omni/transfer-indexer/presenter"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the last indexed block of every tracked token",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		pr := presenter.NewPresenter(a.logger, a.repo.Checkpoints, a.cfg.Chain.ChainID, trackedAddresses(a), nil)
		res, err := pr.Status(cmd.Context())
		if err != nil {
			return err
		}
		blob, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(blob))
		return nil
	},
}

func trackedAddresses(a *app) []common.Address {
	res := make([]common.Address, len(a.cfg.Tokens))
	for i, token := range a.cfg.Tokens {
		res[i] = token.Address
	}
	return res
}
