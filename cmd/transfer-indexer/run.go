package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/omni/transfer-indexer/presenter"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Backfill history and follow new blocks until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a.serveMetrics(ctx)

		idx, err := a.newIndexer()
		if err != nil {
			return err
		}

		if a.cfg.Presenter != nil {
			pr := presenter.NewPresenter(a.logger.WithField("service", "presenter"), a.repo.Checkpoints, a.cfg.Chain.ChainID, trackedAddresses(a), idx)
			go func() {
				if err := pr.Serve(ctx, a.cfg.Presenter.Host); err != nil {
					a.logger.WithError(err).Fatal("can't serve presenter")
				}
			}()
		}

		if err = idx.Start(context.Background()); err != nil {
			return err
		}

		select {
		case <-idx.Ready():
			for token, err := range idx.Failures() {
				a.logger.WithError(err).WithField("token", token).Error("token is not indexed")
			}
			a.logger.Info("all tokens switched to live tailing")
		case <-ctx.Done():
		}

		<-ctx.Done()
		a.logger.Warn("caught termination signal, gracefully terminating")
		idx.Stop()
		return nil
	},
}
