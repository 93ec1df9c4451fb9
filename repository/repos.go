package repository

import (
	"github.com/omni/transfer-indexer/db"
	"github.com/omni/transfer-indexer/entity"
	"github.com/omni/transfer-indexer/repository/memory"
	"github.com/omni/transfer-indexer/repository/postgres"
)

type Repo struct {
	Transfers       entity.TransfersRepo
	Checkpoints     entity.CheckpointsRepo
	BlockTimestamps entity.BlockTimestampsRepo
}

func NewRepo(db *db.DB) *Repo {
	return &Repo{
		Transfers:       postgres.NewTransfersRepo("transfers", db),
		Checkpoints:     postgres.NewCheckpointsRepo("checkpoints", db),
		BlockTimestamps: postgres.NewBlockTimestampsRepo("block_timestamps", db),
	}
}

// NewMemoryRepo returns a non-persistent Repo, used when no postgres is configured.
func NewMemoryRepo() *Repo {
	return &Repo{
		Transfers:       memory.NewTransfersRepo(),
		Checkpoints:     memory.NewCheckpointsRepo(),
		BlockTimestamps: memory.NewBlockTimestampsRepo(),
	}
}
