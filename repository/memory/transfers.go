package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/omni/transfer-indexer/entity"
)

var _ entity.TransfersRepo = (*TransfersRepo)(nil)

// TransfersRepo is a thread-safe in-memory implementation of entity.TransfersRepo.
type TransfersRepo struct {
	mu        sync.RWMutex
	transfers []*entity.Transfer
	keys      map[entity.TransferKey]struct{}
}

func NewTransfersRepo() *TransfersRepo {
	return &TransfersRepo{
		keys: make(map[entity.TransferKey]struct{}, 1024),
	}
}

func (r *TransfersRepo) Ensure(ctx context.Context, transfers ...*entity.Transfer) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	inserted := 0
	for _, t := range transfers {
		key := t.Key()
		if _, ok := r.keys[key]; ok {
			continue
		}
		r.keys[key] = struct{}{}
		stored := *t
		stored.ID = uint(len(r.transfers) + 1)
		r.transfers = append(r.transfers, &stored)
		inserted++
	}
	return inserted, nil
}

func (r *TransfersRepo) Find(ctx context.Context, filter *entity.TransferFilter) ([]*entity.Transfer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	res := make([]*entity.Transfer, 0, 10)
	for _, t := range r.transfers {
		if matches(t, filter) {
			stored := *t
			res = append(res, &stored)
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(res, func(i, j int) bool {
		a, b := res[i], res[j]
		if filter.Descending {
			a, b = b, a
		}
		if filter.OrderBy == entity.OrderByTimestamp && !a.BlockTimestamp.Equal(b.BlockTimestamp) {
			return a.BlockTimestamp.Before(b.BlockTimestamp)
		}
		return a.BlockNumber < b.BlockNumber || (a.BlockNumber == b.BlockNumber && a.LogIndex < b.LogIndex)
	})

	if filter.Offset > 0 {
		if filter.Offset >= uint(len(res)) {
			return res[:0], nil
		}
		res = res[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < uint(len(res)) {
		res = res[:filter.Limit]
	}
	return res, nil
}

func (r *TransfersRepo) Count(ctx context.Context, filter *entity.TransferFilter) (uint, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := uint(0)
	for _, t := range r.transfers {
		if matches(t, filter) {
			count++
		}
	}
	return count, nil
}

func matches(t *entity.Transfer, filter *entity.TransferFilter) bool {
	switch {
	case filter.ChainID != "" && t.ChainID != filter.ChainID:
		return false
	case filter.Participant != nil && t.FromAddress != *filter.Participant && t.ToAddress != *filter.Participant:
		return false
	case filter.Token != nil && t.TokenAddress != *filter.Token:
		return false
	case filter.FromBlock != nil && t.BlockNumber < *filter.FromBlock:
		return false
	case filter.ToBlock != nil && t.BlockNumber > *filter.ToBlock:
		return false
	case filter.FromTime != nil && t.BlockTimestamp.Before(*filter.FromTime):
		return false
	case filter.ToTime != nil && t.BlockTimestamp.After(*filter.ToTime):
		return false
	}
	return true
}
