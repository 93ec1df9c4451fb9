package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/omni/transfer-indexer/config"
	"github.com/omni/transfer-indexer/logging"
	"github.com/omni/transfer-indexer/repository"
	"github.com/omni/transfer-indexer/source"
)

type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type Phase string

const (
	PhasePending  Phase = "pending"
	PhaseBackfill Phase = "backfill"
	PhaseTail     Phase = "tail"
	PhaseFailed   Phase = "failed"
	PhaseStopped  Phase = "stopped"
)

type TokenStatus struct {
	Address common.Address
	Phase   Phase
	Err     error
}

// Indexer runs backfill followed by live tail for every tracked token.
type Indexer struct {
	logger   logging.Logger
	chainID  string
	tokens   []*TrackedToken
	backfill *Backfill
	tail     *Tail

	mu       sync.Mutex
	state    State
	cancel   context.CancelFunc
	done     chan struct{}
	stopped  chan struct{}
	ready    chan struct{}
	pending  map[common.Address]bool
	statuses map[common.Address]*TokenStatus
}

func NewIndexer(logger logging.Logger, src source.Source, repo *repository.Repo, cfg *config.IndexerConfig, tokens []*TrackedToken) *Indexer {
	i := &Indexer{
		logger:   logger,
		chainID:  src.ChainID(),
		tokens:   tokens,
		backfill: NewBackfill(logger, src, repo, cfg),
		tail:     NewTail(logger, src, repo, cfg),
		state:    StateStopped,
		statuses: make(map[common.Address]*TokenStatus, len(tokens)),
	}
	i.tail.OnStateChange = i.onTailStateChange
	for _, token := range tokens {
		i.statuses[token.Address] = &TokenStatus{Address: token.Address, Phase: PhasePending}
	}
	i.ready = make(chan struct{})
	i.stopped = make(chan struct{})
	close(i.stopped)
	return i
}

func (i *Indexer) setState(state State) {
	i.state = state
	OrchestratorState.Set(float64(state))
	i.logger.WithField("state", state.String()).Info("indexer state changed")
}

// Start launches indexing of all tokens and returns immediately.
// Use Ready to wait until every token has an active live tail or has failed.
func (i *Indexer) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != StateStopped {
		return ErrAlreadyRunning
	}
	i.setState(StateStarting)

	ctx, cancel := context.WithCancel(ctx)
	i.cancel = cancel
	i.done = make(chan struct{})
	i.stopped = make(chan struct{})
	i.ready = make(chan struct{})
	i.pending = make(map[common.Address]bool, len(i.tokens))
	for _, token := range i.tokens {
		i.pending[token.Address] = true
		i.statuses[token.Address] = &TokenStatus{Address: token.Address, Phase: PhasePending}
		FailedTokens.WithLabelValues(i.chainID, token.Address.String()).Set(0)
	}
	if len(i.pending) == 0 {
		i.markRunning()
	}

	g := new(errgroup.Group)
	for _, token := range i.tokens {
		token := token
		g.Go(func() error {
			i.runToken(ctx, token)
			return nil
		})
	}
	done := i.done
	go func() {
		_ = g.Wait()
		close(done)
	}()
	return nil
}

func (i *Indexer) runToken(ctx context.Context, token *TrackedToken) {
	logger := i.logger.WithField("token", token.Address)
	i.setPhase(token, PhaseBackfill, nil)
	checkpoint, err := i.backfill.Run(ctx, token)
	if err == nil {
		err = i.tail.Run(ctx, token, checkpoint)
	}
	if err != nil && ctx.Err() == nil {
		logger.WithError(err).Error("token indexing failed")
		FailedTokens.WithLabelValues(i.chainID, token.Address.String()).Set(1)
		if !errors.Is(err, ErrEntityFatal) {
			err = fmt.Errorf("%w: %w", ErrEntityFatal, err)
		}
		i.setPhase(token, PhaseFailed, err)
		return
	}
	i.setPhase(token, PhaseStopped, nil)
}

func (i *Indexer) onTailStateChange(token *TrackedToken, state TailState) {
	if state == TailActive {
		i.setPhase(token, PhaseTail, nil)
	}
}

func (i *Indexer) setPhase(token *TrackedToken, phase Phase, err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	status := i.statuses[token.Address]
	if status.Phase == phase {
		return
	}
	status.Phase = phase
	status.Err = err
	if phase == PhaseTail || phase == PhaseFailed {
		delete(i.pending, token.Address)
		if len(i.pending) == 0 && i.state == StateStarting {
			i.markRunning()
		}
	}
}

func (i *Indexer) markRunning() {
	i.setState(StateRunning)
	close(i.ready)
}

// Stop cancels all token pipelines and waits for them to exit, it is a no-op when already stopped.
func (i *Indexer) Stop() {
	i.mu.Lock()
	if i.state == StateStopped || i.state == StateStopping {
		stopped := i.stopped
		i.mu.Unlock()
		<-stopped
		return
	}
	if i.state == StateStarting {
		close(i.ready)
	}
	i.setState(StateStopping)
	i.cancel()
	done, stopped := i.done, i.stopped
	i.mu.Unlock()

	<-done

	i.mu.Lock()
	i.setState(StateStopped)
	close(stopped)
	i.mu.Unlock()
}

func (i *Indexer) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Ready is closed once every token has an active live tail or has failed, or when the indexer is stopped.
func (i *Indexer) Ready() <-chan struct{} {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.ready
}

// Failures returns fatal errors of tokens which stopped indexing.
func (i *Indexer) Failures() map[common.Address]error {
	i.mu.Lock()
	defer i.mu.Unlock()
	res := make(map[common.Address]error)
	for addr, status := range i.statuses {
		if status.Phase == PhaseFailed {
			res[addr] = status.Err
		}
	}
	return res
}

// Statuses returns the current phase of every token in configuration order.
func (i *Indexer) Statuses() []TokenStatus {
	i.mu.Lock()
	defer i.mu.Unlock()
	res := make([]TokenStatus, len(i.tokens))
	for idx, token := range i.tokens {
		res[idx] = *i.statuses[token.Address]
	}
	return res
}

// Reindex stores transfers of a tracked token in the block range without touching its checkpoint.
func (i *Indexer) Reindex(ctx context.Context, token common.Address, fromBlock, toBlock uint) (int, error) {
	for _, t := range i.tokens {
		if t.Address == token {
			i.logger.WithFields(logrus.Fields{
				"token":      token,
				"from_block": fromBlock,
				"to_block":   toBlock,
			}).Info("reindexing block range")
			return i.backfill.Reindex(ctx, t, fromBlock, toBlock)
		}
	}
	return 0, fmt.Errorf("token %s is not tracked", token)
}
