package presenter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/omni/transfer-indexer/entity"
	"github.com/omni/transfer-indexer/indexer"
	"github.com/omni/transfer-indexer/logging"
	"github.com/omni/transfer-indexer/presenter/http/middleware"
	"github.com/omni/transfer-indexer/presenter/http/render"
)

const shutdownTimeout = 5 * time.Second

// StatusProvider reports the live state of the token pipelines.
type StatusProvider interface {
	State() indexer.State
	Statuses() []indexer.TokenStatus
}

type Presenter struct {
	logger      logging.Logger
	checkpoints entity.CheckpointsRepo
	chainID     string
	tokens      []common.Address
	provider    StatusProvider
	root        chi.Router
}

// NewPresenter creates the status service. A nil provider reports tokens from stored checkpoints only.
func NewPresenter(logger logging.Logger, checkpoints entity.CheckpointsRepo, chainID string, tokens []common.Address, provider StatusProvider) *Presenter {
	p := &Presenter{
		logger:      logger,
		checkpoints: checkpoints,
		chainID:     chainID,
		tokens:      tokens,
		provider:    provider,
		root:        chi.NewMux(),
	}
	p.root.Use(chimiddleware.Throttle(5))
	p.root.Use(chimiddleware.RequestID)
	p.root.Use(middleware.NewLoggerMiddleware(logger))
	p.root.Use(middleware.Recoverer)
	p.root.Get("/healthz", p.GetHealth)
	p.root.Get("/status", p.GetStatus)
	p.root.With(middleware.GetTokenMiddleware(tokens)).Get("/status/{token:0x[0-9a-fA-F]{40}}", p.GetTokenStatus)
	return p
}

func (p *Presenter) Handler() http.Handler {
	return p.root
}

// Serve listens on addr until ctx is cancelled.
func (p *Presenter) Serve(ctx context.Context, addr string) error {
	p.logger.WithField("addr", addr).Info("starting presenter service")
	srv := &http.Server{
		Addr:              addr,
		Handler:           p.root,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			p.logger.WithError(err).Warn("failed to shutdown presenter service")
		}
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("presenter service failed: %w", err)
	}
	return nil
}

func (p *Presenter) GetHealth(w http.ResponseWriter, r *http.Request) {
	res := &HealthResult{State: "unknown"}
	if p.provider != nil {
		state := p.provider.State()
		res.State = state.String()
		res.Healthy = state == indexer.StateStarting || state == indexer.StateRunning
	}
	status := http.StatusOK
	if !res.Healthy {
		status = http.StatusServiceUnavailable
	}
	render.JSON(w, r, status, res)
}

func (p *Presenter) GetStatus(w http.ResponseWriter, r *http.Request) {
	res, err := p.Status(r.Context())
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, r, http.StatusOK, res)
}

func (p *Presenter) GetTokenStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := p.Status(ctx, middleware.Token(ctx))
	if err != nil {
		render.Error(w, r, err)
		return
	}
	render.JSON(w, r, http.StatusOK, res.Tokens[0])
}

// Status combines stored checkpoints with the pipeline phases, all tracked tokens are reported when none are given.
func (p *Presenter) Status(ctx context.Context, tokens ...common.Address) (*StatusResult, error) {
	if len(tokens) == 0 {
		tokens = p.tokens
	}
	checkpoints, err := p.checkpoints.FindByChainID(ctx, p.chainID, tokens...)
	if err != nil {
		return nil, fmt.Errorf("can't find checkpoints: %w", err)
	}
	lastIndexed := make(map[common.Address]uint, len(checkpoints))
	for _, cp := range checkpoints {
		lastIndexed[cp.Address] = cp.LastIndexedBlock
	}
	phases := make(map[common.Address]indexer.TokenStatus, len(tokens))
	res := &StatusResult{
		ChainID: p.chainID,
		State:   "unknown",
		Tokens:  make([]*TokenStatusInfo, 0, len(tokens)),
	}
	if p.provider != nil {
		res.State = p.provider.State().String()
		for _, status := range p.provider.Statuses() {
			phases[status.Address] = status
		}
	}
	for _, token := range tokens {
		info := &TokenStatusInfo{
			Address: formatAddress(token),
			Link:    tokenLink(p.chainID, token),
			Phase:   "unknown",
		}
		if block, ok := lastIndexed[token]; ok {
			info.LastIndexedBlock = &block
		}
		if status, ok := phases[token]; ok {
			info.Phase = string(status.Phase)
			if status.Err != nil {
				info.Error = status.Err.Error()
			}
		}
		info.Message = statusMessage(info.LastIndexedBlock)
		res.Tokens = append(res.Tokens, info)
	}
	return res, nil
}
