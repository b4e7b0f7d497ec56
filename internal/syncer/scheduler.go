package syncer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/swayz032/Aspire-Desktop-sub001/internal/observability/logger"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/store/core"
)

// Scheduler barre periódicamente todas las conexiones conectadas y corre
// un sync por cada una, con paralelismo acotado. Los webhooks disparan
// syncs fuera de este ciclo; el scheduler es la red de seguridad para
// webhooks perdidos.
type Scheduler struct {
	engine      *Engine
	repo        core.Repository
	interval    time.Duration
	parallelism int
	runTimeout  time.Duration
	syncOnStart bool
}

func NewScheduler(engine *Engine, repo core.Repository, interval time.Duration, parallelism int, runTimeout time.Duration, syncOnStart bool) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if parallelism <= 0 {
		parallelism = 4
	}
	if runTimeout <= 0 {
		runTimeout = 5 * time.Minute
	}
	return &Scheduler{
		engine:      engine,
		repo:        repo,
		interval:    interval,
		parallelism: parallelism,
		runTimeout:  runTimeout,
		syncOnStart: syncOnStart,
	}
}

// Run bloquea hasta que ctx se cancele.
func (s *Scheduler) Run(ctx context.Context) {
	log := logger.Named("syncer.scheduler")
	if s.syncOnStart {
		s.sweep(ctx, log)
	}
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.sweep(ctx, log)
		}
	}
}

// sweep corre la flota entera una vez. Un lock tomado o una conexión que
// falla no frena al resto.
func (s *Scheduler) sweep(ctx context.Context, log *zap.Logger) {
	conns, err := s.repo.ListConnectionsByStatus(ctx, core.ConnectionConnected)
	if err != nil {
		log.Error("list connections failed", logger.Err(err))
		return
	}
	if len(conns) == 0 {
		return
	}
	log.Info("sync sweep starting", logger.Count(len(conns)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i := range conns {
		conn := conns[i]
		g.Go(func() error {
			runCtx, cancel := context.WithTimeout(gctx, s.runTimeout)
			defer cancel()
			_, err := s.engine.SyncConnection(runCtx, &conn)
			switch {
			case err == nil, errors.Is(err, ErrLocked):
			default:
				log.Error("scheduled sync failed", logger.ConnectionID(conn.ID), logger.Err(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}
