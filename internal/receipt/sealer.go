package receipt

import (
	"context"
	"errors"
	"time"

	"github.com/swayz032/Aspire-Desktop-sub001/internal/observability/logger"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/observability/metrics"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/store/core"
)

// Sealer recorre los recibos sin sellar y les estampa hash+firma. Corre
// como goroutine de fondo; la escritura del recibo nunca espera a la
// firma, así el hot path no carga con crypto.
type Sealer struct {
	repo     core.Repository
	interval time.Duration
	batch    int
}

func NewSealer(repo core.Repository, interval time.Duration, batch int) *Sealer {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	return &Sealer{repo: repo, interval: interval, batch: batch}
}

// Run bloquea hasta que ctx se cancele. Cada tick sella hasta batch
// recibos pendientes.
func (s *Sealer) Run(ctx context.Context) {
	log := logger.Named("receipt.sealer")
	if err := ensureSigningKey(); err != nil {
		log.Error("signing key unavailable, sealer idle", logger.Err(err))
		<-ctx.Done()
		return
	}
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n, err := s.SealBatch(ctx); err != nil {
				log.Error("seal pass failed", logger.Err(err))
			} else if n > 0 {
				log.Info("receipts sealed", logger.Count(n))
			}
		}
	}
}

// SealBatch sella una tanda y devuelve cuántos recibos estampó.
// ErrImmutable de un sello concurrente no es error: otro worker llegó
// primero y el recibo ya quedó sellado.
func (s *Sealer) SealBatch(ctx context.Context) (int, error) {
	pending, err := s.repo.ListUnsealedReceipts(ctx, s.batch)
	if err != nil {
		return 0, err
	}
	sealed := 0
	for i := range pending {
		r := &pending[i]
		hash, err := Hash(r)
		if err != nil {
			logger.From(ctx).Error("receipt hash failed", logger.ReceiptID(r.ID), logger.Err(err))
			continue
		}
		sig, err := Sign(hash)
		if err != nil {
			return sealed, err
		}
		if err := s.repo.SealReceipt(ctx, r.ID, hash, sig); err != nil {
			if errors.Is(err, core.ErrImmutable) {
				continue
			}
			return sealed, err
		}
		metrics.ReceiptsSealed.Inc()
		sealed++
	}
	return sealed, nil
}
