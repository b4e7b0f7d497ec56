// Package syncer trae transacciones del provider vía cursor y las vuelca
// como eventos inmutables en el ledger. El cursor se persiste recién
// después de que la página quedó durable, así un crash re-procesa la
// página y el constraint de idempotencia absorbe los duplicados.
package syncer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/swayz032/Aspire-Desktop-sub001/internal/observability/logger"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/observability/metrics"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/provider"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/receipt"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/store/core"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/vault"
)

// Result resume un sync run. Los contadores cuentan eventos realmente
// escritos; los duplicados absorbidos por idempotencia van aparte.
type Result struct {
	Added      int `json:"added"`
	Modified   int `json:"modified"`
	Removed    int `json:"removed"`
	Duplicates int `json:"duplicates"`
	Pages      int `json:"pages"`
}

type Engine struct {
	repo     core.Repository
	vault    *vault.Vault
	client   provider.Client
	receipts *receipt.Ledger
	locks    Locker
	lockTTL  time.Duration
}

func NewEngine(repo core.Repository, v *vault.Vault, client provider.Client, receipts *receipt.Ledger, locks Locker, lockTTL time.Duration) *Engine {
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	return &Engine{repo: repo, vault: v, client: client, receipts: receipts, locks: locks, lockTTL: lockTTL}
}

// SyncConnection corre un sync completo de la conexión: todas las páginas
// pendientes desde el cursor guardado. Serializado por conexión vía lock;
// concurrente entre conexiones distintas.
func (e *Engine) SyncConnection(ctx context.Context, conn *core.Connection) (*Result, error) {
	release, err := e.locks.Acquire(ctx, "sync:"+conn.ID, e.lockTTL)
	if err != nil {
		if errors.Is(err, ErrLocked) {
			metrics.SyncRuns.WithLabelValues("locked").Inc()
		}
		return nil, err
	}
	defer release()

	log := logger.From(ctx).With(logger.ConnectionID(conn.ID), logger.Provider(conn.Provider))
	res, runErr := e.run(ctx, log, conn)

	if runErr != nil {
		metrics.SyncRuns.WithLabelValues("error").Inc()
		e.writeRunReceipt(ctx, conn, res, runErr)
		return res, runErr
	}
	metrics.SyncRuns.WithLabelValues("ok").Inc()
	if err := e.repo.TouchConnectionSync(ctx, conn.ID, time.Now().UTC()); err != nil {
		log.Warn("touch last_sync_at failed", logger.Err(err))
	}
	e.writeRunReceipt(ctx, conn, res, nil)
	log.Info("sync run finished",
		logger.Int("added", res.Added), logger.Int("modified", res.Modified),
		logger.Int("removed", res.Removed), logger.Int("pages", res.Pages))
	return res, nil
}

func (e *Engine) run(ctx context.Context, log *zap.Logger, conn *core.Connection) (*Result, error) {
	res := &Result{}

	tokens, err := e.vault.Load(ctx, conn.ID)
	if err != nil {
		return res, err
	}

	cursor := ""
	cur, err := e.repo.GetCursor(ctx, conn.ID, core.StreamTransactions)
	switch {
	case err == nil:
		cursor = cur.Cursor
	case errors.Is(err, core.ErrNotFound):
		log.Info("no cursor stored, starting fresh", logger.Stream(core.StreamTransactions))
	default:
		return res, err
	}

	for {
		page, err := e.client.TransactionsSync(ctx, tokens.AccessToken, cursor)
		if err != nil {
			return res, err
		}
		res.Pages++
		metrics.SyncPages.Inc()

		if err := e.ingestPage(ctx, conn, page, res); err != nil {
			return res, err
		}

		// El cursor avanza recién con la página durable; un crash entre
		// ingest y acá re-trae la página y la idempotencia la absorbe.
		if page.NextCursor != "" && page.NextCursor != cursor {
			if err := e.repo.UpsertCursor(ctx, &core.SyncCursor{
				ConnectionID: conn.ID,
				Provider:     conn.Provider,
				Stream:       core.StreamTransactions,
				Cursor:       page.NextCursor,
			}); err != nil {
				return res, err
			}
			cursor = page.NextCursor
		} else if page.HasMore {
			// HasMore sin cursor nuevo es un provider roto: cortamos acá
			// en vez de pedir la misma página hasta el deadline.
			return res, fmt.Errorf("syncer: provider reported more pages without advancing the cursor (connection %s)", conn.ID)
		}
		if !page.HasMore {
			return res, nil
		}
	}
}

func (e *Engine) ingestPage(ctx context.Context, conn *core.Connection, page *provider.SyncPage, res *Result) error {
	for i := range page.Added {
		written, err := e.insertTransaction(ctx, conn, &page.Added[i], false)
		if err != nil {
			return err
		}
		if written {
			res.Added++
		} else {
			res.Duplicates++
		}
	}
	for i := range page.Modified {
		written, err := e.insertTransaction(ctx, conn, &page.Modified[i], true)
		if err != nil {
			return err
		}
		if written {
			res.Modified++
		} else {
			res.Duplicates++
		}
	}
	for i := range page.Removed {
		written, err := e.insertRemoval(ctx, conn, &page.Removed[i])
		if err != nil {
			return err
		}
		if written {
			res.Removed++
		} else {
			res.Duplicates++
		}
	}
	return nil
}

func (e *Engine) insertTransaction(ctx context.Context, conn *core.Connection, tx *provider.Transaction, modified bool) (bool, error) {
	typ := core.EventTransactionPosted
	status := "posted"
	if tx.Pending {
		typ = core.EventTransactionPending
		status = "pending"
	}
	amount := tx.AmountMinor
	ev := &core.FinancialEvent{
		TenantID:        conn.TenantID,
		OfficeID:        conn.OfficeID,
		ConnectionID:    &conn.ID,
		Provider:        conn.Provider,
		ProviderEventID: tx.ID,
		Type:            typ,
		OccurredAt:      tx.Date,
		AmountMinor:     &amount,
		Currency:        tx.Currency,
		Status:          status,
		EntityRefs: map[string]string{
			"transaction_id": tx.ID,
			"account_id":     tx.AccountID,
		},
		RawHash: rawHash(tx),
		Metadata: map[string]any{
			"description": tx.Description,
			"modified":    modified,
		},
	}
	return e.insertEvent(ctx, ev)
}

// insertRemoval deja un evento de reversa con clave propia: el evento
// original queda intacto, la remoción es una fila nueva.
func (e *Engine) insertRemoval(ctx context.Context, conn *core.Connection, rm *provider.RemovedTransaction) (bool, error) {
	ev := &core.FinancialEvent{
		TenantID:        conn.TenantID,
		OfficeID:        conn.OfficeID,
		ConnectionID:    &conn.ID,
		Provider:        conn.Provider,
		ProviderEventID: "removed_" + rm.ID,
		Type:            core.EventTransactionRemoved,
		OccurredAt:      time.Now().UTC(),
		Status:          "removed",
		EntityRefs: map[string]string{
			"transaction_id": rm.ID,
			"account_id":     rm.AccountID,
		},
		RawHash: rawHash(rm),
	}
	return e.insertEvent(ctx, ev)
}

func (e *Engine) insertEvent(ctx context.Context, ev *core.FinancialEvent) (bool, error) {
	written, err := e.repo.InsertEvent(ctx, ev)
	if err != nil {
		return false, err
	}
	if written {
		metrics.EventsIngested.WithLabelValues("written").Inc()
	} else {
		metrics.EventsIngested.WithLabelValues("duplicate").Inc()
	}
	return written, nil
}

// receiptCtx desacopla la escritura del recibo del contexto del run: un
// run abortado por deadline igual tiene que dejar su recibo FAILED.
func receiptCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
}

func (e *Engine) writeRunReceipt(ctx context.Context, conn *core.Connection, res *Result, runErr error) {
	status := core.ReceiptSucceeded
	result := map[string]any{
		"added":      res.Added,
		"modified":   res.Modified,
		"removed":    res.Removed,
		"duplicates": res.Duplicates,
		"pages":      res.Pages,
	}
	if runErr != nil {
		status = core.ReceiptFailed
		result["error"] = runErr.Error()
	}
	wctx, cancel := receiptCtx(ctx)
	defer cancel()
	if _, err := e.receipts.Write(wctx, receipt.Entry{
		TenantID:  conn.TenantID,
		OfficeID:  &conn.OfficeID,
		Type:      "sync.run",
		Status:    status,
		ActorType: core.ActorWorker,
		Action: map[string]any{
			"connection_id": conn.ID,
			"provider":      conn.Provider,
			"stream":        core.StreamTransactions,
		},
		Result: result,
	}); err != nil {
		logger.From(ctx).Error("sync receipt write failed", logger.ConnectionID(conn.ID), logger.Err(err))
	}
}

func rawHash(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
