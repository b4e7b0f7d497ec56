package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/swayz032/Aspire-Desktop-sub001/internal/observability/logger"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/receipt"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/store/core"
)

// SnapshotBalances trae los saldos actuales de las cuentas de la conexión
// y deja un evento por cuenta. La clave incluye el bucket horario: dos
// snapshots en la misma hora colapsan en uno, snapshots de horas
// distintas son eventos distintos.
func (e *Engine) SnapshotBalances(ctx context.Context, conn *core.Connection) (int, error) {
	tokens, err := e.vault.Load(ctx, conn.ID)
	if err != nil {
		return 0, err
	}
	balances, err := e.client.Balances(ctx, tokens.AccessToken)
	if err != nil {
		e.writeSnapshotReceipt(ctx, conn, 0, err)
		return 0, err
	}

	now := time.Now().UTC()
	bucket := now.Format("2006-01-02T15")
	written := 0
	for i := range balances {
		b := &balances[i]
		ev := &core.FinancialEvent{
			TenantID:        conn.TenantID,
			OfficeID:        conn.OfficeID,
			ConnectionID:    &conn.ID,
			Provider:        conn.Provider,
			ProviderEventID: fmt.Sprintf("balance_%s_%s", b.AccountID, bucket),
			Type:            core.EventBalanceSnapshot,
			OccurredAt:      now,
			AmountMinor:     b.CurrentMinor,
			Currency:        b.Currency,
			Status:          "snapshot",
			EntityRefs:      map[string]string{"account_id": b.AccountID},
			RawHash:         rawHash(b),
			Metadata: map[string]any{
				"account_name": b.Name,
			},
		}
		if b.AvailableMinor != nil {
			ev.Metadata["available_minor"] = *b.AvailableMinor
		}
		ok, err := e.insertEvent(ctx, ev)
		if err != nil {
			return written, err
		}
		if ok {
			written++
		}
	}
	logger.From(ctx).Info("balance snapshot taken",
		logger.ConnectionID(conn.ID), logger.Count(written))
	e.writeSnapshotReceipt(ctx, conn, written, nil)
	return written, nil
}

func (e *Engine) writeSnapshotReceipt(ctx context.Context, conn *core.Connection, written int, runErr error) {
	status := core.ReceiptSucceeded
	result := map[string]any{"written": written}
	if runErr != nil {
		status = core.ReceiptFailed
		result["error"] = runErr.Error()
	}
	wctx, cancel := receiptCtx(ctx)
	defer cancel()
	if _, err := e.receipts.Write(wctx, receipt.Entry{
		TenantID:  conn.TenantID,
		OfficeID:  &conn.OfficeID,
		Type:      "balances.snapshot",
		Status:    status,
		ActorType: core.ActorWorker,
		Action:    map[string]any{"connection_id": conn.ID, "provider": conn.Provider},
		Result:    result,
	}); err != nil {
		logger.From(ctx).Error("snapshot receipt write failed", logger.ConnectionID(conn.ID), logger.Err(err))
	}
}
