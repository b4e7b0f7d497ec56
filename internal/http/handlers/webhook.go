package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/swayz032/Aspire-Desktop-sub001/internal/http/helpers"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/observability/logger"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/observability/metrics"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/receipt"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/store/core"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/syncer"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/webhook"
)

type webhookResponse struct {
	Received bool `json:"received"`
	Handled  bool `json:"handled"`
}

// Webhook recibe notificaciones del provider. 401 SÓLO cuando la
// verificación de firma falla; todo lo demás (item desconocido, tipo no
// manejado) responde 200 para que el provider no reintente eternamente.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		helpers.WriteError(w, http.StatusBadRequest, "invalid_body", "no se pudo leer el body")
		return
	}

	if err := h.Verifier.Verify(ctx, r.Header.Get(webhook.Header), body); err != nil {
		metrics.WebhooksReceived.WithLabelValues("rejected").Inc()
		log.Warn("webhook rejected", logger.Err(err))
		helpers.WriteError(w, http.StatusUnauthorized, "verification_failed", "la firma del webhook no verifica")
		return
	}
	outcome := "accepted"
	if h.Verifier.Bypassed() {
		outcome = "bypassed"
	}
	metrics.WebhooksReceived.WithLabelValues(outcome).Inc()

	env, err := webhook.ParseEnvelope(body)
	if err != nil {
		log.Warn("webhook envelope invalid", logger.Err(err))
		helpers.WriteError(w, http.StatusBadRequest, "invalid_payload", "envelope inválido")
		return
	}
	log = log.With(
		logger.String("webhook_type", env.WebhookType),
		logger.String("webhook_code", env.WebhookCode))

	conn, err := h.Repo.GetConnectionByExternalID(ctx, h.Provider.Name(), env.ItemID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			// item que no conocemos: ack sin filtrar qué existe y qué no
			log.Warn("webhook for unknown item")
			helpers.WriteJSON(w, http.StatusOK, webhookResponse{Received: true})
			return
		}
		helpers.WriteError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	if err := h.Repo.TouchConnectionWebhook(ctx, conn.ID, time.Now().UTC()); err != nil {
		log.Warn("touch last_webhook_at failed", logger.Err(err))
	}

	handled := h.dispatch(ctx, conn, env, body)
	h.writeWebhookReceipt(ctx, conn, env, handled)
	helpers.WriteJSON(w, http.StatusOK, webhookResponse{Received: true, Handled: handled})
}

func (h *Handler) dispatch(ctx context.Context, conn *core.Connection, env *webhook.Envelope, body []byte) bool {
	log := logger.From(ctx).With(logger.ConnectionID(conn.ID))
	switch env.Kind() {
	case webhook.KindSyncAvailable:
		h.triggerSync(conn)
		return true

	case webhook.KindItemError:
		if err := h.Repo.UpdateConnectionStatus(ctx, conn.ID, core.ConnectionError); err != nil {
			log.Error("mark connection errored failed", logger.Err(err))
		}
		ev := &core.FinancialEvent{
			TenantID:        conn.TenantID,
			OfficeID:        conn.OfficeID,
			ConnectionID:    &conn.ID,
			Provider:        conn.Provider,
			ProviderEventID: "item_error_" + bodyKey(body),
			Type:            core.EventItemError,
			OccurredAt:      time.Now().UTC(),
			Status:          "error",
			RawHash:         bodyHash(body),
			Metadata:        map[string]any{"webhook_code": env.WebhookCode},
		}
		if env.Error != nil {
			ev.Metadata["error_type"] = env.Error.Type
			ev.Metadata["error_code"] = env.Error.Code
		}
		if _, err := h.Repo.InsertEvent(ctx, ev); err != nil {
			log.Error("item error event insert failed", logger.Err(err))
		}
		return true

	default:
		ev := &core.FinancialEvent{
			TenantID:        conn.TenantID,
			OfficeID:        conn.OfficeID,
			ConnectionID:    &conn.ID,
			Provider:        conn.Provider,
			ProviderEventID: "unhandled_" + bodyKey(body),
			Type:            core.EventUnhandled,
			OccurredAt:      time.Now().UTC(),
			Status:          "unhandled",
			RawHash:         bodyHash(body),
			Metadata: map[string]any{
				"webhook_type": env.WebhookType,
				"webhook_code": env.WebhookCode,
			},
		}
		if _, err := h.Repo.InsertEvent(ctx, ev); err != nil {
			log.Error("unhandled event insert failed", logger.Err(err))
		}
		return false
	}
}

// triggerSync dispara el sync fuera del request: el webhook responde ya,
// el run corre con contexto propio.
func (h *Handler) triggerSync(conn *core.Connection) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		ctx = logger.ToContext(ctx, logger.Named("webhook.sync").With(logger.ConnectionID(conn.ID)))
		if _, err := h.Engine.SyncConnection(ctx, conn); err != nil && !errors.Is(err, syncer.ErrLocked) {
			logger.From(ctx).Error("webhook-triggered sync failed", logger.Err(err))
		}
	}()
}

func (h *Handler) writeWebhookReceipt(ctx context.Context, conn *core.Connection, env *webhook.Envelope, handled bool) {
	if _, err := h.Receipts.Write(ctx, receipt.Entry{
		TenantID:  conn.TenantID,
		OfficeID:  &conn.OfficeID,
		Type:      "webhook.ingest",
		Status:    core.ReceiptSucceeded,
		ActorType: core.ActorSystem,
		Action: map[string]any{
			"connection_id": conn.ID,
			"webhook_type":  env.WebhookType,
			"webhook_code":  env.WebhookCode,
		},
		Result: map[string]any{"handled": handled},
	}); err != nil {
		logger.From(ctx).Error("webhook receipt write failed", logger.Err(err))
	}
}

func bodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// bodyKey es un prefijo corto del hash, suficiente como clave de
// idempotencia para webhooks repetidos con el mismo cuerpo.
func bodyKey(body []byte) string {
	return bodyHash(body)[:16]
}
