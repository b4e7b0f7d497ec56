package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/swayz032/Aspire-Desktop-sub001/internal/http/helpers"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/observability/logger"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/receipt"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/store/core"
)

type linkRequest struct {
	TenantID    string   `json:"tenant_id"`
	OfficeID    string   `json:"office_id"`
	PublicToken string   `json:"public_token"`
	Scopes      []string `json:"scopes"`
}

// LinkConnection canjea el public token del flujo de link por un access
// token, guarda la credencial cifrada en el vault y da de alta la
// conexión. El access token jamás sale en la respuesta.
func (h *Handler) LinkConnection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req linkRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if req.TenantID == "" || req.OfficeID == "" || req.PublicToken == "" {
		helpers.WriteError(w, http.StatusBadRequest, "invalid_request", "tenant_id, office_id y public_token son obligatorios")
		return
	}

	link, err := h.Provider.ExchangePublicToken(ctx, req.PublicToken)
	if err != nil {
		logger.From(ctx).Error("public token exchange failed", logger.Err(err))
		helpers.WriteError(w, http.StatusBadGateway, "exchange_failed", "el provider rechazó el public token")
		return
	}

	conn := &core.Connection{
		ID:             uuid.NewString(),
		TenantID:       req.TenantID,
		OfficeID:       req.OfficeID,
		Provider:       h.Provider.Name(),
		ExternalItemID: link.ItemID,
		Status:         core.ConnectionConnected,
		Scopes:         req.Scopes,
	}
	if err := h.Repo.CreateConnection(ctx, conn); err != nil {
		if errors.Is(err, core.ErrConflict) {
			helpers.WriteError(w, http.StatusConflict, "already_linked", "ya existe una conexión para ese item")
			return
		}
		helpers.WriteError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	if err := h.Vault.Save(ctx, conn.ID, link.AccessToken, nil, nil); err != nil {
		logger.From(ctx).Error("credential save failed", logger.ConnectionID(conn.ID), logger.Err(err))
		// Sin credencial la conexión no sirve: la marcamos desconectada para
		// que no bloquee un reintento del link.
		if derr := h.Repo.UpdateConnectionStatus(ctx, conn.ID, core.ConnectionDisconnected); derr != nil {
			logger.From(ctx).Error("link rollback failed", logger.ConnectionID(conn.ID), logger.Err(derr))
		}
		helpers.WriteError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}

	h.writeConnectionReceipt(ctx, conn, "connection.link", map[string]any{"external_item_id": conn.ExternalItemID})
	logger.From(ctx).Info("connection linked",
		logger.ConnectionID(conn.ID), logger.TenantID(conn.TenantID))
	helpers.WriteJSON(w, http.StatusCreated, conn)
}

// GetConnection devuelve una conexión por id.
func (h *Handler) GetConnection(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.connectionFromPath(w, r)
	if !ok {
		return
	}
	helpers.WriteJSON(w, http.StatusOK, conn)
}

// ListConnections lista las conexiones del tenant.
func (h *Handler) ListConnections(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		helpers.WriteError(w, http.StatusBadRequest, "invalid_request", "tenant_id es obligatorio")
		return
	}
	conns, err := h.Repo.ListConnections(r.Context(), tenantID)
	if err != nil {
		helpers.WriteError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"connections": conns})
}

// Disconnect revoca la conexión: purga la credencial del vault, borra el
// cursor y marca la conexión como desconectada. Los eventos ya ingestados
// quedan; el ledger nunca se poda.
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conn, ok := h.connectionFromPath(w, r)
	if !ok {
		return
	}
	if err := h.Vault.Purge(ctx, conn.ID); err != nil && !errors.Is(err, core.ErrNotFound) {
		logger.From(ctx).Error("credential purge failed", logger.ConnectionID(conn.ID), logger.Err(err))
		helpers.WriteError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	if err := h.Repo.DeleteCursor(ctx, conn.ID, core.StreamTransactions); err != nil && !errors.Is(err, core.ErrNotFound) {
		logger.From(ctx).Warn("cursor delete failed", logger.ConnectionID(conn.ID), logger.Err(err))
	}
	if err := h.Repo.UpdateConnectionStatus(ctx, conn.ID, core.ConnectionDisconnected); err != nil {
		helpers.WriteError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	h.writeConnectionReceipt(ctx, conn, "connection.disconnect", nil)
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"disconnected": true})
}

// SnapshotBalances toma un snapshot de saldos bajo demanda.
func (h *Handler) SnapshotBalances(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.connectionFromPath(w, r)
	if !ok {
		return
	}
	written, err := h.Engine.SnapshotBalances(r.Context(), conn)
	if err != nil {
		helpers.WriteError(w, http.StatusBadGateway, "snapshot_failed", "no se pudieron traer los saldos")
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"written": written})
}

func (h *Handler) connectionFromPath(w http.ResponseWriter, r *http.Request) (*core.Connection, bool) {
	id := chi.URLParam(r, "id")
	conn, err := h.Repo.GetConnection(r.Context(), id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			helpers.WriteError(w, http.StatusNotFound, "not_found", "conexión inexistente")
		} else {
			helpers.WriteError(w, http.StatusInternalServerError, "internal_error", "")
		}
		return nil, false
	}
	return conn, true
}

func (h *Handler) writeConnectionReceipt(ctx context.Context, conn *core.Connection, typ string, result map[string]any) {
	if result == nil {
		result = map[string]any{}
	}
	if _, err := h.Receipts.Write(ctx, receipt.Entry{
		TenantID:  conn.TenantID,
		OfficeID:  &conn.OfficeID,
		Type:      typ,
		Status:    core.ReceiptSucceeded,
		ActorType: core.ActorUser,
		Action:    map[string]any{"connection_id": conn.ID, "provider": conn.Provider},
		Result:    result,
	}); err != nil {
		logger.From(ctx).Error("connection receipt write failed", logger.Err(err))
	}
}
