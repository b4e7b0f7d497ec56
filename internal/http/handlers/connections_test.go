package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/swayz032/Aspire-Desktop-sub001/internal/security/secretbox"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/store/core"
)

func doLink(t *testing.T, h *Handler) *httptest.ResponseRecorder {
	t.Helper()
	body := bytes.NewBufferString(`{"tenant_id":"t1","office_id":"o1","public_token":"pub"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/connections/link", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.LinkConnection(w, req)
	return w
}

func doDisconnect(t *testing.T, h *Handler, connID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodDelete, "/v1/connections/"+connID, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", connID)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	w := httptest.NewRecorder()
	h.Disconnect(w, req)
	return w
}

func TestLinkConnection_RelinkAfterDisconnect(t *testing.T) {
	h, _, repo := setupHandler(t)

	w := doLink(t, h)
	require.Equal(t, http.StatusCreated, w.Code)
	var first core.Connection
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))

	require.Equal(t, http.StatusOK, doDisconnect(t, h, first.ID).Code)

	// Una conexión desconectada no debe bloquear un nuevo enlace del
	// mismo tenant/office/provider.
	w = doLink(t, h)
	require.Equal(t, http.StatusCreated, w.Code)
	var second core.Connection
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	require.NotEqual(t, first.ID, second.ID)

	old, err := repo.GetConnection(context.Background(), first.ID)
	require.NoError(t, err)
	require.Equal(t, core.ConnectionDisconnected, old.Status)
}

func TestLinkConnection_DuplicateActiveConflicts(t *testing.T) {
	h, _, _ := setupHandler(t)

	require.Equal(t, http.StatusCreated, doLink(t, h).Code)
	require.Equal(t, http.StatusConflict, doLink(t, h).Code)
}

func TestLinkConnection_VaultFailureDoesNotBlockRetry(t *testing.T) {
	h, _, repo := setupHandler(t)

	// Sin master key el guardado de la credencial falla cerrado; el alta
	// no debe dejar una conexión activa sin credencial.
	secretbox.UnsafeResetForTests()
	t.Setenv("VAULT_MASTER_KEY", "")
	w := doLink(t, h)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	conns, err := repo.ListConnections(context.Background(), "t1")
	require.NoError(t, err)
	for _, c := range conns {
		require.Equal(t, core.ConnectionDisconnected, c.Status)
	}

	secretbox.UnsafeResetForTests()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 11)
	}
	require.NoError(t, secretbox.UnsafeSetMasterKeyForTests(key))

	require.Equal(t, http.StatusCreated, doLink(t, h).Code)
}
