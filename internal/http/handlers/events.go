package handlers

import (
	"net/http"

	"github.com/swayz032/Aspire-Desktop-sub001/internal/http/helpers"
)

// CountEvents devuelve el total de eventos del tenant, filtrable por
// office y provider. Pensado para reconciliación, no para paginar.
func (h *Handler) CountEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tenantID := q.Get("tenant_id")
	if tenantID == "" {
		helpers.WriteError(w, http.StatusBadRequest, "invalid_request", "tenant_id es obligatorio")
		return
	}
	n, err := h.Repo.CountEvents(r.Context(), tenantID, q.Get("office_id"), q.Get("provider"))
	if err != nil {
		helpers.WriteError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"count": n})
}
