package handlers

import (
	"errors"
	"net/http"

	"github.com/swayz032/Aspire-Desktop-sub001/internal/http/helpers"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/syncer"
)

// TriggerSync corre un sync run sincrónico y devuelve los contadores.
// 409 si otro worker ya tiene el lock de la conexión.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	conn, ok := h.connectionFromPath(w, r)
	if !ok {
		return
	}
	res, err := h.Engine.SyncConnection(r.Context(), conn)
	if err != nil {
		if errors.Is(err, syncer.ErrLocked) {
			helpers.WriteError(w, http.StatusConflict, "sync_in_progress", "ya hay un sync corriendo para esta conexión")
			return
		}
		helpers.WriteError(w, http.StatusBadGateway, "sync_failed", err.Error())
		return
	}
	helpers.WriteJSON(w, http.StatusOK, res)
}
