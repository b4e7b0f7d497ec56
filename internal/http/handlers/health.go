package handlers

import (
	"net/http"

	"github.com/swayz032/Aspire-Desktop-sub001/internal/http/helpers"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/receipt"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/security/secretbox"
)

// Healthz: liveness. Responde mientras el proceso esté vivo.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// Readyz: readiness real. Falla si el store no responde o si falta
// alguna de las claves (vault o firma de recibos): un proceso sin claves
// arranca pero no debe recibir tráfico.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]bool{
		"store":       h.Repo.Ping(r.Context()) == nil,
		"vault_key":   secretbox.Ready(),
		"signing_key": receipt.SigningReady(),
	}
	for _, ok := range checks {
		if !ok {
			helpers.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "checks": checks})
			return
		}
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"status": "ready", "checks": checks})
}
