package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/swayz032/Aspire-Desktop-sub001/internal/http/helpers"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/store/core"
)

// GetReceipt devuelve un recibo por id, con hash y firma si ya fue sellado.
func (h *Handler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.Receipts.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			helpers.WriteError(w, http.StatusNotFound, "not_found", "recibo inexistente")
		} else {
			helpers.WriteError(w, http.StatusInternalServerError, "internal_error", "")
		}
		return
	}
	helpers.WriteJSON(w, http.StatusOK, rec)
}

// ListReceipts lista recibos del tenant, más recientes primero.
func (h *Handler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tenantID := q.Get("tenant_id")
	if tenantID == "" {
		helpers.WriteError(w, http.StatusBadRequest, "invalid_request", "tenant_id es obligatorio")
		return
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			helpers.WriteError(w, http.StatusBadRequest, "invalid_request", "limit inválido")
			return
		}
		limit = n
	}
	recs, err := h.Receipts.List(r.Context(), tenantID, q.Get("office_id"), limit)
	if err != nil {
		helpers.WriteError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"receipts": recs})
}

// VerifyReceipt recomputa hash y firma del recibo y reporta el estado.
func (h *Handler) VerifyReceipt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	state, rec, err := h.Receipts.VerifyByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			helpers.WriteError(w, http.StatusNotFound, "not_found", "recibo inexistente")
			return
		}
		helpers.WriteError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{
		"receipt_id": rec.ID,
		"state":      state,
		"hash_alg":   rec.HashAlg,
	})
}
