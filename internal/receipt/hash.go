package receipt

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/swayz032/Aspire-Desktop-sub001/internal/store/core"
)

// HashAlg identifica el algoritmo con el que se estampan los recibos.
// Queda grabado en cada fila para poder rotar el algoritmo sin
// invalidar lo ya sellado.
const HashAlg = "blake2b-256"

// canonicalPayload es la proyección inmutable del recibo que entra al
// hash. Orden de campos fijo: encoding/json serializa structs en orden
// de declaración, así que el mismo recibo siempre produce los mismos
// bytes. Hash y firma quedan afuera a propósito.
type canonicalPayload struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenant_id"`
	GroupID       string         `json:"group_id"`
	OfficeID      *string        `json:"office_id"`
	Type          string         `json:"type"`
	Status        string         `json:"status"`
	CorrelationID *string        `json:"correlation_id"`
	ActorType     string         `json:"actor_type"`
	ActorID       *string        `json:"actor_id"`
	Action        map[string]any `json:"action"`
	Result        map[string]any `json:"result"`
	CreatedAt     string         `json:"created_at"`
}

// CanonicalBytes serializa los campos inmutables del recibo de forma
// determinística. map keys salen ordenadas (encoding/json las ordena),
// y created_at va en RFC3339Nano UTC para que la representación no
// dependa de la zona del proceso.
func CanonicalBytes(r *core.Receipt) ([]byte, error) {
	p := canonicalPayload{
		ID:            r.ID,
		TenantID:      r.TenantID,
		GroupID:       r.GroupID,
		OfficeID:      r.OfficeID,
		Type:          r.Type,
		Status:        string(r.Status),
		CorrelationID: r.CorrelationID,
		ActorType:     string(r.ActorType),
		ActorID:       r.ActorID,
		Action:        r.Action,
		Result:        r.Result,
		CreatedAt:     r.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("receipt: canonicalize %s: %w", r.ID, err)
	}
	return b, nil
}

// Hash devuelve el blake2b-256 hex del contenido canónico.
func Hash(r *core.Receipt) (string, error) {
	b, err := CanonicalBytes(r)
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
