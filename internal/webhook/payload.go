package webhook

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind clasifica qué acción corresponde a una notificación ya verificada.
type Kind int

const (
	// KindUnhandled: tipo/código que no manejamos. Se registra y se
	// responde 200 igual; el provider no debe reintentar por esto.
	KindUnhandled Kind = iota
	// KindSyncAvailable: hay transacciones nuevas o modificadas para
	// traer vía el cursor de la conexión.
	KindSyncAvailable
	// KindItemError: la conexión quedó en estado de error del lado del
	// provider (credenciales vencidas, consent revocado).
	KindItemError
)

// ProviderError es el bloque de error que el provider adjunta cuando un
// item queda inusable.
type ProviderError struct {
	Type    string `json:"error_type"`
	Code    string `json:"error_code"`
	Message string `json:"error_message"`
}

// Envelope es el cuerpo JSON de toda notificación del provider. item_id es
// el identificador nativo de la conexión; el handler lo mapea a nuestra
// Connection vía external_item_id.
type Envelope struct {
	WebhookType     string         `json:"webhook_type"`
	WebhookCode     string         `json:"webhook_code"`
	ItemID          string         `json:"item_id"`
	Environment     string         `json:"environment,omitempty"`
	NewTransactions int            `json:"new_transactions,omitempty"`
	Error           *ProviderError `json:"error,omitempty"`
}

// ParseEnvelope decodifica y valida lo mínimo que toda notificación trae.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("webhook: decode envelope: %w", err)
	}
	if e.WebhookType == "" || e.WebhookCode == "" {
		return nil, fmt.Errorf("webhook: envelope missing webhook_type or webhook_code")
	}
	if e.ItemID == "" {
		return nil, fmt.Errorf("webhook: envelope missing item_id")
	}
	return &e, nil
}

// Kind mapea type/code a la acción que tomamos. Todo lo que no
// reconocemos cae en KindUnhandled a propósito: el provider agrega
// códigos nuevos sin aviso.
func (e *Envelope) Kind() Kind {
	typ := strings.ToUpper(e.WebhookType)
	code := strings.ToUpper(e.WebhookCode)
	switch typ {
	case "TRANSACTIONS":
		switch code {
		case "SYNC_UPDATES_AVAILABLE", "DEFAULT_UPDATE", "INITIAL_UPDATE", "HISTORICAL_UPDATE":
			return KindSyncAvailable
		}
	case "ITEM":
		switch code {
		case "ERROR", "PENDING_EXPIRATION", "USER_PERMISSION_REVOKED":
			return KindItemError
		}
	}
	return KindUnhandled
}
