package receipt

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/swayz032/Aspire-Desktop-sub001/internal/store/core"
)

// VerifyState es el resultado de recomputar hash y firma de un recibo.
type VerifyState string

const (
	// VerifyPending: todavía no pasó el sealer, no hay nada que chequear.
	VerifyPending VerifyState = "pending"
	// VerifyOK: hash recomputado y firma coinciden con lo estampado.
	VerifyOK VerifyState = "valid"
	// VerifyMismatch: el contenido no coincide con el sello. Alguien
	// tocó la fila, o la clave de firma no es la que selló.
	VerifyMismatch VerifyState = "mismatch"
)

// Verify recomputa el hash canónico del recibo y valida la firma ed25519
// contra la clave pública configurada.
func Verify(r *core.Receipt) (VerifyState, error) {
	if !r.Sealed() {
		return VerifyPending, nil
	}
	recomputed, err := Hash(r)
	if err != nil {
		return VerifyMismatch, err
	}
	if recomputed != *r.Hash {
		return VerifyMismatch, nil
	}
	pub, err := PublicKey()
	if err != nil {
		return VerifyMismatch, err
	}
	msg, err := hex.DecodeString(*r.Hash)
	if err != nil {
		return VerifyMismatch, fmt.Errorf("receipt: stored hash is not hex: %w", err)
	}
	sig, err := hex.DecodeString(*r.Signature)
	if err != nil {
		return VerifyMismatch, fmt.Errorf("receipt: stored signature is not hex: %w", err)
	}
	if !ed25519.Verify(pub, msg, sig) {
		return VerifyMismatch, nil
	}
	return VerifyOK, nil
}

// VerifyByID carga el recibo y lo verifica.
func (l *Ledger) VerifyByID(ctx context.Context, id string) (VerifyState, *core.Receipt, error) {
	r, err := l.repo.GetReceipt(ctx, id)
	if err != nil {
		return "", nil, err
	}
	state, err := Verify(r)
	return state, r, err
}
