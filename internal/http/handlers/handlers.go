// Package handlers implementa la superficie HTTP v1: webhooks,
// conexiones, syncs manuales y consulta de recibos.
package handlers

import (
	"github.com/swayz032/Aspire-Desktop-sub001/internal/provider"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/receipt"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/store/core"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/syncer"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/vault"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/webhook"
)

// Handler agrupa las dependencias compartidas de todos los endpoints.
type Handler struct {
	Repo     core.Repository
	Vault    *vault.Vault
	Provider provider.Client
	Engine   *syncer.Engine
	Receipts *receipt.Ledger
	Verifier *webhook.Verifier
}

func New(repo core.Repository, v *vault.Vault, p provider.Client, eng *syncer.Engine, rl *receipt.Ledger, ver *webhook.Verifier) *Handler {
	return &Handler{Repo: repo, Vault: v, Provider: p, Engine: eng, Receipts: rl, Verifier: ver}
}
