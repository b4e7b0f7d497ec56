package receipt

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/swayz032/Aspire-Desktop-sub001/internal/store/core"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/store/memory"
)

func setupSigning(t *testing.T) {
	t.Helper()
	UnsafeResetSigningForTests()
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i + 3)
	}
	t.Setenv("RECEIPT_SIGNING_KEY", base64.StdEncoding.EncodeToString(seed))
	t.Cleanup(UnsafeResetSigningForTests)
}

func TestLedger_WriteAndSeal(t *testing.T) {
	setupSigning(t)
	repo := memory.New()
	ledger := NewLedger(repo)
	ctx := context.Background()

	office := "o1"
	rec, err := ledger.Write(ctx, Entry{
		TenantID:  "t1",
		OfficeID:  &office,
		Type:      "sync.run",
		Status:    core.ReceiptSucceeded,
		ActorType: core.ActorWorker,
		Action:    map[string]any{"connection_id": "c1"},
		Result:    map[string]any{"added": 3},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if rec.Sealed() {
		t.Fatal("receipt should not be sealed at write time")
	}
	if rec.HashAlg != HashAlg {
		t.Fatalf("hash alg: %q", rec.HashAlg)
	}

	sealer := NewSealer(repo, 0, 0)
	n, err := sealer.SealBatch(ctx)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 sealed, got %d", n)
	}

	got, err := repo.GetReceipt(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Sealed() {
		t.Fatal("receipt should be sealed")
	}
}

func TestLedger_SealIsWriteOnce(t *testing.T) {
	setupSigning(t)
	repo := memory.New()
	ledger := NewLedger(repo)
	ctx := context.Background()

	rec, err := ledger.Write(ctx, Entry{TenantID: "t1", Type: "webhook.ingest"})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	sealer := NewSealer(repo, 0, 0)
	if _, err := sealer.SealBatch(ctx); err != nil {
		t.Fatalf("seal: %v", err)
	}
	// segundo sello directo contra el repo: debe rebotar
	err = repo.SealReceipt(ctx, rec.ID, "otherhash", "othersig")
	if !errors.Is(err, core.ErrImmutable) {
		t.Fatalf("expected ErrImmutable, got %v", err)
	}
}

func TestVerify_States(t *testing.T) {
	setupSigning(t)
	repo := memory.New()
	ledger := NewLedger(repo)
	ctx := context.Background()

	rec, err := ledger.Write(ctx, Entry{TenantID: "t1", Type: "connection.link"})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	state, _, err := ledger.VerifyByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("verify pending: %v", err)
	}
	if state != VerifyPending {
		t.Fatalf("expected pending, got %v", state)
	}

	sealer := NewSealer(repo, 0, 0)
	if _, err := sealer.SealBatch(ctx); err != nil {
		t.Fatalf("seal: %v", err)
	}
	state, _, err = ledger.VerifyByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("verify sealed: %v", err)
	}
	if state != VerifyOK {
		t.Fatalf("expected valid, got %v", state)
	}
}

func TestVerify_DetectsTamper(t *testing.T) {
	setupSigning(t)
	repo := memory.New()
	ledger := NewLedger(repo)
	ctx := context.Background()

	rec, err := ledger.Write(ctx, Entry{
		TenantID: "t1",
		Type:     "sync.run",
		Result:   map[string]any{"added": 3},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	sealer := NewSealer(repo, 0, 0)
	if _, err := sealer.SealBatch(ctx); err != nil {
		t.Fatalf("seal: %v", err)
	}

	got, err := repo.GetReceipt(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	// mutar el contenido después del sello
	got.Result["added"] = 9999

	state, err := Verify(got)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if state != VerifyMismatch {
		t.Fatalf("expected mismatch, got %v", state)
	}
}

func TestLedger_LegacyEntryNestsInputsOutputs(t *testing.T) {
	setupSigning(t)
	repo := memory.New()
	ledger := NewLedger(repo)
	ctx := context.Background()

	rec, err := ledger.WriteLegacy(ctx, LegacyEntry{
		TenantID:   "t1",
		ActionType: "sync.run",
		Status:     core.ReceiptSucceeded,
		ActorType:  core.ActorWorker,
		Inputs:     map[string]any{"connection_id": "c1"},
		Outputs:    map[string]any{"added": 2},
	})
	if err != nil {
		t.Fatalf("write legacy: %v", err)
	}
	inputs, ok := rec.Action["inputs"].(map[string]any)
	if !ok {
		t.Fatalf("inputs no anidados: %v", rec.Action)
	}
	if inputs["connection_id"] != "c1" {
		t.Fatalf("inputs perdidos: %v", inputs)
	}
	outputs, ok := rec.Result["outputs"].(map[string]any)
	if !ok {
		t.Fatalf("outputs no anidados: %v", rec.Result)
	}
	if outputs["added"] != 2 {
		t.Fatalf("outputs perdidos: %v", outputs)
	}
}

func TestLedger_RequiresTenantAndType(t *testing.T) {
	repo := memory.New()
	ledger := NewLedger(repo)
	if _, err := ledger.Write(context.Background(), Entry{Type: "x"}); err == nil {
		t.Fatal("expected error without tenant")
	}
	if _, err := ledger.Write(context.Background(), Entry{TenantID: "t1"}); err == nil {
		t.Fatal("expected error without type")
	}
}
