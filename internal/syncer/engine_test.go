package syncer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/swayz032/Aspire-Desktop-sub001/internal/provider"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/receipt"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/security/secretbox"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/store/core"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/store/memory"
	"github.com/swayz032/Aspire-Desktop-sub001/internal/vault"
)

// fakeProvider sirve páginas predefinidas keyed por cursor.
type fakeProvider struct {
	pages     map[string]*provider.SyncPage
	balances  []provider.AccountBalance
	syncCalls int
	failAfter int // falla a partir de la N-ésima llamada (0 = nunca)
}

func (f *fakeProvider) Name() string { return "plaid" }

func (f *fakeProvider) TransactionsSync(_ context.Context, _ string, cursor string) (*provider.SyncPage, error) {
	f.syncCalls++
	if f.failAfter > 0 && f.syncCalls >= f.failAfter {
		return nil, errors.New("provider unavailable")
	}
	page, ok := f.pages[cursor]
	if !ok {
		return &provider.SyncPage{NextCursor: cursor, HasMore: false}, nil
	}
	return page, nil
}

func (f *fakeProvider) Balances(_ context.Context, _ string) ([]provider.AccountBalance, error) {
	return f.balances, nil
}

func (f *fakeProvider) ExchangePublicToken(_ context.Context, _ string) (*provider.LinkResult, error) {
	return &provider.LinkResult{ItemID: "item-1", AccessToken: "tok"}, nil
}

func (f *fakeProvider) VerificationKey(_ context.Context, _ string) (*ecdsa.PublicKey, error) {
	return nil, errors.New("not implemented")
}

func tx(id string, amount int64, pending bool) provider.Transaction {
	return provider.Transaction{
		ID:          id,
		AccountID:   "acc-1",
		AmountMinor: amount,
		Currency:    "usd",
		Pending:     pending,
		Date:        time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Description: "test " + id,
	}
}

func setupEngine(t *testing.T, fp *fakeProvider) (*Engine, core.Repository, *core.Connection) {
	t.Helper()
	secretbox.UnsafeResetForTests()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 7)
	}
	require.NoError(t, secretbox.UnsafeSetMasterKeyForTests(key))
	t.Cleanup(secretbox.UnsafeResetForTests)

	repo := memory.New()
	ctx := context.Background()
	conn := &core.Connection{
		ID:             "33333333-3333-3333-3333-333333333333",
		TenantID:       "t1",
		OfficeID:       "o1",
		Provider:       "plaid",
		ExternalItemID: "item-1",
		Status:         core.ConnectionConnected,
	}
	require.NoError(t, repo.CreateConnection(ctx, conn))

	v := vault.New(repo)
	require.NoError(t, v.Save(ctx, conn.ID, "access-tok", nil, nil))

	eng := NewEngine(repo, v, fp, receipt.NewLedger(repo), NewLocalLocker(), time.Minute)
	return eng, repo, conn
}

func TestSyncConnection_MultiPage(t *testing.T) {
	fp := &fakeProvider{pages: map[string]*provider.SyncPage{
		"": {
			Added:      []provider.Transaction{tx("t1", -1500, false), tx("t2", -250, true)},
			NextCursor: "c1",
			HasMore:    true,
		},
		"c1": {
			Added:      []provider.Transaction{tx("t3", 9900, false)},
			Removed:    []provider.RemovedTransaction{{ID: "t2", AccountID: "acc-1"}},
			NextCursor: "c2",
			HasMore:    false,
		},
	}}
	eng, repo, conn := setupEngine(t, fp)
	ctx := context.Background()

	res, err := eng.SyncConnection(ctx, conn)
	require.NoError(t, err)
	require.Equal(t, 3, res.Added)
	require.Equal(t, 1, res.Removed)
	require.Equal(t, 0, res.Duplicates)
	require.Equal(t, 2, res.Pages)

	cur, err := repo.GetCursor(ctx, conn.ID, core.StreamTransactions)
	require.NoError(t, err)
	require.Equal(t, "c2", cur.Cursor)

	n, err := repo.CountEvents(ctx, "t1", "", "")
	require.NoError(t, err)
	require.EqualValues(t, 4, n)

	got, err := repo.GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastSyncAt)
}

func TestSyncConnection_ResumesFromPersistedCursor(t *testing.T) {
	// Primera corrida: falla en la segunda página, después de persistir c1.
	fp := &fakeProvider{
		pages: map[string]*provider.SyncPage{
			"": {
				Added:      []provider.Transaction{tx("t1", -100, false), tx("t2", -200, false)},
				NextCursor: "c1",
				HasMore:    true,
			},
		},
		failAfter: 2,
	}
	eng, repo, conn := setupEngine(t, fp)
	ctx := context.Background()

	_, err := eng.SyncConnection(ctx, conn)
	require.Error(t, err)

	cur, err := repo.GetCursor(ctx, conn.ID, core.StreamTransactions)
	require.NoError(t, err)
	require.Equal(t, "c1", cur.Cursor)

	// Segunda corrida: el provider re-sirve t2 junto con lo nuevo (solape
	// de página). El total queda en 3, no en 5.
	fp.failAfter = 0
	fp.pages["c1"] = &provider.SyncPage{
		Added:      []provider.Transaction{tx("t2", -200, false), tx("t3", -300, false)},
		NextCursor: "c2",
		HasMore:    false,
	}

	res, err := eng.SyncConnection(ctx, conn)
	require.NoError(t, err)
	require.Equal(t, 1, res.Added)
	require.Equal(t, 1, res.Duplicates)

	n, err := repo.CountEvents(ctx, "t1", "", "")
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
}

func TestSyncConnection_RemovalHasOwnKey(t *testing.T) {
	fp := &fakeProvider{pages: map[string]*provider.SyncPage{
		"": {
			Added:      []provider.Transaction{tx("t1", -100, false)},
			Removed:    []provider.RemovedTransaction{{ID: "t1", AccountID: "acc-1"}},
			NextCursor: "c1",
			HasMore:    false,
		},
	}}
	eng, repo, conn := setupEngine(t, fp)
	ctx := context.Background()

	res, err := eng.SyncConnection(ctx, conn)
	require.NoError(t, err)
	require.Equal(t, 1, res.Added)
	require.Equal(t, 1, res.Removed)

	// el evento original y su remoción conviven como filas distintas
	n, err := repo.CountEvents(ctx, "t1", "", "")
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}

func TestSyncConnection_LockedConnectionRejects(t *testing.T) {
	fp := &fakeProvider{pages: map[string]*provider.SyncPage{}}
	eng, _, conn := setupEngine(t, fp)
	ctx := context.Background()

	release, err := eng.locks.Acquire(ctx, "sync:"+conn.ID, time.Minute)
	require.NoError(t, err)
	defer release()

	_, err = eng.SyncConnection(ctx, conn)
	require.ErrorIs(t, err, ErrLocked)
}

func TestSyncConnection_WritesRunReceipt(t *testing.T) {
	fp := &fakeProvider{pages: map[string]*provider.SyncPage{
		"": {
			Added:      []provider.Transaction{tx("t1", -100, false)},
			NextCursor: "c1",
			HasMore:    false,
		},
	}}
	eng, repo, conn := setupEngine(t, fp)
	ctx := context.Background()

	_, err := eng.SyncConnection(ctx, conn)
	require.NoError(t, err)

	recs, err := repo.ListReceipts(ctx, "t1", "", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "sync.run", recs[0].Type)
	require.Equal(t, core.ReceiptSucceeded, recs[0].Status)
	require.EqualValues(t, 1, recs[0].Result["added"])
}

// ctxAwareRepo emula al driver pg: rechaza escrituras con el contexto ya
// cancelado (el driver in-memory las ignora).
type ctxAwareRepo struct {
	core.Repository
}

func (r *ctxAwareRepo) InsertReceipt(ctx context.Context, rec *core.Receipt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.Repository.InsertReceipt(ctx, rec)
}

// stallProvider bloquea hasta que el contexto del run muera.
type stallProvider struct {
	fakeProvider
}

func (s *stallProvider) TransactionsSync(ctx context.Context, _ string, _ string) (*provider.SyncPage, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSyncConnection_DeadlineStillWritesFailedReceipt(t *testing.T) {
	fp := &stallProvider{}
	eng, repo, conn := setupEngine(t, &fp.fakeProvider)
	wrapped := &ctxAwareRepo{Repository: repo}
	eng.repo = wrapped
	eng.receipts = receipt.NewLedger(wrapped)
	eng.client = fp

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := eng.SyncConnection(ctx, conn)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	recs, err := repo.ListReceipts(context.Background(), "t1", "", 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "sync.run", recs[0].Type)
	require.Equal(t, core.ReceiptFailed, recs[0].Status)
	require.Contains(t, recs[0].Result, "error")
}

func TestSyncConnection_NonAdvancingCursorAborts(t *testing.T) {
	fp := &fakeProvider{pages: map[string]*provider.SyncPage{
		"": {
			Added:      []provider.Transaction{tx("t1", -100, false)},
			NextCursor: "", // provider roto: más páginas, mismo cursor
			HasMore:    true,
		},
	}}
	eng, _, conn := setupEngine(t, fp)

	_, err := eng.SyncConnection(context.Background(), conn)
	require.Error(t, err)
	require.Contains(t, err.Error(), "without advancing the cursor")
	// una sola llamada al provider: no hubo loop
	require.Equal(t, 1, fp.syncCalls)
}

func TestSnapshotBalances_HourBucketCollapses(t *testing.T) {
	cur := int64(125000)
	avail := int64(120000)
	fp := &fakeProvider{balances: []provider.AccountBalance{
		{AccountID: "acc-1", Name: "Checking", CurrentMinor: &cur, AvailableMinor: &avail, Currency: "usd"},
	}}
	eng, repo, conn := setupEngine(t, fp)
	ctx := context.Background()

	written, err := eng.SnapshotBalances(ctx, conn)
	require.NoError(t, err)
	require.Equal(t, 1, written)

	// mismo bucket horario => el segundo snapshot colapsa
	written, err = eng.SnapshotBalances(ctx, conn)
	require.NoError(t, err)
	require.Equal(t, 0, written)

	n, err := repo.CountEvents(ctx, "t1", "", "")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}
