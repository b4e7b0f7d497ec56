// Package memory implementa core.Repository en memoria. Se usa como driver
// de desarrollo y como backend de los tests de unidad; respeta los mismos
// contratos de unicidad que el driver pg.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/swayz032/Aspire-Desktop-sub001/internal/store/core"
)

type Store struct {
	mu          sync.RWMutex
	connections map[string]*core.Connection // by id
	credentials map[string]*core.Credential // by connection id
	events      map[string]*core.FinancialEvent
	eventIdx    map[string]string // idempotency tuple -> event id
	cursors     map[string]*core.SyncCursor // connectionID|stream
	receipts    map[string]*core.Receipt
	order       []string // receipt ids in insertion order
}

func New() *Store {
	return &Store{
		connections: make(map[string]*core.Connection),
		credentials: make(map[string]*core.Credential),
		events:      make(map[string]*core.FinancialEvent),
		eventIdx:    make(map[string]string),
		cursors:     make(map[string]*core.SyncCursor),
		receipts:    make(map[string]*core.Receipt),
	}
}

func idemKey(tenantID, officeID, provider, providerEventID string) string {
	return strings.Join([]string{tenantID, officeID, provider, providerEventID}, "\x00")
}

func cursorKey(connectionID, stream string) string {
	return connectionID + "|" + stream
}

// ====================== CONNECTIONS ======================

func (s *Store) CreateConnection(_ context.Context, c *core.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.connections {
		if existing.Status == core.ConnectionDisconnected {
			continue
		}
		if existing.TenantID == c.TenantID && existing.OfficeID == c.OfficeID && existing.Provider == c.Provider {
			return core.ErrConflict
		}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = core.ConnectionConnected
	}
	if c.Scopes == nil {
		c.Scopes = []string{}
	}
	c.CreatedAt = time.Now().UTC()
	cp := *c
	s.connections[c.ID] = &cp
	return nil
}

func (s *Store) GetConnection(_ context.Context, id string) (*core.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.connections[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) GetConnectionByExternalID(_ context.Context, provider, externalItemID string) (*core.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.connections {
		if c.Provider == provider && c.ExternalItemID == externalItemID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) FindConnection(_ context.Context, tenantID, officeID, provider string) (*core.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.connections {
		if c.TenantID == tenantID && c.OfficeID == officeID && c.Provider == provider {
			cp := *c
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) ListConnections(_ context.Context, tenantID string) ([]core.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Connection
	for _, c := range s.connections {
		if c.TenantID == tenantID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListConnectionsByStatus(_ context.Context, status core.ConnectionStatus) ([]core.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Connection
	for _, c := range s.connections {
		if c.Status == status {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateConnectionStatus(_ context.Context, id string, status core.ConnectionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[id]
	if !ok {
		return core.ErrNotFound
	}
	c.Status = status
	return nil
}

func (s *Store) TouchConnectionSync(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[id]
	if !ok {
		return core.ErrNotFound
	}
	t := at
	c.LastSyncAt = &t
	return nil
}

func (s *Store) TouchConnectionWebhook(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.connections[id]
	if !ok {
		return core.ErrNotFound
	}
	t := at
	c.LastWebhookAt = &t
	return nil
}

// ====================== CREDENTIALS ======================

func (s *Store) CreateCredential(_ context.Context, c *core.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.credentials[c.ConnectionID]; ok {
		return core.ErrConflict
	}
	c.RotationVersion = 1
	c.UpdatedAt = time.Now().UTC()
	cp := *c
	s.credentials[c.ConnectionID] = &cp
	return nil
}

func (s *Store) GetCredential(_ context.Context, connectionID string) (*core.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.credentials[connectionID]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) UpdateCredential(_ context.Context, connectionID, accessEnc string, refreshEnc *string, expiresAt *time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.credentials[connectionID]
	if !ok {
		return 0, core.ErrNotFound
	}
	c.AccessTokenEnc = accessEnc
	if refreshEnc != nil {
		c.RefreshTokenEnc = refreshEnc
	}
	c.ExpiresAt = expiresAt
	c.RotationVersion++
	c.UpdatedAt = time.Now().UTC()
	return c.RotationVersion, nil
}

func (s *Store) DeleteCredential(_ context.Context, connectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.credentials, connectionID)
	return nil
}

// ====================== EVENTS ======================

func (s *Store) InsertEvent(_ context.Context, e *core.FinancialEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := idemKey(e.TenantID, e.OfficeID, e.Provider, e.ProviderEventID)
	if _, ok := s.eventIdx[key]; ok {
		return false, nil
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = time.Now().UTC()
	cp := *e
	s.events[e.ID] = &cp
	s.eventIdx[key] = e.ID
	return true, nil
}

func (s *Store) CountEvents(_ context.Context, tenantID, officeID, provider string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, e := range s.events {
		if e.TenantID != tenantID {
			continue
		}
		if officeID != "" && e.OfficeID != officeID {
			continue
		}
		if provider != "" && e.Provider != provider {
			continue
		}
		n++
	}
	return n, nil
}

// ====================== CURSORS ======================

func (s *Store) GetCursor(_ context.Context, connectionID, stream string) (*core.SyncCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cursors[cursorKey(connectionID, stream)]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) UpsertCursor(_ context.Context, c *core.SyncCursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.UpdatedAt = time.Now().UTC()
	cp := *c
	s.cursors[cursorKey(c.ConnectionID, c.Stream)] = &cp
	return nil
}

func (s *Store) DeleteCursor(_ context.Context, connectionID, stream string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cursors, cursorKey(connectionID, stream))
	return nil
}

// ====================== RECEIPTS ======================

func (s *Store) InsertReceipt(_ context.Context, r *core.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if _, ok := s.receipts[r.ID]; ok {
		return core.ErrConflict
	}
	r.CreatedAt = time.Now().UTC()
	cp := *r
	s.receipts[r.ID] = &cp
	s.order = append(s.order, r.ID)
	return nil
}

func (s *Store) GetReceipt(_ context.Context, id string) (*core.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.receipts[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Store) ListReceipts(_ context.Context, tenantID, officeID string, limit int) ([]core.Receipt, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Receipt
	// newest-first: walk insertion order backwards
	for i := len(s.order) - 1; i >= 0 && len(out) < limit; i-- {
		r := s.receipts[s.order[i]]
		if r.TenantID != tenantID {
			continue
		}
		if officeID != "" && (r.OfficeID == nil || *r.OfficeID != officeID) {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (s *Store) ListUnsealedReceipts(_ context.Context, limit int) ([]core.Receipt, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Receipt
	for _, id := range s.order {
		if len(out) >= limit {
			break
		}
		r := s.receipts[id]
		if !r.Sealed() {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *Store) SealReceipt(_ context.Context, id, hash, signature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.receipts[id]
	if !ok {
		return core.ErrNotFound
	}
	if r.Sealed() {
		return core.ErrImmutable
	}
	h, sig := hash, signature
	r.Hash = &h
	r.Signature = &sig
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close()                     {}
