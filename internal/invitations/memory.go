package invitations

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryRepository is an in-memory Repository used for unit tests and
// single-process development runs.
type MemoryRepository struct {
	mu    sync.RWMutex
	store map[string]*Invitation
	seq   int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{store: make(map[string]*Invitation)}
}

func (m *MemoryRepository) Create(ctx context.Context, inv *Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if inv.ID == "" {
		m.seq++
		inv.ID = fmt.Sprintf("inv_%d", m.seq)
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = now
	}
	if inv.ExpiresAt.IsZero() {
		inv.ExpiresAt = now.Add(DefaultTTL)
	}
	if inv.Status == "" {
		inv.Status = StatusPending
	}
	m.store[inv.ID] = cloneInvitation(inv)
	return nil
}

func (m *MemoryRepository) GetByID(ctx context.Context, id string) (*Invitation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if inv, ok := m.store[id]; ok {
		return cloneInvitation(inv), nil
	}
	return nil, nil
}

func (m *MemoryRepository) GetByTokenHash(ctx context.Context, hash string) (*Invitation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, inv := range m.store {
		if inv.TokenHash == hash {
			return cloneInvitation(inv), nil
		}
	}
	return nil, nil
}

func (m *MemoryRepository) FindPending(ctx context.Context, docID, email string) (*Invitation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, inv := range m.store {
		if inv.DocID == docID && inv.Email == email && inv.Status == StatusPending {
			return cloneInvitation(inv), nil
		}
	}
	return nil, nil
}

func (m *MemoryRepository) CountRecent(ctx context.Context, docID, email string, since time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, inv := range m.store {
		if inv.DocID == docID && inv.Email == email && !inv.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) ListByDoc(ctx context.Context, docID string) ([]*Invitation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*Invitation{}
	for _, inv := range m.store {
		if inv.DocID == docID {
			out = append(out, cloneInvitation(inv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepository) Update(ctx context.Context, inv *Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[inv.ID]; !ok {
		return ErrNotFound
	}
	m.store[inv.ID] = cloneInvitation(inv)
	return nil
}

func (m *MemoryRepository) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, inv := range m.store {
		if inv.Status == StatusPending && now.After(inv.ExpiresAt) {
			inv.Status = StatusExpired
			n++
		}
	}
	return n, nil
}

func cloneInvitation(inv *Invitation) *Invitation {
	cp := *inv
	return &cp
}
