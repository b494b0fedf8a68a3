package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/docsy-app/docsy/backend/go-services/internal/document"
)

var (
	ErrNotFound = errors.New("document not found")
)

// Repository provides document persistence. Content writes are unconditional
// overwrites: there is no optimistic-concurrency check, so concurrent savers
// race last-write-wins between snapshots.
type Repository interface {
	Create(ctx context.Context, doc *document.Document) (string, error)
	Get(ctx context.Context, id string) (*document.Document, error)
	UpdateContent(ctx context.Context, id, content, modifiedBy string) error
	SetPermissions(ctx context.Context, id string, isPublic *bool, collaborators []document.Collaborator) error
	AddCollaborator(ctx context.Context, id string, c document.Collaborator) error
	Delete(ctx context.Context, id string) error
}

// MemoryRepo is a simple in-memory repository used for unit tests and
// single-process development runs.
type MemoryRepo struct {
	mu    sync.RWMutex
	store map[string]*document.Document
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[string]*document.Document)}
}

func (m *MemoryRepo) Create(ctx context.Context, doc *document.Document) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.ID == "" {
		doc.ID = fmt.Sprintf("doc_%d", time.Now().UnixNano())
	}
	doc.CreatedAt = time.Now().UTC()
	doc.UpdatedAt = doc.CreatedAt
	m.store[doc.ID] = cloneDoc(doc)
	return doc.ID, nil
}

func (m *MemoryRepo) Get(ctx context.Context, id string) (*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDoc(d), nil
}

func (m *MemoryRepo) UpdateContent(ctx context.Context, id, content, modifiedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	d.Content = content
	d.LastModifiedBy = modifiedBy
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryRepo) SetPermissions(ctx context.Context, id string, isPublic *bool, collaborators []document.Collaborator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	if isPublic != nil {
		d.IsPublic = *isPublic
	}
	if collaborators != nil {
		d.Collaborators = dedupeGrants(d.OwnerID, collaborators)
	}
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryRepo) AddCollaborator(ctx context.Context, id string, c document.Collaborator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	// idempotent: the owner is never listed and a principal appears at most once
	if c.UserID == d.OwnerID {
		return nil
	}
	for _, existing := range d.Collaborators {
		if existing.UserID == c.UserID {
			return nil
		}
	}
	d.Collaborators = append(d.Collaborators, c)
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return ErrNotFound
	}
	delete(m.store, id)
	return nil
}

// cloneDoc copies the document and its collaborator slice so callers never
// share mutable state with the store.
func cloneDoc(d *document.Document) *document.Document {
	cp := *d
	cp.Collaborators = append([]document.Collaborator(nil), d.Collaborators...)
	return &cp
}

// dedupeGrants drops the owner and duplicate principals from a replacement
// collaborator list, keeping the first entry per principal.
func dedupeGrants(ownerID string, in []document.Collaborator) []document.Collaborator {
	seen := make(map[string]bool, len(in))
	out := make([]document.Collaborator, 0, len(in))
	for _, c := range in {
		if c.UserID == ownerID || seen[c.UserID] {
			continue
		}
		seen[c.UserID] = true
		out = append(out, c)
	}
	return out
}
