package service

import (
	"context"
	"errors"

	"github.com/docsy-app/docsy/backend/go-services/internal/access"
	"github.com/docsy-app/docsy/backend/go-services/internal/document"
	"github.com/docsy-app/docsy/backend/go-services/internal/document/repository"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrAccessDenied = errors.New("access denied")
)

// Service defines the document business operations used by the gateway and
// the invitation manager.
type Service interface {
	Get(ctx context.Context, id string) (*document.Document, error)
	// FindOrCreate loads the document, lazily creating it (with the requester
	// as owner) when the id has never been seen. The bool reports creation.
	FindOrCreate(ctx context.Context, id, requesterID string) (*document.Document, bool, error)
	// SaveSnapshot unconditionally overwrites content and last-modifier.
	// Last writer wins; concurrent savers may overwrite each other between
	// snapshots.
	SaveSnapshot(ctx context.Context, id, content, modifiedBy string) error
	// SetPermissions replaces the public flag and/or collaborator grants.
	// Owner only.
	SetPermissions(ctx context.Context, id, principalID string, isPublic *bool, collaborators []document.Collaborator) error
	AddCollaborator(ctx context.Context, id string, c document.Collaborator) error
	// Delete destroys a document. Owner only.
	Delete(ctx context.Context, id, principalID string) error
}

// NewService returns a Service backed by the given repository.
func NewService(repo repository.Repository) Service {
	return &docService{repo: repo}
}

// NewMemoryService returns a Service backed by the in-memory repository.
func NewMemoryService() Service {
	return NewService(repository.NewMemoryRepo())
}

// NewMongoService returns a Service backed by a MongoDB collection.
func NewMongoService(col *mongo.Collection) Service {
	return NewService(repository.NewMongoRepo(col))
}

type docService struct {
	repo repository.Repository
}

func (s *docService) Get(ctx context.Context, id string) (*document.Document, error) {
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

func (s *docService) FindOrCreate(ctx context.Context, id, requesterID string) (*document.Document, bool, error) {
	d, err := s.repo.Get(ctx, id)
	if err == nil {
		return d, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}
	d = &document.Document{
		ID:            id,
		Title:         "Untitled document",
		OwnerID:       requesterID,
		Collaborators: []document.Collaborator{},
	}
	if _, err := s.repo.Create(ctx, d); err != nil {
		return nil, false, err
	}
	return d, true, nil
}

func (s *docService) SaveSnapshot(ctx context.Context, id, content, modifiedBy string) error {
	err := s.repo.UpdateContent(ctx, id, content, modifiedBy)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *docService) SetPermissions(ctx context.Context, id, principalID string, isPublic *bool, collaborators []document.Collaborator) error {
	d, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if d.RoleOf(principalID) != access.RoleOwner {
		return ErrAccessDenied
	}
	err = s.repo.SetPermissions(ctx, id, isPublic, collaborators)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *docService) AddCollaborator(ctx context.Context, id string, c document.Collaborator) error {
	err := s.repo.AddCollaborator(ctx, id, c)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *docService) Delete(ctx context.Context, id, principalID string) error {
	d, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if d.OwnerID != principalID {
		return ErrAccessDenied
	}
	err = s.repo.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
