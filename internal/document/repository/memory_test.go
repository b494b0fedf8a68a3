package repository

import (
	"context"
	"testing"

	"github.com/docsy-app/docsy/backend/go-services/internal/access"
	"github.com/docsy-app/docsy/backend/go-services/internal/document"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepoCRUD(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	d := &document.Document{Title: "Notes", Content: "hello", OwnerID: "u-owner"}
	id, err := r.Create(ctx, d)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := r.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "hello", got.Content)
	require.Equal(t, "u-owner", got.OwnerID)

	err = r.UpdateContent(ctx, id, "new", "u-editor")
	require.NoError(t, err)
	got2, err := r.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "new", got2.Content)
	require.Equal(t, "u-editor", got2.LastModifiedBy)

	err = r.Delete(ctx, id)
	require.NoError(t, err)
	_, err = r.Get(ctx, id)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepoAddCollaboratorIdempotent(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	id, err := r.Create(ctx, &document.Document{Title: "Shared", OwnerID: "u-owner"})
	require.NoError(t, err)

	c := document.Collaborator{UserID: "u-2", Email: "two@example.com", Role: access.RoleViewer}
	require.NoError(t, r.AddCollaborator(ctx, id, c))
	require.NoError(t, r.AddCollaborator(ctx, id, c))

	got, err := r.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, got.Collaborators, 1)

	// the owner can never be added as a collaborator
	require.NoError(t, r.AddCollaborator(ctx, id, document.Collaborator{UserID: "u-owner", Role: access.RoleEditor}))
	got, err = r.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, got.Collaborators, 1)
}

func TestMemoryRepoSetPermissions(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	id, err := r.Create(ctx, &document.Document{Title: "Perms", OwnerID: "u-owner"})
	require.NoError(t, err)

	public := true
	collabs := []document.Collaborator{
		{UserID: "u-2", Email: "two@example.com", Role: access.RoleEditor},
		{UserID: "u-2", Email: "two@example.com", Role: access.RoleViewer}, // duplicate dropped
		{UserID: "u-owner", Email: "own@example.com", Role: access.RoleEditor}, // owner dropped
	}
	require.NoError(t, r.SetPermissions(ctx, id, &public, collabs))

	got, err := r.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, got.IsPublic)
	require.Len(t, got.Collaborators, 1)
	require.Equal(t, access.RoleEditor, got.Collaborators[0].Role)

	// nil collaborator list leaves grants untouched
	public = false
	require.NoError(t, r.SetPermissions(ctx, id, &public, nil))
	got, err = r.Get(ctx, id)
	require.NoError(t, err)
	require.False(t, got.IsPublic)
	require.Len(t, got.Collaborators, 1)
}

func TestMemoryRepoGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepo()
	id, err := r.Create(ctx, &document.Document{Title: "Iso", OwnerID: "u-owner"})
	require.NoError(t, err)

	got, err := r.Get(ctx, id)
	require.NoError(t, err)
	got.Title = "mutated"

	again, err := r.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Iso", again.Title)
}
