package document

import (
	"time"

	"github.com/docsy-app/docsy/backend/go-services/internal/access"
)

// Collaborator is a grant entry on a document. A principal appears at most
// once; the owner is implicit and is never listed here.
type Collaborator struct {
	UserID string      `json:"userId" bson:"userId"`
	Email  string      `json:"email" bson:"email"`
	Role   access.Role `json:"role" bson:"role"`
}

// Document is the persistent document model. Content is an opaque snapshot
// owned by the editing surface; this service never interprets it.
type Document struct {
	ID             string         `json:"id" bson:"_id,omitempty"`
	Title          string         `json:"title" bson:"title"`
	Content        string         `json:"content,omitempty" bson:"content,omitempty"`
	OwnerID        string         `json:"ownerId" bson:"ownerId"`
	Collaborators  []Collaborator `json:"collaborators" bson:"collaborators"`
	IsPublic       bool           `json:"isPublic" bson:"isPublic"`
	LastModifiedBy string         `json:"lastModifiedBy,omitempty" bson:"lastModifiedBy,omitempty"`
	CreatedAt      time.Time      `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt" bson:"updatedAt"`
}

// Grants returns the collaborator list in the shape the access resolver consumes.
func (d *Document) Grants() []access.Grant {
	out := make([]access.Grant, 0, len(d.Collaborators))
	for _, c := range d.Collaborators {
		out = append(out, access.Grant{UserID: c.UserID, Role: c.Role})
	}
	return out
}

// RoleOf resolves the effective role of a principal on this document.
// Delegates to the access package, the single decision authority.
func (d *Document) RoleOf(principalID string) access.Role {
	return access.Resolve(d.OwnerID, d.Grants(), d.IsPublic, principalID)
}
