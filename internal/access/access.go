// Package access is the single authority for effective-role decisions.
// Both the HTTP handlers and the realtime gateway resolve roles here;
// re-deriving role logic inline in a handler is a correctness hazard.
package access

// Role is a principal's effective role on a document.
type Role string

const (
	RoleNone   Role = "none"
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleOwner  Role = "owner"
)

// Grant associates a principal with a granted role on a document.
type Grant struct {
	UserID string
	Role   Role
}

// ParseGrantable returns the role if s names a role that can be granted to a
// collaborator. Owner is implicit and never grantable.
func ParseGrantable(s string) (Role, bool) {
	switch Role(s) {
	case RoleViewer, RoleEditor:
		return Role(s), true
	default:
		return RoleNone, false
	}
}

// CanView reports whether the role allows loading document content.
func (r Role) CanView() bool {
	return r == RoleViewer || r == RoleEditor || r == RoleOwner
}

// CanEdit reports whether the role allows submitting deltas and snapshots.
// Owner carries full edit authority everywhere editor is checked.
func (r Role) CanEdit() bool {
	return r == RoleEditor || r == RoleOwner
}

// Resolve computes the effective role of principalID for a document.
// Precedence, first match wins:
//  1. owner
//  2. collaborator grant
//  3. public document -> viewer
//  4. none
func Resolve(ownerID string, grants []Grant, isPublic bool, principalID string) Role {
	if principalID != "" && principalID == ownerID {
		return RoleOwner
	}
	for _, g := range grants {
		if principalID != "" && g.UserID == principalID {
			return g.Role
		}
	}
	if isPublic {
		return RoleViewer
	}
	return RoleNone
}
