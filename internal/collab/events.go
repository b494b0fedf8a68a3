package collab

import (
	"encoding/json"

	"github.com/docsy-app/docsy/backend/go-services/internal/access"
)

// Wire event names. The surface is room-scoped and bidirectional; every frame
// is a JSON Envelope.
const (
	EventGetDocument        = "get-document"
	EventLoadDocument       = "load-document"
	EventSendChanges        = "send-changes"
	EventReceiveChanges     = "receive-changes"
	EventSaveDocument       = "save-document"
	EventPermissionsUpdated = "permissions-updated"
	EventCollaboratorAdded  = "collaborator-added"
	EventRefreshToken       = "refresh-token"
	EventError              = "error"
)

// Envelope is the wire frame. Data is kept raw so deltas pass through the
// relay without interpretation.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func marshalEnvelope(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// CollaboratorEntry is one collaborator in a load-document payload, annotated
// with whether it is the requesting principal.
type CollaboratorEntry struct {
	UserID string      `json:"userId"`
	Email  string      `json:"email"`
	Role   access.Role `json:"role"`
	IsSelf bool        `json:"isSelf"`
}

// LoadDocumentPayload is emitted once per successful room join.
type LoadDocumentPayload struct {
	DocumentID    string              `json:"documentId"`
	Content       json.RawMessage     `json:"content"`
	Title         string              `json:"title"`
	Role          access.Role         `json:"role"`
	IsPublic      bool                `json:"isPublic"`
	IsOwner       bool                `json:"isOwner"`
	Collaborators []CollaboratorEntry `json:"collaborators"`
}

// ErrorPayload is a non-fatal denial notification. The connection stays open.
type ErrorPayload struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

// PermissionsUpdate carries a permission change initiated by the owner. It is
// applied server-side and then relayed verbatim to the rest of the room.
type PermissionsUpdate struct {
	DocumentID string             `json:"documentId"`
	Updates    PermissionsChanges `json:"updates"`
}

type PermissionsChanges struct {
	IsPublic      *bool               `json:"isPublic,omitempty"`
	Collaborators []CollaboratorEntry `json:"collaborators,omitempty"`
}
