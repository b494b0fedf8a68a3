package collab

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/docsy-app/docsy/backend/go-services/internal/access"
	"github.com/docsy-app/docsy/backend/go-services/internal/document"
	docservice "github.com/docsy-app/docsy/backend/go-services/internal/document/service"
	"github.com/docsy-app/docsy/backend/go-services/internal/models"
	"github.com/docsy-app/docsy/backend/go-services/pkg/logger"
	"github.com/docsy-app/docsy/backend/go-services/pkg/metrics"
	"github.com/docsy-app/docsy/backend/go-services/pkg/middleware"
)

const opTimeout = 10 * time.Second

// SnapshotArchiver keeps an out-of-band history of saved snapshots. Optional;
// a nil archiver disables archiving.
type SnapshotArchiver interface {
	ArchiveSnapshot(ctx context.Context, docID string, content []byte) (string, error)
}

// Gateway upgrades authenticated HTTP requests to realtime sessions and
// dispatches their events. Per-connection state machine:
// Connecting -> Authenticated -> Joined -> Closed.
type Gateway struct {
	hub      *Hub
	docs     docservice.Service
	verifier middleware.Verifier
	archiver SnapshotArchiver
	upgrader websocket.Upgrader
}

func NewGateway(hub *Hub, docs docservice.Service, verifier middleware.Verifier, archiver SnapshotArchiver) *Gateway {
	return &Gateway{
		hub:      hub,
		docs:     docs,
		verifier: verifier,
		archiver: archiver,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// cross-origin by design: the editor frontend is served elsewhere
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handle is the websocket entry point. The credential comes from the
// Authorization header or, for browser websocket clients that cannot set
// headers, the token query parameter. Verification failure is a hard fail.
func (g *Gateway) Handle(c *gin.Context) {
	raw := bearerToken(c)
	if raw == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing credential", "kind": "auth_error"})
		return
	}
	principal, err := g.authenticate(c.Request.Context(), raw)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credential", "kind": "auth_error"})
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("collab: upgrade failed: %v", err)
		return
	}

	client := newClient(g.hub, g, conn, principal)
	metrics.ActiveConnections.Inc()
	go client.writePump()
	go client.readPump()
}

func (g *Gateway) authenticate(ctx context.Context, raw string) (*models.User, error) {
	tok, err := g.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	var claims map[string]interface{}
	if err := tok.Claims(&claims); err != nil {
		return nil, err
	}
	principal := models.PrincipalFromClaims(claims)
	if principal == nil {
		return nil, errors.New("claims carry no subject")
	}
	return principal, nil
}

func bearerToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return c.Query("token")
}

// dispatch routes one inbound frame. The returned bool closes the connection
// (auth failures only); every other failure becomes an error event or a log
// line and the session continues.
func (g *Gateway) dispatch(c *Client, raw []byte) bool {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.sendError("validation_error", "malformed frame")
		return false
	}
	switch env.Event {
	case EventGetDocument:
		g.handleGetDocument(c, env.Data)
	case EventSendChanges:
		g.handleSendChanges(c, env.Data)
	case EventSaveDocument:
		g.handleSaveDocument(c, env.Data)
	case EventPermissionsUpdated:
		g.handlePermissionsUpdated(c, env.Data)
	case EventRefreshToken:
		return g.handleRefreshToken(c, env.Data)
	default:
		c.sendError("validation_error", "unknown event "+env.Event)
	}
	return false
}

// documentIDFrom accepts either a bare JSON string or {"documentId": "..."}.
func documentIDFrom(data json.RawMessage) string {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		return id
	}
	var obj struct {
		DocumentID string `json:"documentId"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		return obj.DocumentID
	}
	return ""
}

func (g *Gateway) handleGetDocument(c *Client, data json.RawMessage) {
	docID := documentIDFrom(data)
	if docID == "" {
		c.sendError("validation_error", "missing document id")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	doc, created, err := g.docs.FindOrCreate(ctx, docID, c.principal.Sub)
	if err != nil {
		logger.Errorf("collab: load %s: %v", docID, err)
		c.sendError("storage_error", "failed to load document")
		return
	}
	if created {
		logger.Infof("collab: document %s created by %s", docID, c.principal.Sub)
	}

	role := doc.RoleOf(c.principal.Sub)
	if role == access.RoleNone {
		logger.Infof("collab: access denied on %s for %s", docID, c.principal.Sub)
		c.sendError("access_denied", "no access to this document")
		return
	}

	g.hub.Join(c, docID)
	c.setSession(docID, role)
	c.sendEvent(EventLoadDocument, g.loadPayload(doc, c.principal, role))
}

func (g *Gateway) loadPayload(doc *document.Document, principal *models.User, role access.Role) LoadDocumentPayload {
	entries := make([]CollaboratorEntry, 0, len(doc.Collaborators))
	for _, col := range doc.Collaborators {
		entries = append(entries, CollaboratorEntry{
			UserID: col.UserID,
			Email:  col.Email,
			Role:   col.Role,
			IsSelf: col.UserID == principal.Sub,
		})
	}
	return LoadDocumentPayload{
		DocumentID:    doc.ID,
		Content:       contentJSON(doc.Content),
		Title:         doc.Title,
		Role:          role,
		IsPublic:      doc.IsPublic,
		IsOwner:       doc.OwnerID == principal.Sub,
		Collaborators: entries,
	}
}

// contentJSON renders the stored snapshot for the wire. Content is opaque to
// the server; stored JSON passes through untouched, anything else ships as a
// JSON string, and a never-saved document loads as an empty object.
func contentJSON(content string) json.RawMessage {
	if content == "" {
		return json.RawMessage(`{}`)
	}
	if json.Valid([]byte(content)) {
		return json.RawMessage(content)
	}
	quoted, _ := json.Marshal(content)
	return quoted
}

func (g *Gateway) handleSendChanges(c *Client, delta json.RawMessage) {
	room, role := c.session()
	if room == "" {
		c.sendError("validation_error", "not joined to a document")
		return
	}
	if !role.CanEdit() {
		logger.Infof("collab: delta from %s dropped (role=%s)", c.principal.Sub, role)
		c.sendError("access_denied", "viewers cannot edit")
		return
	}
	frame, err := marshalEnvelope(EventReceiveChanges, delta)
	if err != nil {
		c.sendError("validation_error", "malformed delta")
		return
	}
	g.hub.Broadcast(room, c, frame)
	metrics.DeltasRelayed.Inc()
}

func (g *Gateway) handleSaveDocument(c *Client, snapshot json.RawMessage) {
	room, role := c.session()
	if room == "" {
		c.sendError("validation_error", "not joined to a document")
		return
	}
	if !role.CanEdit() {
		logger.Infof("collab: save from %s dropped (role=%s)", c.principal.Sub, role)
		c.sendError("access_denied", "viewers cannot save")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := g.docs.SaveSnapshot(ctx, room, string(snapshot), c.principal.Sub); err != nil {
		logger.Errorf("collab: save %s: %v", room, err)
		c.sendError("storage_error", "failed to save document")
		return
	}
	metrics.SnapshotsSaved.Inc()

	if g.archiver != nil {
		// best effort, off the event path
		go func(docID string, content []byte) {
			actx, acancel := context.WithTimeout(context.Background(), opTimeout)
			defer acancel()
			if _, err := g.archiver.ArchiveSnapshot(actx, docID, content); err != nil {
				logger.Warnf("collab: archive %s: %v", docID, err)
			}
		}(room, append([]byte(nil), snapshot...))
	}
}

// handlePermissionsUpdated applies an owner-initiated permission change and
// relays it to the rest of the room. Every member's session role is
// re-resolved immediately so a mid-session upgrade or downgrade takes effect
// without a reconnect.
func (g *Gateway) handlePermissionsUpdated(c *Client, data json.RawMessage) {
	room, role := c.session()
	if room == "" {
		c.sendError("validation_error", "not joined to a document")
		return
	}
	if role != access.RoleOwner {
		logger.Infof("collab: permission change from %s dropped (role=%s)", c.principal.Sub, role)
		c.sendError("access_denied", "only the owner can change permissions")
		return
	}
	var update PermissionsUpdate
	if err := json.Unmarshal(data, &update); err != nil || update.DocumentID != room {
		c.sendError("validation_error", "malformed permissions update")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var collaborators []document.Collaborator
	if update.Updates.Collaborators != nil {
		collaborators = make([]document.Collaborator, 0, len(update.Updates.Collaborators))
		for _, e := range update.Updates.Collaborators {
			collaborators = append(collaborators, document.Collaborator{UserID: e.UserID, Email: e.Email, Role: e.Role})
		}
	}
	if err := g.docs.SetPermissions(ctx, room, c.principal.Sub, update.Updates.IsPublic, collaborators); err != nil {
		logger.Errorf("collab: permissions %s: %v", room, err)
		c.sendError("storage_error", "failed to update permissions")
		return
	}

	// refresh before relaying so the frame never outruns the new rights
	g.refreshRoomRoles(ctx, room)
	frame, err := marshalEnvelope(EventPermissionsUpdated, update)
	if err == nil {
		g.hub.Broadcast(room, c, frame)
	}
}

// refreshRoomRoles re-resolves the effective role of every live session in
// the room against the stored document. Members whose access was taken away
// are evicted; a revoked collaborator must not keep reading the delta feed
// until they happen to disconnect.
func (g *Gateway) refreshRoomRoles(ctx context.Context, room string) {
	doc, err := g.docs.Get(ctx, room)
	if err != nil {
		logger.Warnf("collab: role refresh for %s: %v", room, err)
		return
	}
	for _, member := range g.hub.Clients(room) {
		role := doc.RoleOf(member.principal.Sub)
		if role == access.RoleNone {
			logger.Infof("collab: %s evicted from %s after permission change", member.principal.Sub, room)
			member.sendError("access_denied", "access to this document was revoked")
			g.hub.Leave(member)
			member.setSession("", access.RoleNone)
			continue
		}
		member.setRole(role)
	}
}

// handleRefreshToken re-authenticates the session in place so long-lived
// editing sessions survive access-token expiry. A bad credential closes the
// connection, matching the connect-time contract.
func (g *Gateway) handleRefreshToken(c *Client, data json.RawMessage) bool {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil || raw == "" {
		c.sendError("auth_error", "malformed credential")
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	principal, err := g.authenticate(ctx, raw)
	if err != nil || principal.Sub != c.principal.Sub {
		logger.Infof("collab: refresh-token rejected for %s", c.principal.Sub)
		c.sendError("auth_error", "invalid credential")
		return true
	}
	return false
}
