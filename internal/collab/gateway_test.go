package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/docsy-app/docsy/backend/go-services/internal/access"
	"github.com/docsy-app/docsy/backend/go-services/internal/document"
	docservice "github.com/docsy-app/docsy/backend/go-services/internal/document/service"
	"github.com/docsy-app/docsy/backend/go-services/pkg/middleware"
)

// tokenVerifier resolves a token of the form "sub|email" into claims.
type tokenVerifier struct{}

type claimsToken struct {
	data map[string]interface{}
}

func (t *claimsToken) Claims(v interface{}) error {
	if mm, ok := v.(*map[string]interface{}); ok {
		*mm = t.data
		return nil
	}
	return fmt.Errorf("unsupported claims type")
}

func (tokenVerifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	parts := strings.SplitN(raw, "|", 2)
	if len(parts) != 2 || parts[0] == "" {
		return nil, fmt.Errorf("bad token")
	}
	return &claimsToken{data: map[string]interface{}{
		"sub":   parts[0],
		"email": parts[1],
		"name":  parts[0],
	}}, nil
}

type gatewayFixture struct {
	docs docservice.Service
	hub  *Hub
	srv  *httptest.Server
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &gatewayFixture{
		docs: docservice.NewMemoryService(),
		hub:  NewHub(),
	}
	gw := NewGateway(f.hub, f.docs, tokenVerifier{}, nil)

	r := gin.New()
	r.GET("/ws", gw.Handle)
	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *gatewayFixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	frame, err := json.Marshal(Envelope{Event: event, Data: raw})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func recv(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	return env
}

func join(t *testing.T, conn *websocket.Conn, docID string) LoadDocumentPayload {
	t.Helper()
	send(t, conn, EventGetDocument, docID)
	env := recv(t, conn)
	require.Equal(t, EventLoadDocument, env.Event)
	var load LoadDocumentPayload
	require.NoError(t, json.Unmarshal(env.Data, &load))
	return load
}

func TestHandleRejectsMissingAndBadCredential(t *testing.T) {
	f := newGatewayFixture(t)

	resp, err := http.Get(f.srv.URL + "/ws")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(f.srv.URL + "/ws?token=notvalid")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestJoinLazilyCreatesAndLoads(t *testing.T) {
	f := newGatewayFixture(t)
	conn := f.dial(t, "alice|alice@example.com")

	load := join(t, conn, "doc-new")
	require.Equal(t, "doc-new", load.DocumentID)
	require.Equal(t, access.RoleOwner, load.Role)
	require.True(t, load.IsOwner)
	require.JSONEq(t, `{}`, string(load.Content))

	doc, err := f.docs.Get(context.Background(), "doc-new")
	require.NoError(t, err)
	require.Equal(t, "alice", doc.OwnerID)
}

func TestJoinDeniedOnPrivateDocument(t *testing.T) {
	f := newGatewayFixture(t)
	_, _, err := f.docs.FindOrCreate(context.Background(), "doc-1", "alice")
	require.NoError(t, err)

	conn := f.dial(t, "mallory|mallory@example.com")
	send(t, conn, EventGetDocument, "doc-1")

	env := recv(t, conn)
	require.Equal(t, EventError, env.Event)
	var perr ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &perr))
	require.Equal(t, "access_denied", perr.Kind)

	// connection survives the denial
	load := join(t, conn, "doc-mallory")
	require.True(t, load.IsOwner)
}

func TestDeltasRelayedToRoomMinusSender(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	_, _, err := f.docs.FindOrCreate(ctx, "doc-1", "alice")
	require.NoError(t, err)
	require.NoError(t, f.docs.SetPermissions(ctx, "doc-1", "alice", nil, []document.Collaborator{
		{UserID: "bob", Email: "bob@example.com", Role: access.RoleEditor},
	}))

	alice := f.dial(t, "alice|alice@example.com")
	bob := f.dial(t, "bob|bob@example.com")
	join(t, alice, "doc-1")
	loadBob := join(t, bob, "doc-1")
	require.Equal(t, access.RoleEditor, loadBob.Role)

	delta := map[string]interface{}{"ops": []interface{}{map[string]interface{}{"insert": "hi"}}}
	send(t, bob, EventSendChanges, delta)

	env := recv(t, alice)
	require.Equal(t, EventReceiveChanges, env.Event)
	require.JSONEq(t, `{"ops":[{"insert":"hi"}]}`, string(env.Data))

	// the sender does not hear its own delta; next frame bob sees is a
	// relay of alice's reply
	send(t, alice, EventSendChanges, map[string]interface{}{"ops": []interface{}{"yo"}})
	env = recv(t, bob)
	require.Equal(t, EventReceiveChanges, env.Event)
	require.JSONEq(t, `{"ops":["yo"]}`, string(env.Data))
}

func TestViewerCannotEditOrSave(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	_, _, err := f.docs.FindOrCreate(ctx, "doc-1", "alice")
	require.NoError(t, err)
	public := true
	require.NoError(t, f.docs.SetPermissions(ctx, "doc-1", "alice", &public, nil))

	viewer := f.dial(t, "carol|carol@example.com")
	load := join(t, viewer, "doc-1")
	require.Equal(t, access.RoleViewer, load.Role)

	send(t, viewer, EventSendChanges, map[string]interface{}{"ops": []interface{}{}})
	env := recv(t, viewer)
	require.Equal(t, EventError, env.Event)
	var perr ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &perr))
	require.Equal(t, "access_denied", perr.Kind)

	send(t, viewer, EventSaveDocument, map[string]interface{}{"ops": []interface{}{}})
	env = recv(t, viewer)
	require.Equal(t, EventError, env.Event)

	doc, err := f.docs.Get(ctx, "doc-1")
	require.NoError(t, err)
	require.Empty(t, doc.Content)
}

func TestSavePersistsLastWriterWins(t *testing.T) {
	f := newGatewayFixture(t)
	conn := f.dial(t, "alice|alice@example.com")
	join(t, conn, "doc-1")

	send(t, conn, EventSaveDocument, map[string]interface{}{"ops": []interface{}{"v1"}})
	send(t, conn, EventSaveDocument, map[string]interface{}{"ops": []interface{}{"v2"}})

	require.Eventually(t, func() bool {
		doc, err := f.docs.Get(context.Background(), "doc-1")
		if err != nil {
			return false
		}
		return strings.Contains(doc.Content, "v2") && doc.LastModifiedBy == "alice"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestPermissionsUpdateUpgradesLiveSession(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	_, _, err := f.docs.FindOrCreate(ctx, "doc-1", "alice")
	require.NoError(t, err)
	public := true
	require.NoError(t, f.docs.SetPermissions(ctx, "doc-1", "alice", &public, nil))

	owner := f.dial(t, "alice|alice@example.com")
	carol := f.dial(t, "carol|carol@example.com")
	join(t, owner, "doc-1")
	load := join(t, carol, "doc-1")
	require.Equal(t, access.RoleViewer, load.Role)

	send(t, owner, EventPermissionsUpdated, PermissionsUpdate{
		DocumentID: "doc-1",
		Updates: PermissionsChanges{
			IsPublic: &public,
			Collaborators: []CollaboratorEntry{
				{UserID: "carol", Email: "carol@example.com", Role: access.RoleEditor},
			},
		},
	})

	// carol sees the relayed update; her role was refreshed before relay
	env := recv(t, carol)
	require.Equal(t, EventPermissionsUpdated, env.Event)

	// and her live session now has edit rights without a reconnect
	send(t, carol, EventSendChanges, map[string]interface{}{"ops": []interface{}{"now-editor"}})
	env = recv(t, owner)
	require.Equal(t, EventReceiveChanges, env.Event)
	require.JSONEq(t, `{"ops":["now-editor"]}`, string(env.Data))
}

func TestPermissionsUpdateEvictsRemovedCollaborator(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	_, _, err := f.docs.FindOrCreate(ctx, "doc-1", "alice")
	require.NoError(t, err)
	require.NoError(t, f.docs.SetPermissions(ctx, "doc-1", "alice", nil, []document.Collaborator{
		{UserID: "bob", Email: "bob@example.com", Role: access.RoleEditor},
	}))

	owner := f.dial(t, "alice|alice@example.com")
	bob := f.dial(t, "bob|bob@example.com")
	join(t, owner, "doc-1")
	join(t, bob, "doc-1")

	send(t, owner, EventPermissionsUpdated, PermissionsUpdate{
		DocumentID: "doc-1",
		Updates:    PermissionsChanges{Collaborators: []CollaboratorEntry{}},
	})

	// bob is told and taken out of the room
	env := recv(t, bob)
	require.Equal(t, EventError, env.Event)
	var perr ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &perr))
	require.Equal(t, "access_denied", perr.Kind)
	require.Eventually(t, func() bool { return f.hub.RoomSize("doc-1") == 1 }, time.Second, 10*time.Millisecond)

	// deltas from the owner no longer reach him
	send(t, owner, EventSendChanges, map[string]interface{}{"ops": []interface{}{"private"}})
	bob.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	_, _, err = bob.ReadMessage()
	require.Error(t, err)
}

func TestNonOwnerCannotChangePermissions(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	_, _, err := f.docs.FindOrCreate(ctx, "doc-1", "alice")
	require.NoError(t, err)
	require.NoError(t, f.docs.SetPermissions(ctx, "doc-1", "alice", nil, []document.Collaborator{
		{UserID: "bob", Email: "bob@example.com", Role: access.RoleEditor},
	}))

	bob := f.dial(t, "bob|bob@example.com")
	join(t, bob, "doc-1")

	public := true
	send(t, bob, EventPermissionsUpdated, PermissionsUpdate{
		DocumentID: "doc-1",
		Updates:    PermissionsChanges{IsPublic: &public},
	})
	env := recv(t, bob)
	require.Equal(t, EventError, env.Event)

	doc, err := f.docs.Get(ctx, "doc-1")
	require.NoError(t, err)
	require.False(t, doc.IsPublic)
}

func TestRefreshTokenRules(t *testing.T) {
	f := newGatewayFixture(t)
	conn := f.dial(t, "alice|alice@example.com")
	join(t, conn, "doc-1")

	// same subject: session continues
	send(t, conn, EventRefreshToken, "alice|alice+new@example.com")
	send(t, conn, EventSaveDocument, map[string]interface{}{"ops": []interface{}{"still-alive"}})
	require.Eventually(t, func() bool {
		doc, err := f.docs.Get(context.Background(), "doc-1")
		return err == nil && strings.Contains(doc.Content, "still-alive")
	}, 3*time.Second, 20*time.Millisecond)

	// different subject: hard fail, connection closes
	send(t, conn, EventRefreshToken, "eve|eve@example.com")
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestCollaboratorAddedNotification(t *testing.T) {
	f := newGatewayFixture(t)
	conn := f.dial(t, "alice|alice@example.com")
	join(t, conn, "doc-1")

	f.hub.NotifyCollaboratorAdded("doc-1", document.Collaborator{
		UserID: "dave", Email: "dave@example.com", Role: access.RoleViewer,
	})

	env := recv(t, conn)
	require.Equal(t, EventCollaboratorAdded, env.Event)
	var entry CollaboratorEntry
	require.NoError(t, json.Unmarshal(env.Data, &entry))
	require.Equal(t, "dave", entry.UserID)
}

func TestHubRoomAccounting(t *testing.T) {
	f := newGatewayFixture(t)
	a := f.dial(t, "alice|alice@example.com")
	join(t, a, "doc-1")
	require.Eventually(t, func() bool { return f.hub.RoomSize("doc-1") == 1 }, time.Second, 10*time.Millisecond)

	// switching documents leaves the old room
	join(t, a, "doc-2")
	require.Eventually(t, func() bool {
		return f.hub.RoomSize("doc-1") == 0 && f.hub.RoomSize("doc-2") == 1
	}, time.Second, 10*time.Millisecond)

	a.Close()
	require.Eventually(t, func() bool { return f.hub.RoomSize("doc-2") == 0 }, time.Second, 10*time.Millisecond)
}
