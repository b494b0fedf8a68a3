package collab

import (
	"sync"

	"github.com/docsy-app/docsy/backend/go-services/internal/document"
	"github.com/docsy-app/docsy/backend/go-services/pkg/logger"
)

// Hub tracks room membership and fans frames out to room members. Sends are
// non-blocking: a receiver whose buffer is full misses the frame rather than
// stalling the rest of the room.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Client]struct{})}
}

// Join adds the client to a room, leaving its previous room first. One room
// per connection.
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c)
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
}

// Leave removes the client from whatever room it is in.
func (h *Hub) Leave(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c)
}

func (h *Hub) leaveLocked(c *Client) {
	for room, members := range h.rooms {
		if _, ok := members[c]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
}

// Broadcast queues the frame for every room member except sender. A nil
// sender reaches the whole room.
func (h *Hub) Broadcast(room string, sender *Client, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[room] {
		if c == sender {
			continue
		}
		c.enqueue(frame)
	}
}

// Clients returns a snapshot of the room's members.
func (h *Hub) Clients(room string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		out = append(out, c)
	}
	return out
}

// RoomSize returns the number of live connections in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// NotifyCollaboratorAdded tells every live session in the document's room
// that a new collaborator was granted access. Invoked by the invitation
// manager after a successful accept.
func (h *Hub) NotifyCollaboratorAdded(docID string, c document.Collaborator) {
	frame, err := marshalEnvelope(EventCollaboratorAdded, CollaboratorEntry{
		UserID: c.UserID,
		Email:  c.Email,
		Role:   c.Role,
	})
	if err != nil {
		logger.Errorf("collab: marshal collaborator-added: %v", err)
		return
	}
	h.Broadcast(docID, nil, frame)
}
