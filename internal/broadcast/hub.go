package broadcast

import (
	"crypto/sha1"
	"encoding/binary"
	"sync"

	"go.uber.org/zap"

	"secure_chat/internal/model"
	"secure_chat/internal/utils/log"
)

const shardCount = 32

// Sender is the delivery end of one live connection. Send must not
// block; it reports whether the event was accepted.
type Sender interface {
	Send(ev model.WsEvent) bool
}

type member struct {
	userID string
	sender Sender
}

type roomBucket struct {
	sync.RWMutex
	rooms map[string]map[string]member // roomID -> connID -> member
}

// Hub fans events out to the connections joined to a room. Membership is
// connection-scoped: one device leaving a room does not affect the
// user's other devices. Delivery is best-effort, at most once per live
// socket; there is no queueing or replay.
type Hub struct {
	shards [shardCount]*roomBucket

	// joined tracks which rooms each connection is in so disconnect
	// cleanup does not scan every room.
	mu     sync.Mutex
	joined map[string]map[string]struct{} // connID -> roomIDs
}

func NewHub() *Hub {
	h := &Hub{
		joined: make(map[string]map[string]struct{}),
	}
	for i := 0; i < shardCount; i++ {
		h.shards[i] = &roomBucket{
			rooms: make(map[string]map[string]member),
		}
	}
	return h
}

// UserRoom names the personal room every connection of a user joins.
func UserRoom(userID string) string {
	return "user:" + userID
}

func getShard(roomID string) uint32 {
	if roomID == "" {
		return 0
	}
	sum := sha1.Sum([]byte(roomID))
	return binary.BigEndian.Uint32(sum[:4]) % shardCount
}

func (h *Hub) Join(roomID, connID, userID string, s Sender) {
	b := h.shards[getShard(roomID)]
	b.Lock()
	room, ok := b.rooms[roomID]
	if !ok {
		room = make(map[string]member)
		b.rooms[roomID] = room
	}
	room[connID] = member{userID: userID, sender: s}
	b.Unlock()

	h.mu.Lock()
	rooms, ok := h.joined[connID]
	if !ok {
		rooms = make(map[string]struct{})
		h.joined[connID] = rooms
	}
	rooms[roomID] = struct{}{}
	h.mu.Unlock()

	log.Debug("joined room",
		zap.String("roomID", roomID),
		zap.String("connID", connID),
		zap.String("userID", userID),
	)
}

func (h *Hub) Leave(roomID, connID string) {
	b := h.shards[getShard(roomID)]
	b.Lock()
	if room, ok := b.rooms[roomID]; ok {
		delete(room, connID)
		if len(room) == 0 {
			delete(b.rooms, roomID)
		}
	}
	b.Unlock()

	h.mu.Lock()
	if rooms, ok := h.joined[connID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(h.joined, connID)
		}
	}
	h.mu.Unlock()
}

// LeaveAll removes a disconnected connection from every room it joined.
func (h *Hub) LeaveAll(connID string) {
	h.mu.Lock()
	rooms := h.joined[connID]
	delete(h.joined, connID)
	h.mu.Unlock()

	for roomID := range rooms {
		b := h.shards[getShard(roomID)]
		b.Lock()
		if room, ok := b.rooms[roomID]; ok {
			delete(room, connID)
			if len(room) == 0 {
				delete(b.rooms, roomID)
			}
		}
		b.Unlock()
	}
}

// Broadcast delivers ev to every connection in the room except all
// connections belonging to excludeUserID (pass "" to exclude no one).
// Members are collected under the read lock and delivered outside it so
// a slow socket never holds up the bucket.
func (h *Hub) Broadcast(roomID string, ev model.WsEvent, excludeUserID string) int {
	b := h.shards[getShard(roomID)]

	b.RLock()
	room, ok := b.rooms[roomID]
	if !ok || len(room) == 0 {
		b.RUnlock()
		return 0
	}
	targets := make([]member, 0, len(room))
	for _, m := range room {
		if excludeUserID != "" && m.userID == excludeUserID {
			continue
		}
		targets = append(targets, m)
	}
	b.RUnlock()

	delivered := 0
	for _, m := range targets {
		if m.sender.Send(ev) {
			delivered++
		} else {
			log.Warn("dropped event for slow connection",
				zap.String("roomID", roomID),
				zap.String("userID", m.userID),
				zap.String("event", ev.Event),
			)
		}
	}
	return delivered
}

// BroadcastExcluding delivers ev to every connection in the room whose
// connection ID is not in skip. Used to reach a user's remaining devices
// through their personal room when some sockets were already covered by
// a chat-room broadcast.
func (h *Hub) BroadcastExcluding(roomID string, ev model.WsEvent, skip map[string]struct{}) int {
	b := h.shards[getShard(roomID)]

	b.RLock()
	room, ok := b.rooms[roomID]
	if !ok || len(room) == 0 {
		b.RUnlock()
		return 0
	}
	targets := make([]member, 0, len(room))
	for connID, m := range room {
		if _, skipped := skip[connID]; skipped {
			continue
		}
		targets = append(targets, m)
	}
	b.RUnlock()

	delivered := 0
	for _, m := range targets {
		if m.sender.Send(ev) {
			delivered++
		} else {
			log.Warn("dropped event for slow connection",
				zap.String("roomID", roomID),
				zap.String("userID", m.userID),
				zap.String("event", ev.Event),
			)
		}
	}
	return delivered
}

// Members returns the connection IDs currently joined to a room.
func (h *Hub) Members(roomID string) []string {
	b := h.shards[getShard(roomID)]
	b.RLock()
	defer b.RUnlock()

	room := b.rooms[roomID]
	out := make([]string, 0, len(room))
	for connID := range room {
		out = append(out, connID)
	}
	return out
}
