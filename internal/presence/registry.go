package presence

import (
	"sync"

	"go.uber.org/zap"

	"secure_chat/internal/utils/log"
)

// Registry is the presence ledger: a bidirectional mapping between users
// and their live connections. A user may hold several connections at
// once (multi-device). Both directions mutate under one mutex so they
// can never disagree.
type Registry struct {
	mu          sync.RWMutex
	connsByUser map[string]map[string]struct{}
	userByConn  map[string]string
	typing      *TypingState
}

func NewRegistry() *Registry {
	return &Registry{
		connsByUser: make(map[string]map[string]struct{}),
		userByConn:  make(map[string]string),
		typing:      NewTypingState(),
	}
}

func (r *Registry) Typing() *TypingState {
	return r.typing
}

// Register adds connID to userID's live set.
func (r *Registry) Register(userID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.connsByUser[userID]
	if !ok {
		conns = make(map[string]struct{})
		r.connsByUser[userID] = conns
	}
	conns[connID] = struct{}{}
	r.userByConn[connID] = userID

	log.Debug("connection registered",
		zap.String("userID", userID),
		zap.String("connID", connID),
		zap.Int("devices", len(conns)),
	)
}

// Unregister removes the mapping in both directions and clears the
// user's typing state. Returns the owning userID, or "" if the
// connection was unknown.
func (r *Registry) Unregister(connID string) string {
	r.mu.Lock()
	userID, ok := r.userByConn[connID]
	if !ok {
		r.mu.Unlock()
		return ""
	}
	delete(r.userByConn, connID)

	if conns, ok := r.connsByUser[userID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.connsByUser, userID)
		}
	}
	r.mu.Unlock()

	r.typing.ClearUser(userID)

	log.Debug("connection unregistered",
		zap.String("userID", userID),
		zap.String("connID", connID),
	)
	return userID
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connsByUser[userID]) > 0
}

// ConnectionsFor returns a copy of the user's live connection IDs.
func (r *Registry) ConnectionsFor(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.connsByUser[userID]
	out := make([]string, 0, len(conns))
	for connID := range conns {
		out = append(out, connID)
	}
	return out
}

// UserFor resolves a connection back to its owner.
func (r *Registry) UserFor(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.userByConn[connID]
	return userID, ok
}
