package presence

import (
	"sync"
	"time"
)

// TypingState tracks the last-typing timestamp per (user, chat). Entries
// are removed on an explicit stop signal and when the user disconnects.
type TypingState struct {
	mu      sync.Mutex
	entries map[typingKey]time.Time
}

type typingKey struct {
	userID string
	chatID string
}

func NewTypingState() *TypingState {
	return &TypingState{
		entries: make(map[typingKey]time.Time),
	}
}

func (t *TypingState) Set(userID, chatID string, isTyping bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := typingKey{userID: userID, chatID: chatID}
	if isTyping {
		t.entries[key] = time.Now()
	} else {
		delete(t.entries, key)
	}
}

func (t *TypingState) IsTyping(userID, chatID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[typingKey{userID: userID, chatID: chatID}]
	return ok
}

// ClearUser drops the user's typing entries across all chats.
func (t *TypingState) ClearUser(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key := range t.entries {
		if key.userID == userID {
			delete(t.entries, key)
		}
	}
}
