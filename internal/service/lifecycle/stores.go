package lifecycle

import (
	"context"
	"time"

	"secure_chat/internal/model"
)

// Storage collaborators, defined here at the point of use. The Mongo
// repositories implement them; tests use in-memory fakes.

type ChatStore interface {
	Get(ctx context.Context, chatID string) (*model.Chat, error)
	SetLastMessage(ctx context.Context, chatID string, lm *model.LastMessage) error
}

type MessageStore interface {
	Insert(ctx context.Context, msg *model.Message) error
	Get(ctx context.Context, messageID string) (*model.Message, error)

	// MarkDelivered records the per-user delivery timestamp if absent
	// and advances sent -> delivered. Monotonic: never regresses.
	MarkDelivered(ctx context.Context, messageID, userID string, at time.Time) error

	// MarkRead records the per-user read timestamp. Returns true only on
	// the first acknowledgement from this user; repeats are no-ops.
	MarkRead(ctx context.Context, messageID, userID string, at time.Time) (bool, error)

	// UpdateContent replaces the message body (plaintext or envelope)
	// and marks it edited.
	UpdateContent(ctx context.Context, messageID, content string, env *model.Envelope, at time.Time) error

	// Delete removes the record entirely (delete-for-everyone).
	Delete(ctx context.Context, messageID string) error

	// AddDeletedFor adds userID to the message's tombstone set.
	AddDeletedFor(ctx context.Context, messageID, userID string) error

	// List returns the newest messages of a chat visible to userID:
	// excludes expired messages and those tombstoned for this user.
	List(ctx context.Context, chatID, userID string, limit int64) ([]model.Message, error)

	// LatestSurviving returns the most recent non-expired message in the
	// chat, or nil when none remain. Used to repair the lastMessage
	// pointer after a delete-for-everyone.
	LatestSurviving(ctx context.Context, chatID string) (*model.Message, error)
}

type SessionStore interface {
	InsertMany(ctx context.Context, sessions []model.EncryptionSession) error
}
