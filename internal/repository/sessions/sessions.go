package sessions

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"secure_chat/internal/errs"
	"secure_chat/internal/model"
)

// SessionRepo stores the per-recipient encryption session records kept
// for the audit/replay window.
type SessionRepo struct {
	collection *mongo.Collection
}

func NewSessionRepo(db *mongo.Database) *SessionRepo {
	return &SessionRepo{
		collection: db.Collection("encryption_sessions"),
	}
}

func (r *SessionRepo) InsertMany(ctx context.Context, sessions []model.EncryptionSession) error {
	if len(sessions) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(sessions))
	now := time.Now()
	for i := range sessions {
		s := sessions[i]
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		docs = append(docs, s)
	}

	if _, err := r.collection.InsertMany(ctx, docs); err != nil {
		return errs.DependencyUnavailable("insert encryption sessions", err)
	}
	return nil
}
