package audit

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"secure_chat/internal/utils/log"
)

type Entry struct {
	UserID   string         `bson:"user_id"`
	Action   string         `bson:"action"`
	Details  map[string]any `bson:"details,omitempty"`
	Success  bool           `bson:"success"`
	Severity string         `bson:"severity"`
	At       time.Time      `bson:"at"`
}

// Sink records security-relevant actions. Fire-and-forget: Record never
// blocks the caller and failures are swallowed.
type Sink interface {
	Record(userID, action string, details map[string]any, success bool, severity string)
}

// MongoSink buffers entries on a channel and writes them from a single
// background goroutine. When the buffer is full the entry is dropped and
// counted in the server log rather than stalling the request path.
type MongoSink struct {
	entries chan Entry
	cancel  context.CancelFunc
}

func NewMongoSink(db *mongo.Database) *MongoSink {
	ctx, cancel := context.WithCancel(context.Background())
	s := &MongoSink{
		entries: make(chan Entry, 256),
		cancel:  cancel,
	}
	go s.worker(ctx, db.Collection("audit_log"))
	return s
}

func (s *MongoSink) Record(userID, action string, details map[string]any, success bool, severity string) {
	entry := Entry{
		UserID:   userID,
		Action:   action,
		Details:  details,
		Success:  success,
		Severity: severity,
		At:       time.Now(),
	}

	select {
	case s.entries <- entry:
	default:
		log.Warn("audit buffer full, entry dropped", zap.String("action", action))
	}
}

func (s *MongoSink) worker(ctx context.Context, coll *mongo.Collection) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry := <-s.entries:
			writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if _, err := coll.InsertOne(writeCtx, entry); err != nil {
				log.Error("audit write failed",
					zap.String("action", entry.Action),
					zap.Error(err),
				)
			}
			cancel()
		}
	}
}

func (s *MongoSink) Close() {
	s.cancel()
}

// NopSink discards everything. Used where auditing is disabled.
type NopSink struct{}

func (NopSink) Record(string, string, map[string]any, bool, string) {}
