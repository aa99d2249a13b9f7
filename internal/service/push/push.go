package push

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"secure_chat/internal/utils/log"
)

type Notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Notifier delivers notifications to users with no live connection.
// Best-effort: failures are logged and swallowed, never surfaced to the
// message send path.
type Notifier interface {
	SendToUser(userID string, n Notification)
}

// DeliverFunc hands a staged notification to the actual push provider.
type DeliverFunc func(userID string, n Notification)

type staged struct {
	UserID       string       `json:"userId"`
	Notification Notification `json:"notification"`
}

// RedisNotifier stages notifications on a Redis list and drains it from
// a background worker, keeping provider latency off the send path.
type RedisNotifier struct {
	rdb     *redis.Client
	queue   string
	deliver DeliverFunc
	cancel  context.CancelFunc
}

func NewRedisNotifier(rdb *redis.Client, deliver DeliverFunc) *RedisNotifier {
	ctx, cancel := context.WithCancel(context.Background())
	n := &RedisNotifier{
		rdb:     rdb,
		queue:   "push:pending",
		deliver: deliver,
		cancel:  cancel,
	}
	go n.worker(ctx)
	return n
}

func (n *RedisNotifier) SendToUser(userID string, notification Notification) {
	payload, err := json.Marshal(staged{UserID: userID, Notification: notification})
	if err != nil {
		log.Error("marshal push notification", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := n.rdb.RPush(ctx, n.queue, payload).Err(); err != nil {
		log.Error("stage push notification failed",
			zap.String("userID", userID),
			zap.Error(err),
		)
	}
}

func (n *RedisNotifier) worker(ctx context.Context) {
	for {
		res, err := n.rdb.BLPop(ctx, 5*time.Second, n.queue).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("push queue poll failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if len(res) < 2 {
			continue
		}

		var item staged
		if err := json.Unmarshal([]byte(res[1]), &item); err != nil {
			log.Error("decode staged push notification", zap.Error(err))
			continue
		}
		if n.deliver != nil {
			n.deliver(item.UserID, item.Notification)
		}
	}
}

func (n *RedisNotifier) Close() {
	n.cancel()
}

// LogNotifier is the dev/test delivery provider.
type LogNotifier struct{}

func (LogNotifier) SendToUser(userID string, n Notification) {
	log.Info("push notification",
		zap.String("userID", userID),
		zap.String("title", n.Title),
		zap.String("body", fmt.Sprintf("%.80s", n.Body)),
	)
}
