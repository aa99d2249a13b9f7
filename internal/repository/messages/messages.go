package messages

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"secure_chat/internal/errs"
	"secure_chat/internal/model"
)

type MessageRepo struct {
	collection *mongo.Collection
}

func NewMessageRepo(db *mongo.Database) *MessageRepo {
	return &MessageRepo{
		collection: db.Collection("messages"),
	}
}

func (r *MessageRepo) Insert(ctx context.Context, msg *model.Message) error {
	if _, err := r.collection.InsertOne(ctx, msg); err != nil {
		return errs.DependencyUnavailable("insert message", err)
	}
	return nil
}

func (r *MessageRepo) Get(ctx context.Context, messageID string) (*model.Message, error) {
	var msg model.Message
	err := r.collection.FindOne(ctx, bson.M{"_id": messageID}).Decode(&msg)
	if err == mongo.ErrNoDocuments {
		return nil, errs.NotFound("message not found")
	}
	if err != nil {
		return nil, errs.DependencyUnavailable("get message", err)
	}
	return &msg, nil
}

// MarkDelivered records the per-user delivery timestamp once and
// advances sent -> delivered. Two separate conditional updates keep the
// transition monotonic: a message already delivered or read never moves
// backwards.
func (r *MessageRepo) MarkDelivered(ctx context.Context, messageID, userID string, at time.Time) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": messageID, "delivered_at." + userID: bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"delivered_at." + userID: at}},
	)
	if err != nil {
		return errs.DependencyUnavailable("record delivery timestamp", err)
	}

	_, err = r.collection.UpdateOne(ctx,
		bson.M{"_id": messageID, "status": model.StatusSent},
		bson.M{"$set": bson.M{"status": model.StatusDelivered}},
	)
	if err != nil {
		return errs.DependencyUnavailable("advance delivery status", err)
	}
	return nil
}

// MarkRead returns true only for the first acknowledgement from this
// user; the filter on read_at makes the idempotency check atomic.
func (r *MessageRepo) MarkRead(ctx context.Context, messageID, userID string, at time.Time) (bool, error) {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": messageID, "read_at." + userID: bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"read_at." + userID: at}},
	)
	if err != nil {
		return false, errs.DependencyUnavailable("record read timestamp", err)
	}
	first := res.ModifiedCount > 0

	_, err = r.collection.UpdateOne(ctx,
		bson.M{"_id": messageID, "status": bson.M{"$in": []model.MessageStatus{model.StatusSent, model.StatusDelivered}}},
		bson.M{"$set": bson.M{"status": model.StatusRead}},
	)
	if err != nil {
		return false, errs.DependencyUnavailable("advance read status", err)
	}
	return first, nil
}

func (r *MessageRepo) UpdateContent(ctx context.Context, messageID, content string, env *model.Envelope, at time.Time) error {
	set := bson.M{
		"edited":    true,
		"edited_at": at,
	}
	unset := bson.M{}
	if env != nil {
		set["envelope"] = env
		unset["content"] = ""
	} else {
		set["content"] = content
		unset["envelope"] = ""
	}

	update := bson.M{"$set": set, "$unset": unset}
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": messageID}, update)
	if err != nil {
		return errs.DependencyUnavailable("update message content", err)
	}
	if res.MatchedCount == 0 {
		return errs.NotFound("message not found")
	}
	return nil
}

func (r *MessageRepo) Delete(ctx context.Context, messageID string) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": messageID})
	if err != nil {
		return errs.DependencyUnavailable("delete message", err)
	}
	if res.DeletedCount == 0 {
		return errs.NotFound("message not found")
	}
	return nil
}

func (r *MessageRepo) AddDeletedFor(ctx context.Context, messageID, userID string) error {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": messageID},
		bson.M{"$addToSet": bson.M{"deleted_for": userID}},
	)
	if err != nil {
		return errs.DependencyUnavailable("tombstone message", err)
	}
	if res.MatchedCount == 0 {
		return errs.NotFound("message not found")
	}
	return nil
}

// visibleFilter excludes expired self-destruct messages for everyone and
// per-user tombstones for the requesting user.
func visibleFilter(chatID, userID string, now time.Time) bson.M {
	filter := bson.M{
		"chat_id": chatID,
		"$or": []bson.M{
			{"expires_at": bson.M{"$exists": false}},
			{"expires_at": nil},
			{"expires_at": bson.M{"$gt": now}},
		},
	}
	if userID != "" {
		filter["deleted_for"] = bson.M{"$ne": userID}
	}
	return filter
}

func (r *MessageRepo) List(ctx context.Context, chatID, userID string, limit int64) ([]model.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	opts := options.Find().
		SetSort(bson.M{"timestamp": -1}).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, visibleFilter(chatID, userID, time.Now()), opts)
	if err != nil {
		return nil, errs.DependencyUnavailable("list messages", err)
	}
	defer cursor.Close(ctx)

	var msgs []model.Message
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, errs.DependencyUnavailable("decode messages", err)
	}

	// newest last
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *MessageRepo) LatestSurviving(ctx context.Context, chatID string) (*model.Message, error) {
	opts := options.FindOne().SetSort(bson.M{"timestamp": -1})

	var msg model.Message
	err := r.collection.FindOne(ctx, visibleFilter(chatID, "", time.Now()), opts).Decode(&msg)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, errs.DependencyUnavailable("latest message", err)
	}
	return &msg, nil
}
